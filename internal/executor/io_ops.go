package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.chromium.org/luci/common/logging"

	"github.com/born-ml/modelio/internal/framework"
	"github.com/born-ml/modelio/internal/serialization"
)

// registerIOOps adds the operators that move values between the scope,
// variable files, and the feed/fetch holders.
func (r *Registry) registerIOOps() {
	r.Register(framework.OpSave, handleSave)
	r.Register(framework.OpLoad, handleLoad)
	r.Register(framework.OpFeed, handleFeed)
	r.Register(framework.OpFetch, handleFetch)
}

// handleSave writes input X to the file named by the file_path attribute.
// The directory is created when missing.
func handleSave(ctx context.Context, oc *OpContext, op *framework.Operator) error {
	name, err := argument(op.Input("X"), op, "X")
	if err != nil {
		return err
	}
	t, err := oc.Scope.Var(name)
	if err != nil {
		return err
	}
	path, err := filePath(op)
	if err != nil {
		return err
	}

	if !op.AttrBool("overwrite", true) {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		}
	}

	meta := map[string]string{}
	if v, err := op.Block().FindVarRecursive(name); err == nil {
		meta[serialization.MetaVarType] = v.Type().String()
		meta[serialization.MetaLoDLevel] = strconv.Itoa(v.LoDLevel())
	}

	//nolint:gosec // G301: model directories are meant to be shared
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := serialization.WriteTensorFile(path, name, t, meta); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}

	logging.Debugf(ctx, "save: %s %v -> %s", name, t, path)
	return nil
}

// handleLoad reads the file named by file_path into output Out.
func handleLoad(ctx context.Context, oc *OpContext, op *framework.Operator) error {
	name, err := argument(op.Output("Out"), op, "Out")
	if err != nil {
		return err
	}
	path, err := filePath(op)
	if err != nil {
		return err
	}

	f, err := serialization.ReadTensorFile(path, serialization.ReaderOptions{
		SkipChecksumValidation: oc.SkipChecksumValidation,
	})
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}

	if v, err := op.Block().FindVarRecursive(name); err == nil && v.Type() == framework.VarTypeLoDTensor {
		if f.Tensor.DType() != v.DType() {
			return fmt.Errorf("%w: %s holds %s, variable %s is %s", ErrDTypeMismatch, path, f.Tensor.DType(), name, v.DType())
		}
	}
	if f.Name != name {
		logging.Debugf(ctx, "load: %s stores %q, loading it as %q", path, f.Name, name)
	}

	oc.Scope.Set(name, f.Tensor)
	logging.Debugf(ctx, "load: %s <- %s %v", name, path, f.Tensor)
	return nil
}

// handleFeed copies column col of holder X into output Out.
func handleFeed(_ context.Context, oc *OpContext, op *framework.Operator) error {
	holder, err := argument(op.Input("X"), op, "X")
	if err != nil {
		return err
	}
	t, err := oc.Scope.holderItem(holder, op.AttrInt(framework.AttrCol, 0))
	if err != nil {
		return err
	}
	return oc.setOutput(op, "Out", t.Clone())
}

// handleFetch copies input X into column col of holder Out.
func handleFetch(_ context.Context, oc *OpContext, op *framework.Operator) error {
	t, err := oc.input(op, "X")
	if err != nil {
		return err
	}
	holder, err := argument(op.Output("Out"), op, "Out")
	if err != nil {
		return err
	}
	return oc.Scope.setHolderItem(holder, op.AttrInt(framework.AttrCol, 0), t.Clone())
}

func filePath(op *framework.Operator) (string, error) {
	path := op.AttrString(framework.AttrFilePath, "")
	if path == "" {
		return "", fmt.Errorf("%w: %s needs %s", ErrMissingAttr, op.Type(), framework.AttrFilePath)
	}
	return path, nil
}
