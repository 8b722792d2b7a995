package executor

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.chromium.org/luci/common/logging"

	"github.com/born-ml/modelio/internal/framework"
	"github.com/born-ml/modelio/internal/parallel"
	"github.com/born-ml/modelio/internal/tensor"
)

// Executor runs programs.
//
// Run executes the global block of program. Each feed entry is bound to
// the variable of the same name; the values of the variables named in
// fetchList are returned in order.
type Executor interface {
	Run(ctx context.Context, program *framework.Program, feed map[string]*tensor.RawTensor, fetchList []string) ([]*tensor.RawTensor, error)
}

// Config configures a CPUExecutor.
type Config struct {
	Registry               *Registry // Operator kernels (default: NewRegistry())
	SkipChecksumValidation bool      // Passed to load operators
	FeedHolder             string    // Feed holder variable (default: "feed")
	FetchHolder            string    // Fetch holder variable (default: "fetch")
	Sequential             bool      // Run every kernel on the calling goroutine
}

// CPUExecutor runs operators one after another against a Scope.
type CPUExecutor struct {
	scope    *Scope
	registry *Registry
	cfg      Config
}

// NewCPUExecutor creates an executor bound to scope. A nil scope gets a fresh one.
func NewCPUExecutor(scope *Scope, cfg Config) *CPUExecutor {
	if scope == nil {
		scope = NewScope()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.FeedHolder == "" {
		cfg.FeedHolder = FeedHolder
	}
	if cfg.FetchHolder == "" {
		cfg.FetchHolder = FetchHolder
	}
	return &CPUExecutor{scope: scope, registry: cfg.Registry, cfg: cfg}
}

// Scope returns the scope the executor reads and writes.
func (e *CPUExecutor) Scope() *Scope { return e.scope }

// Run implements Executor.
//
// When program has no feed (fetch) operators and feed (fetchList) is not
// empty, the operators are added to a clone of program; program itself is
// never modified. When it already has them, their targets must match feed
// and fetchList.
func (e *CPUExecutor) Run(ctx context.Context, program *framework.Program, feed map[string]*tensor.RawTensor, fetchList []string) ([]*tensor.RawTensor, error) {
	if program == nil {
		return nil, ErrNilProgram
	}
	prog, err := e.prepare(program, feed, fetchList)
	if err != nil {
		return nil, err
	}

	feedNames := FeedTargetNames(prog)
	items := make([]*tensor.RawTensor, len(feedNames))
	for i, name := range feedNames {
		if feed[name] == nil {
			return nil, fmt.Errorf("%w: no value for %q", ErrFeedMismatch, name)
		}
		items[i] = feed[name]
	}
	e.scope.SetHolder(e.cfg.FeedHolder, items)
	e.scope.SetHolder(e.cfg.FetchHolder, nil)

	ops := prog.GlobalBlock().Ops()
	logging.Debugf(ctx, "executor: running %d ops (feed %v, fetch %v)", len(ops), feedNames, fetchList)

	oc := &OpContext{
		Scope:                  e.scope,
		SkipChecksumValidation: e.cfg.SkipChecksumValidation,
		Parallel:               parallel.DefaultConfig(),
	}
	if e.cfg.Sequential {
		oc.Parallel = parallel.Sequential()
	}
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.registry.Execute(ctx, oc, op); err != nil {
			return nil, &OpError{Index: i, Type: op.Type(), Err: err}
		}
	}

	fetchNames := FetchTargetNames(prog)
	results, _ := e.scope.Holder(e.cfg.FetchHolder)
	if len(results) != len(fetchNames) {
		return nil, fmt.Errorf("%w: fetched %d values for %d targets", ErrFetchMismatch, len(results), len(fetchNames))
	}
	return results, nil
}

// prepare returns the program to run, adding feed and fetch operators on a
// clone when needed.
func (e *CPUExecutor) prepare(program *framework.Program, feed map[string]*tensor.RawTensor, fetchList []string) (*framework.Program, error) {
	hasFeed := hasOp(program, framework.OpFeed)
	hasFetch := hasOp(program, framework.OpFetch)

	if hasFeed {
		names := FeedTargetNames(program)
		slices.Sort(names)
		if !slices.Equal(names, slices.Sorted(maps.Keys(feed))) {
			return nil, fmt.Errorf("%w: program feeds %v", ErrFeedMismatch, names)
		}
	}
	if hasFetch && len(fetchList) > 0 {
		if names := FetchTargetNames(program); !slices.Equal(names, fetchList) {
			return nil, fmt.Errorf("%w: program fetches %v, asked for %v", ErrFetchMismatch, names, fetchList)
		}
	}

	addFeed := !hasFeed && len(feed) > 0
	addFetch := !hasFetch && len(fetchList) > 0
	if !addFeed && !addFetch {
		return program, nil
	}

	prog := program.Clone()
	if addFeed {
		if err := PrependFeedOps(prog, slices.Sorted(maps.Keys(feed)), e.cfg.FeedHolder); err != nil {
			return nil, err
		}
	}
	if addFetch {
		if err := AppendFetchOps(prog, fetchList, e.cfg.FetchHolder); err != nil {
			return nil, err
		}
	}
	return prog, nil
}
