// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package executor runs programs on the CPU against a scope of variable values.
//
// Example:
//
//	exe := executor.NewCPUExecutor(nil, executor.Config{})
//	if _, err := exe.Run(ctx, startup, nil, nil); err != nil {
//	    return err
//	}
//	out, err := exe.Run(ctx, main, map[string]*tensor.RawTensor{"x": x}, []string{"out"})
package executor

import (
	"github.com/born-ml/modelio/internal/executor"
	"github.com/born-ml/modelio/internal/framework"
)

// Executor runs programs.
type Executor = executor.Executor

// CPUExecutor runs operators one after another against a Scope.
type CPUExecutor = executor.CPUExecutor

// Config configures a CPUExecutor.
type Config = executor.Config

// Scope holds the runtime values of variables by name.
type Scope = executor.Scope

// Registry maps operator types to kernels.
type Registry = executor.Registry

// OpHandler is an operator kernel.
type OpHandler = executor.OpHandler

// OpContext is passed to every kernel of a run.
type OpContext = executor.OpContext

// OpError reports a failure of one operator.
type OpError = executor.OpError

// Default holder variable names.
const (
	FeedHolder  = executor.FeedHolder
	FetchHolder = executor.FetchHolder
)

// Errors returned while running programs.
var (
	ErrNilProgram       = executor.ErrNilProgram
	ErrUnsupportedOp    = executor.ErrUnsupportedOp
	ErrVarNotFound      = executor.ErrVarNotFound
	ErrShapeMismatch    = executor.ErrShapeMismatch
	ErrUnsupportedDType = executor.ErrUnsupportedDType
	ErrDTypeMismatch    = executor.ErrDTypeMismatch
	ErrFeedMismatch     = executor.ErrFeedMismatch
	ErrFetchMismatch    = executor.ErrFetchMismatch
)

// NewCPUExecutor creates an executor bound to scope. A nil scope gets a fresh one.
func NewCPUExecutor(scope *Scope, cfg Config) *CPUExecutor {
	return executor.NewCPUExecutor(scope, cfg)
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return executor.NewScope()
}

// NewRegistry creates a registry with the built-in kernels.
func NewRegistry() *Registry {
	return executor.NewRegistry()
}

// FeedTargetNames returns the variables fed by program's feed operators, by column.
func FeedTargetNames(p *framework.Program) []string {
	return executor.FeedTargetNames(p)
}

// FetchTargetNames returns the variables read by program's fetch operators, by column.
func FetchTargetNames(p *framework.Program) []string {
	return executor.FetchTargetNames(p)
}
