// Package persist saves and restores the state of programs.
//
// A model directory holds one variable file per persisted variable,
// named after the variable, and optionally a __model__ file with the
// serialized description of an inference program:
//
//	model/
//	  __model__
//	  fc_0.w_0
//	  fc_0.b_0
//
// Saving and loading never touch files directly. Each operation builds a
// throwaway program of save or load operators and runs it through the
// caller's executor, so the values come from (and go to) the executor's
// scope.
//
// Example:
//
//	exe := executor.NewCPUExecutor(nil, executor.Config{})
//	_, _ = exe.Run(ctx, startup, nil, nil)
//	err := persist.SaveInferenceModel(ctx, "model", []string{"x"}, []framework.Target{out}, exe, main)
//
//	model, err := persist.LoadInferenceModel(ctx, "model", exe)
//	results, err := exe.Run(ctx, model.Program, feed, model.FetchTargetNames())
package persist
