package engine

// run.go - Execution orchestration for a compiled template

import (
	"context"
	"errors"
	"fmt"
)

// WriteFile is one sys_Write row: a relative path and the content that
// belongs there.
type WriteFile struct {
	Path    string
	Content string
}

// Result holds the outcome of a run.
type Result struct {
	// Output is the rendered body text.
	Output string
	// Files are the sys_Write rows, ordered by path. They are written
	// to disk only when the engine has a prefix directory.
	Files []WriteFile
	// Written reports whether Files were materialized on disk.
	Written bool
}

// Run compiles and executes a template source. The stages run in order:
// init, insert, render, write, fini. The fini statements run in reverse
// section order, and by default they run even when an insert or render
// stage failed, so cleanup SQL still executes.
func (e *Engine) Run(ctx context.Context, src string) (*Result, error) {
	compiled, err := Compile(src)
	if err != nil {
		return nil, err
	}
	return e.RunCompiled(ctx, compiled)
}

// RunCompiled executes an already compiled template.
func (e *Engine) RunCompiled(ctx context.Context, compiled *Compiled) (*Result, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	e.logger.Debug("starting run",
		"inserts", len(compiled.Query.Statements),
		"tables", compiled.Query.Tables)

	if err := e.runInit(ctx, compiled); err != nil {
		return nil, err
	}

	result, runErr := e.runBody(ctx, compiled)

	if runErr == nil || e.finiOnError {
		if err := e.runFini(ctx, compiled); err != nil {
			if runErr == nil {
				return nil, err
			}
			e.logger.Error("fini stage failed after earlier error", "error", err)
			return nil, errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return nil, runErr
	}

	e.logger.Debug("run completed", "files", len(result.Files))
	return result, nil
}

func (e *Engine) runInit(ctx context.Context, compiled *Compiled) error {
	for _, stmt := range sysWriteDDL() {
		if err := e.db.Exec(ctx, stmt); err != nil {
			return &ExecutionError{Stage: StageInit, Err: err}
		}
	}
	for _, stmt := range compiled.Template.Init {
		if err := e.db.Exec(ctx, stmt); err != nil {
			return &ExecutionError{Stage: StageInit, Err: err}
		}
	}
	return nil
}

func (e *Engine) runBody(ctx context.Context, compiled *Compiled) (*Result, error) {
	for i, stmt := range compiled.Query.Statements {
		if err := e.db.Exec(ctx, stmt); err != nil {
			return nil, &ExecutionError{Stage: StageInsert,
				Err: fmt.Errorf("INSERT directive %d: %w", i+1, err)}
		}
	}

	output, err := e.db.QueryText(ctx, compiled.Query.Query)
	if err != nil {
		return nil, &ExecutionError{Stage: StageRender, Err: err}
	}

	files, err := e.collectFiles(ctx)
	if err != nil {
		return nil, err
	}
	written, err := e.writeFiles(ctx, files)
	if err != nil {
		return nil, err
	}

	return &Result{Output: output, Files: files, Written: written}, nil
}

func (e *Engine) runFini(ctx context.Context, compiled *Compiled) error {
	finis := compiled.Template.Fini
	for i := len(finis) - 1; i >= 0; i-- {
		if err := e.db.Exec(ctx, finis[i]); err != nil {
			return &ExecutionError{Stage: StageFini, Err: err}
		}
	}
	return nil
}

func (e *Engine) ensureDBConnected(ctx context.Context) error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()
	if e.dbConnected {
		return nil
	}
	if e.db == nil {
		return errors.New("engine has no database adapter")
	}
	if err := e.db.Connect(ctx, e.dbConfig); err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	e.dbConnected = true
	return nil
}
