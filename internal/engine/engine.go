// Package engine provides the template execution engine. It compiles a
// template into SQL, runs the init statements, the INSERT directives and
// the body query against a database adapter, materializes sys_Write
// rows as files, and runs the fini statements in reverse order.
package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dhbaird/rtemplate/internal/codegen"
	"github.com/dhbaird/rtemplate/internal/macro"
	"github.com/dhbaird/rtemplate/internal/schema"
	"github.com/dhbaird/rtemplate/pkg/adapter"
	"github.com/dhbaird/rtemplate/pkg/template"
)

// Stage names for ExecutionError.
const (
	StageInit   = "init"
	StageInsert = "insert"
	StageRender = "render"
	StageWrite  = "write"
	StageFini   = "fini"
)

// ExecutionError reports a failure in one stage of a run.
type ExecutionError struct {
	Stage string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error in %s stage: %v", e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Compiled is a template lowered to SQL, ready to execute.
type Compiled struct {
	Template *template.Template
	Catalog  *schema.Catalog
	Macros   *macro.Registry
	Query    *codegen.CompiledQuery
}

// Compile runs the front half of the pipeline: parse, resolve macros,
// scan the init schema, lower to SQL.
func Compile(src string) (*Compiled, error) {
	tpl, err := template.Parse(src)
	if err != nil {
		return nil, err
	}
	body, macros, err := macro.Resolve(tpl.Body)
	if err != nil {
		return nil, err
	}
	catalog := schema.Scan(tpl.Init)
	query, err := codegen.Generate(body, catalog)
	if err != nil {
		return nil, err
	}
	return &Compiled{Template: tpl, Catalog: catalog, Macros: macros, Query: query}, nil
}

// Script renders the full SQL script a run would execute, for
// inspection without a database.
func (c *Compiled) Script() string {
	var lines []string
	lines = append(lines, sysWriteDDL()...)
	for _, stmt := range c.Template.Init {
		lines = append(lines, strings.TrimRight(stmt, "\n"))
	}
	for _, stmt := range c.Query.Statements {
		lines = append(lines, stmt+";")
	}
	lines = append(lines, c.Query.Query+";")
	finis := c.Template.Fini
	for i := len(finis) - 1; i >= 0; i-- {
		lines = append(lines, strings.TrimRight(finis[i], "\n"))
	}
	return strings.Join(lines, "\n") + "\n"
}

func sysWriteDDL() []string {
	return []string{
		"DROP TABLE IF EXISTS sys_Write;",
		"CREATE TABLE sys_Write ( path UNIQUE, content );",
	}
}

// Config holds engine configuration.
type Config struct {
	// Adapter is the database adapter to run against.
	Adapter adapter.Adapter
	// AdapterConfig is passed to Adapter.Connect on first use.
	AdapterConfig adapter.Config
	// Prefix is the directory sys_Write files are written under. When
	// empty the files are reported in the result but not written.
	Prefix string
	// SkipFiniOnError leaves the fini statements unexecuted when the
	// insert or render stage fails. By default they still run, so
	// cleanup SQL is not skipped by a broken body.
	SkipFiniOnError bool
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Engine executes compiled templates against a database adapter.
type Engine struct {
	db          adapter.Adapter
	dbConfig    adapter.Config
	dbConnected bool
	dbMu        sync.Mutex

	prefix      string
	finiOnError bool
	logger      *slog.Logger
}

// New creates an engine with a lazy database connection. The adapter is
// connected on the first Run call.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		db:          cfg.Adapter,
		dbConfig:    cfg.AdapterConfig,
		prefix:      cfg.Prefix,
		finiOnError: !cfg.SkipFiniOnError,
		logger:      logger,
	}
}

// Close releases the database connection.
func (e *Engine) Close() error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()
	if !e.dbConnected {
		return nil
	}
	e.dbConnected = false
	return e.db.Close()
}
