// Package schema extracts table definitions from the init section of a
// template. It scans CREATE TABLE statements with a lightweight regex
// pass rather than a full SQL parser; the init SQL is executed verbatim
// by the engine, so the scan only needs the table and column names for
// reference checking.
package schema

import (
	"regexp"
	"sort"
	"strings"
)

// Catalog maps table names to their declared column names, in
// declaration order. Lookups are case-sensitive, matching SQLite's
// behavior for quoted identifiers created by the init SQL.
type Catalog struct {
	tables map[string][]string
}

var (
	// CREATE TABLE [IF NOT EXISTS] name ( ... )
	createPattern = regexp.MustCompile(`(?is)create\s+table\s+(?:if\s+not\s+exists\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*\(([^;]*?)\)\s*(?:;|$)`)
	dropPattern   = regexp.MustCompile(`(?is)drop\s+table\s+(?:if\s+exists\s+)?([A-Za-z_][A-Za-z0-9_]*)`)

	columnName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*`)
)

// Scan builds a catalog from the init statements. Later statements win:
// a DROP TABLE removes an earlier definition and a re-CREATE replaces
// it. The sys_Write side-effect table is always present, whether or not
// the init SQL declares it.
func Scan(initSQL []string) *Catalog {
	c := &Catalog{tables: map[string][]string{
		"sys_Write": {"path", "content"},
	}}
	for _, stmt := range initSQL {
		for _, m := range dropPattern.FindAllStringSubmatch(stmt, -1) {
			if m[1] != "sys_Write" {
				delete(c.tables, m[1])
			}
		}
		for _, m := range createPattern.FindAllStringSubmatch(stmt, -1) {
			c.tables[m[1]] = parseColumns(m[2])
		}
	}
	return c
}

// parseColumns picks the leading identifier of each top-level
// comma-separated column definition, skipping table constraints
// (PRIMARY KEY, UNIQUE, CHECK, FOREIGN KEY).
func parseColumns(body string) []string {
	var cols []string
	for _, def := range splitTopLevel(body) {
		def = strings.TrimSpace(def)
		if def == "" {
			continue
		}
		name := columnName.FindString(def)
		if name == "" || isConstraintKeyword(name) {
			continue
		}
		cols = append(cols, name)
	}
	return cols
}

func isConstraintKeyword(word string) bool {
	switch strings.ToUpper(word) {
	case "PRIMARY", "UNIQUE", "CHECK", "FOREIGN", "CONSTRAINT":
		return true
	}
	return false
}

// splitTopLevel splits on commas outside parentheses and quotes, so
// CHECK (x IN (1, 2)) and DEFAULT ',' stay intact.
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// HasTable reports whether the catalog declares the table.
func (c *Catalog) HasTable(name string) bool {
	_, ok := c.tables[name]
	return ok
}

// Columns returns the declared column names of a table, or nil if the
// table is unknown.
func (c *Catalog) Columns(name string) []string {
	return c.tables[name]
}

// HasColumn reports whether the table declares the column. An unknown
// table has no columns.
func (c *Catalog) HasColumn(table, column string) bool {
	for _, col := range c.tables[table] {
		if col == column {
			return true
		}
	}
	return false
}

// Tables returns the declared table names, sorted.
func (c *Catalog) Tables() []string {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
