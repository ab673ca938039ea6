// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTemplate writes a template source into a temp directory and
// returns its path.
func WriteTemplate(t *testing.T, src string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "template.rt")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}
	return path
}

// DigraphTemplate is a small complete template exercising init, a loop
// with a hygienic alias, and literal text.
const DigraphTemplate = `%% init
CREATE TABLE Edge (up, dn);
INSERT INTO Edge (up, dn) VALUES ('a', 'b');
INSERT INTO Edge (up, dn) VALUES ('b', 'c');
%% code
digraph {
{% FROM Edge AS $E ORDER BY up %}  {{ $E.up }} -> {{ $E.dn }};
{% END %}}
`
