package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
)

// TextAsserter compares rendered terminal output line by line and reports a
// unified diff on mismatch. Trailing whitespace and leading/trailing blank
// lines are ignored, since table writers pad columns.
type TextAsserter struct {
	t testing.TB
}

func NewTextAsserter(t testing.TB) *TextAsserter {
	return &TextAsserter{t: t}
}

func (ta *TextAsserter) Assert(actual, expected string) {
	ta.t.Helper()
	a, e := normalizeText(actual), normalizeText(expected)
	if a == e {
		return
	}

	edits := myers.ComputeEdits("", e, a)
	unified := gotextdiff.ToUnified("expected", "actual", e, edits)
	ta.t.Errorf("Text assertion failed - unified diff:\n%s", fmt.Sprint(unified))
}

func normalizeText(text string) string {
	lines := strings.Split(strings.Trim(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n") + "\n"
}
