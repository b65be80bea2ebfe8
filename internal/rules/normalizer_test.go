package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func mustParse(t *testing.T, contents string, limit int) *Normalizer {
	t.Helper()
	n, err := Parse(strings.NewReader(contents), limit)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return n
}

func apply(t *testing.T, n *Normalizer, input string) string {
	t.Helper()
	out, err := n.Apply(input)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	return out
}

func TestNormalizerLiteralAndSubstitutionRules(t *testing.T) {
	t.Parallel()

	n := mustParse(t, `
# spoken class names
class seven a => class 7A
s/\bexam(ination)?s?\b/exams/g
`, 0)

	if n.Len() != 2 {
		t.Fatalf("expected two rules, got %d", n.Len())
	}
	if got := apply(t, n, "Examination results for Class Seven A"); got != "exams results for class 7A" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestNormalizerLiteralRulesMatchWholeWords(t *testing.T) {
	t.Parallel()

	n := mustParse(t, "maths => Mathematics\n", 0)
	if got := apply(t, n, "aftermaths Maths"); got != "aftermaths Mathematics" {
		t.Fatalf("unexpected output: %q", got)
	}

	n = mustParse(t, "cost => $5\n", 0)
	if got := apply(t, n, "cost"); got != "$5" {
		t.Fatalf("literal replacement should not expand references: %q", got)
	}
}

func TestNormalizerSubstitutionReplacesFirstMatchWithoutG(t *testing.T) {
	t.Parallel()

	n := mustParse(t, `s/(\d+)st/$1/`, 1)
	if got := apply(t, n, "1st and 2st"); got != "1 and 2st" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestNormalizerIteratesUntilStable(t *testing.T) {
	t.Parallel()

	n := mustParse(t, "grade => year\nyear => form\n", 5)
	if got := apply(t, n, "grade 7 timetable"); got != "form 7 timetable" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestNormalizerStopsAtIterationLimit(t *testing.T) {
	t.Parallel()

	n := mustParse(t, "s/x/xx/\n", 3)
	if got := apply(t, n, "x"); got != "xxxx" {
		t.Fatalf("expected three expansions, got %q", got)
	}
}

func TestNormalizerCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	n := mustParse(t, "", 0)
	if got := apply(t, n, "  show   me\tthe  timetable "); got != "show me the timetable" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestNormalizerEscapedDelimiter(t *testing.T) {
	t.Parallel()

	n := mustParse(t, `s/and\/or/or/g`, 0)
	if got := apply(t, n, "maths and/or science"); got != "maths or science" {
		t.Fatalf("unexpected output: %q", got)
	}

	n = mustParse(t, `s#a/b#c#`, 0)
	if got := apply(t, n, "a/b"); got != "c" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestParseRejectsInvalidRules(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unknown format": "just words",
		"empty literal":  " => something",
		"unterminated":   "s/abc/def",
		"bad flag":       "s/a/b/x",
		"bad regex":      "s/(/b/",
	}
	for name, contents := range cases {
		name, contents := name, contents
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(strings.NewReader("# header\n"+contents), 0)
			if err == nil {
				t.Fatalf("expected parse error")
			}
			if !strings.Contains(err.Error(), "line 2") {
				t.Fatalf("expected line number in error, got %v", err)
			}
		})
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	n, err := Load(filepath.Join(t.TempDir(), "missing.rules"), 0)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if n.Len() != 0 {
		t.Fatalf("expected no rules")
	}

	n, err = Load("", 0)
	if err != nil || n.Len() != 0 {
		t.Fatalf("expected empty normalizer for blank path, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "queries.rules")
	if err := os.WriteFile(path, []byte("time table => timetable\n"), 0o600); err != nil {
		t.Fatalf("failed to write rules: %v", err)
	}
	n, err := Load(path, 0)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := apply(t, n, "Time Table for Monday"); got != "timetable for Monday" {
		t.Fatalf("unexpected output: %q", got)
	}

	bad := filepath.Join(t.TempDir(), "bad.rules")
	if err := os.WriteFile(bad, []byte("nonsense\n"), 0o600); err != nil {
		t.Fatalf("failed to write rules: %v", err)
	}
	if _, err := Load(bad, 0); err == nil || !strings.Contains(err.Error(), bad) {
		t.Fatalf("expected error naming the file, got %v", err)
	}
}
