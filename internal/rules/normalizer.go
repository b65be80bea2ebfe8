package rules

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

const defaultIterationLimit = 30

var whitespace = regexp.MustCompile(`\s+`)

type rule interface {
	Apply(input string) (string, bool)
}

// Normalizer rewrites spoken queries into the vocabulary the classifier
// expects, e.g. "class seven a => class 7A".
type Normalizer struct {
	rules []rule
	limit int
}

// Load reads rules from path. A blank path or a missing file yields a
// normalizer that only collapses whitespace.
func Load(path string, limit int) (*Normalizer, error) {
	if strings.TrimSpace(path) == "" {
		return &Normalizer{limit: iterationLimit(limit)}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Normalizer{limit: iterationLimit(limit)}, nil
		}
		return nil, fmt.Errorf("open rules file %q: %w", path, err)
	}
	defer file.Close()

	n, err := Parse(file, limit)
	if err != nil {
		return nil, fmt.Errorf("parse rules file %q: %w", path, err)
	}
	return n, nil
}

// Parse compiles one rule per line. Blank lines and lines starting with #
// are skipped.
func Parse(r io.Reader, limit int) (*Normalizer, error) {
	n := &Normalizer{limit: iterationLimit(limit)}

	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			compiled rule
			err      error
		)
		switch {
		case isSubstitution(line):
			compiled, err = parseSubstitution(line)
		case strings.Contains(line, "=>"):
			compiled, err = parseLiteral(line)
		default:
			err = errors.New("expected 'spoken => canonical' or 's/pattern/replacement/flags'")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		n.rules = append(n.rules, compiled)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return n, nil
}

// Len returns the number of loaded rules.
func (n *Normalizer) Len() int {
	return len(n.rules)
}

// Apply runs every rule until the text stops changing or the iteration
// limit is reached, then collapses whitespace.
func (n *Normalizer) Apply(text string) (string, error) {
	result := text
	for i := 0; i < n.limit && len(n.rules) > 0; i++ {
		changed := false
		for _, r := range n.rules {
			if next, ok := r.Apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(result, " ")), nil
}

func iterationLimit(limit int) int {
	if limit <= 0 {
		return defaultIterationLimit
	}
	return limit
}

// regexRule backs both literal and substitution rules.
type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func (r regexRule) Apply(input string) (string, bool) {
	var output string
	if r.global {
		output = r.re.ReplaceAllString(input, r.replacement)
	} else {
		loc := r.re.FindStringSubmatchIndex(input)
		if loc == nil {
			return input, false
		}
		expanded := r.re.ExpandString(nil, r.replacement, input, loc)
		output = input[:loc[0]] + string(expanded) + input[loc[1]:]
	}
	return output, output != input
}

// parseLiteral builds a case-insensitive whole-word replacement.
func parseLiteral(line string) (rule, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}

	pattern := regexp.QuoteMeta(from)
	if isWordByte(from[0]) {
		pattern = `\b` + pattern
	}
	if isWordByte(from[len(from)-1]) {
		pattern += `\b`
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	// Literal replacements must not expand $ references.
	return regexRule{re: re, replacement: strings.ReplaceAll(to, "$", "$$"), global: true}, nil
}

func isSubstitution(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordByte(line[1]) && line[1] != ' ' && line[1] != '\t'
}

// parseSubstitution compiles s<d>pattern<d>replacement<d>flags. Matching is
// case-insensitive; g replaces every match, m and s map to the RE2 flags.
func parseSubstitution(line string) (rule, error) {
	delim := line[1]
	pattern, rest, err := splitDelimited(line[2:], delim)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	replacement, rest, err := splitDelimited(rest, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid replacement: %w", err)
	}

	modes := "i"
	global := false
	for _, flag := range strings.TrimSpace(rest) {
		switch flag {
		case 'g':
			global = true
		case 'i':
		case 'm', 's':
			if !strings.ContainsRune(modes, flag) {
				modes += string(flag)
			}
		default:
			return nil, fmt.Errorf("unsupported flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + modes + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return regexRule{re: re, replacement: replacement, global: global}, nil
}

// splitDelimited returns the text up to the first unescaped delim. An
// escaped delimiter loses its backslash; other escapes are kept for the
// regex engine.
func splitDelimited(s string, delim byte) (string, string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && i+1 < len(s):
			if s[i+1] != delim {
				b.WriteByte(c)
			}
			b.WriteByte(s[i+1])
			i++
		case c == delim:
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(c)
		}
	}
	return "", "", errors.New("unterminated expression")
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
