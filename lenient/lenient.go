// Package lenient parses loosely-formatted embedded data.
//
// Backend senders sometimes embed structured payloads as Python literal
// reprs rather than JSON: single-quoted keys and strings, True/False/None
// tokens. Parse attempts a strict JSON decode first and, on failure,
// applies a documented normalization pass and retries.
//
// Normalization rules, applied outside string literals only:
//   - True  -> true
//   - False -> false
//   - None  -> null
//
// And for string literals:
//   - single-quoted strings become double-quoted
//   - \' inside a single-quoted string becomes a bare '
//   - " inside a single-quoted string becomes \"
//
// Double-quoted strings pass through untouched, escapes included.
package lenient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotStructured is returned when the input is not parseable as
// structured data even after normalization.
var ErrNotStructured = errors.New("content is not structured data")

// Parse decodes s as JSON, falling back to a normalize-and-retry pass.
// Returns ErrNotStructured (wrapped) when both attempts fail.
func Parse(s string) (any, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("empty input: %w", ErrNotStructured)
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v, nil
	}

	normalized := Normalize(trimmed)
	if err := json.Unmarshal([]byte(normalized), &v); err != nil {
		return nil, fmt.Errorf("normalized parse failed: %v: %w", err, ErrNotStructured)
	}
	return v, nil
}

// ParseList decodes s and requires a list result.
// A scalar or object result returns ErrNotStructured.
func ParseList(s string) ([]any, error) {
	v, err := Parse(s)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("result is %T, not a list: %w", v, ErrNotStructured)
	}
	return list, nil
}

// Normalize rewrites Python-literal syntax into JSON syntax.
// The transformation is purely lexical; it does not validate the result.
func Normalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			i = copyDoubleQuoted(&out, s, i)
		case '\'':
			i = convertSingleQuoted(&out, s, i)
		default:
			if replaced, width := replaceLiteral(s, i); width > 0 {
				out.WriteString(replaced)
				i += width - 1
				continue
			}
			out.WriteByte(c)
		}
	}
	return out.String()
}

// copyDoubleQuoted copies a double-quoted string verbatim, honoring
// backslash escapes. Returns the index of the closing quote (or the
// last index if unterminated).
func copyDoubleQuoted(out *strings.Builder, s string, start int) int {
	out.WriteByte('"')
	i := start + 1
	for ; i < len(s); i++ {
		c := s[i]
		out.WriteByte(c)
		if c == '\\' && i+1 < len(s) {
			i++
			out.WriteByte(s[i])
			continue
		}
		if c == '"' {
			return i
		}
	}
	return i - 1
}

// convertSingleQuoted rewrites a single-quoted string as double-quoted.
// Returns the index of the closing quote (or the last index if
// unterminated).
func convertSingleQuoted(out *strings.Builder, s string, start int) int {
	out.WriteByte('"')
	i := start + 1
	for ; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			if i+1 < len(s) && s[i+1] == '\'' {
				// \' has no meaning in JSON; emit the bare quote
				out.WriteByte('\'')
				i++
				continue
			}
			out.WriteByte(c)
			if i+1 < len(s) {
				i++
				out.WriteByte(s[i])
			}
		case '"':
			out.WriteString(`\"`)
		case '\'':
			out.WriteByte('"')
			return i
		default:
			out.WriteByte(c)
		}
	}
	return i - 1
}

// pythonLiterals maps Python literal tokens to their JSON spellings.
var pythonLiterals = []struct {
	python string
	json   string
}{
	{"True", "true"},
	{"False", "false"},
	{"None", "null"},
}

// replaceLiteral checks for a Python literal token at s[i] with
// non-identifier boundaries on both sides. Returns the replacement and
// the matched width, or ("", 0) on no match.
func replaceLiteral(s string, i int) (string, int) {
	for _, lit := range pythonLiterals {
		if !strings.HasPrefix(s[i:], lit.python) {
			continue
		}
		if i > 0 && isIdentByte(s[i-1]) {
			continue
		}
		end := i + len(lit.python)
		if end < len(s) && isIdentByte(s[end]) {
			continue
		}
		return lit.json, len(lit.python)
	}
	return "", 0
}

func isIdentByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
