package dialect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParamStyle selects how bound parameters appear in compiled SQL
type ParamStyle int

const (
	// Named keeps :name placeholders
	Named ParamStyle = iota
	// Numeric renders $1, $2, ...
	Numeric
	// Qmark renders ?
	Qmark
)

func (p ParamStyle) String() string {
	switch p {
	case Named:
		return "named"
	case Numeric:
		return "numeric"
	case Qmark:
		return "qmark"
	default:
		return "unknown"
	}
}

// Statement is SQL text with :name placeholders and their values
type Statement struct {
	SQL    string
	Params map[string]interface{}
}

// NewStatement creates a statement
func NewStatement(sql string, params map[string]interface{}) Statement {
	return Statement{SQL: sql, Params: params}
}

// Text creates a statement without parameters
func Text(sql string) Statement {
	return Statement{SQL: sql}
}

// ParamNames returns the placeholder names in order of first appearance
func (s Statement) ParamNames() []string {
	var names []string
	seen := make(map[string]bool)
	scanPlaceholders(s.SQL, func(name string) string {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return ":" + name
	})
	return names
}

// Compile renders the statement for d. With literal set every placeholder is
// replaced by the rendered literal value and no arguments are returned.
// Otherwise placeholders follow style and the returned arguments are in
// placeholder order.
func (s Statement) Compile(d Dialect, style ParamStyle, literal bool) (string, []interface{}, error) {
	var (
		args    []interface{}
		err     error
		indexes = make(map[string]int)
	)

	sql := scanPlaceholders(s.SQL, func(name string) string {
		if err != nil {
			return ""
		}
		value, ok := s.Params[name]
		if !ok {
			err = fmt.Errorf("missing value for parameter :%s", name)
			return ""
		}

		if literal {
			lit, litErr := d.QuoteLiteral(value)
			if litErr != nil {
				err = fmt.Errorf("parameter :%s: %w", name, litErr)
				return ""
			}
			return lit
		}

		switch style {
		case Numeric:
			if idx, seen := indexes[name]; seen {
				return "$" + strconv.Itoa(idx)
			}
			args = append(args, value)
			indexes[name] = len(args)
			return "$" + strconv.Itoa(len(args))
		case Qmark:
			args = append(args, value)
			return "?"
		default:
			return ":" + name
		}
	})
	if err != nil {
		return "", nil, err
	}

	if !literal && style == Named {
		args = nil
		for _, name := range s.ParamNames() {
			args = append(args, s.Params[name])
		}
	}

	return sql, args, nil
}

// String renders the raw SQL followed by its parameters, for logging
func (s Statement) String() string {
	if len(s.Params) == 0 {
		return s.SQL
	}
	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, s.Params[k])
	}
	return s.SQL + " [" + strings.Join(parts, ", ") + "]"
}

// scanPlaceholders calls replace for every :name placeholder outside quoted
// strings, identifiers, comments and :: casts
func scanPlaceholders(sql string, replace func(name string) string) string {
	var b strings.Builder
	b.Grow(len(sql))

	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '\'' || c == '"':
			end := closingQuote(sql, i)
			b.WriteString(sql[i:end])
			i = end
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				end = len(sql)
			} else {
				end += i
			}
			b.WriteString(sql[i:end])
			i = end
		case c == ':' && i+1 < len(sql) && sql[i+1] == ':':
			b.WriteString("::")
			i += 2
		case c == ':' && i+1 < len(sql) && isIdentStart(sql[i+1]):
			j := i + 1
			for j < len(sql) && isIdentPart(sql[j]) {
				j++
			}
			b.WriteString(replace(sql[i+1 : j]))
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// closingQuote returns the index just past the quoted run starting at start.
// Doubled quotes are escapes.
func closingQuote(sql string, start int) int {
	quote := sql[start]
	for i := start + 1; i < len(sql); i++ {
		if sql[i] != quote {
			continue
		}
		if i+1 < len(sql) && sql[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(sql)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
