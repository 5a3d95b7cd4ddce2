package index

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/resolver"
)

// A query is a whitespace-separated list of terms, all of which must match:
//
//	*                    every document (same as an empty query)
//	word                 any text field contains word
//	field:value          keyword equality, keywords membership, text match
//	field:value*         keyword prefix
//	field:>=2024-01-01   datetime/numeric comparison (>, >=, <, <=, =)
//	field:"two words"    quoted values may contain spaces
//
// Besides schema fields, "fullname" and "path" are queryable as keywords.

type term struct {
	field string
	op    string
	value string
}

func tokenize(q string) ([]string, error) {
	var (
		out     []string
		cur     strings.Builder
		inQuote bool
		started bool
	)
	flush := func() {
		if started {
			out = append(out, cur.String())
		}
		cur.Reset()
		started = false
	}
	for _, r := range q {
		switch {
		case r == '"':
			inQuote = !inQuote
			started = true
		case unicode.IsSpace(r) && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("%w: unterminated quote in %q", apperr.ErrBadQuery, q)
	}
	flush()
	return out, nil
}

func parseQuery(q string) ([]term, error) {
	tokens, err := tokenize(q)
	if err != nil {
		return nil, err
	}
	var out []term
	for _, tok := range tokens {
		if tok == "*" || tok == "" {
			continue
		}
		field, value, ok := strings.Cut(tok, ":")
		if !ok || field == "" {
			out = append(out, term{value: tok})
			continue
		}
		t := term{field: field, op: "=", value: value}
		for _, op := range []string{">=", "<=", ">", "<", "="} {
			if strings.HasPrefix(value, op) {
				t.op, t.value = op, strings.TrimPrefix(value, op)
				break
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// where translates a query into an SQL condition over the docs table.
func where(s Schema, q string) (string, []any, error) {
	terms, err := parseQuery(q)
	if err != nil {
		return "", nil, err
	}
	if len(terms) == 0 {
		return "1 = 1", nil, nil
	}
	conds := make([]string, 0, len(terms))
	var args []any
	for _, t := range terms {
		cond, targs, err := termSQL(s, t)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, cond)
		args = append(args, targs...)
	}
	return strings.Join(conds, " AND "), args, nil
}

func termSQL(s Schema, t term) (string, []any, error) {
	if t.field == "" {
		text := s.textFields()
		if len(text) == 0 {
			return "", nil, fmt.Errorf("%w: no text fields for %q", apperr.ErrBadQuery, t.value)
		}
		cols := make([]string, len(text))
		for i, f := range text {
			cols[i] = f.column()
		}
		cond, args := textMatch(cols, t.value)
		return cond, args, nil
	}

	var f Field
	switch t.field {
	case "fullname", "path":
		f = Field{Name: t.field, Type: FieldKeyword}
	default:
		var ok bool
		if f, ok = s.Field(t.field); !ok {
			return "", nil, fmt.Errorf("%w: unknown field %q", apperr.ErrBadQuery, t.field)
		}
	}
	col := f.column()
	if t.field == "fullname" || t.field == "path" {
		col = t.field
	}

	if t.op != "=" && f.Type != FieldDateTime && f.Type != FieldNumeric {
		return "", nil, fmt.Errorf("%w: operator %q needs a datetime or numeric field, %q is %s",
			apperr.ErrBadQuery, t.op, f.Name, f.Type)
	}

	switch f.Type {
	case FieldKeyword:
		if strings.HasSuffix(t.value, "*") {
			return col + ` LIKE ? ESCAPE '\'`, []any{escapeLike(strings.TrimSuffix(t.value, "*")) + "%"}, nil
		}
		return col + " = ?", []any{t.value}, nil
	case FieldKeywords:
		return `(',' || ` + col + ` || ',') LIKE ? ESCAPE '\'`,
			[]any{"%" + KeywordSeparator + escapeLike(t.value) + KeywordSeparator + "%"}, nil
	case FieldText:
		cond, args := textMatch([]string{col}, t.value)
		return cond, args, nil
	case FieldDateTime:
		ts, ok := resolver.ParseTime(t.value)
		if !ok {
			return "", nil, fmt.Errorf("%w: %q is not a time", apperr.ErrBadQuery, t.value)
		}
		return col + " " + t.op + " ?", []any{ts}, nil
	case FieldNumeric:
		n, err := strconv.ParseFloat(t.value, 64)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %q is not a number", apperr.ErrBadQuery, t.value)
		}
		return col + " " + t.op + " ?", []any{n}, nil
	}
	return "", nil, fmt.Errorf("%w: field %q has unknown type %q", apperr.ErrBadQuery, f.Name, f.Type)
}

func orderBy(s Schema, sortField string, reverse bool) (string, error) {
	dir := "ASC"
	if reverse {
		dir = "DESC"
	}
	if sortField == "" || sortField == "fullname" {
		return "fullname " + dir, nil
	}
	f, ok := s.Field(sortField)
	if !ok || !f.Sortable {
		return "", fmt.Errorf("%w: %q is not a sortable field", apperr.ErrBadQuery, sortField)
	}
	return f.column() + " " + dir + ", fullname ASC", nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
