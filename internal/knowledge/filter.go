package knowledge

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	eqerrors "eventqual/internal/errors"
)

// Normalized operator names.
const (
	opEqual       = "equal"
	opNotEqual    = "notequal"
	opGreaterThan = "greaterthan"
	opLessThan    = "lessthan"
	opContainsAny = "containsany"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Properties stored as columns; everything else lives in the metadata JSON.
var filterColumns = map[string]string{
	"id":               "id",
	"text":             "content",
	"content":          "content",
	"content_hash":     "content_hash",
	"url":              "url",
	"title":            "title",
	"snippet":          "snippet",
	"source":           "source",
	"search_query":     "search_query",
	"search_timestamp": "search_timestamp",
	"result_index":     "result_index",
	"ingestion_date":   "ingestion_date",
	"tool":             "tool",
}

// normalizeOperator lowercases and strips '-' and '_', so "Not-Equal",
// "not_equal" and "NotEqual" all match. Unknown operators become equal.
func normalizeOperator(op string) string {
	n := strings.ToLower(op)
	n = strings.ReplaceAll(n, "-", "")
	n = strings.ReplaceAll(n, "_", "")
	switch n {
	case opEqual, opGreaterThan, opLessThan, opContainsAny:
		return n
	case opNotEqual, "notequalto":
		return opNotEqual
	default:
		return opEqual
	}
}

// buildFilter renders f as a SQL condition plus its arguments.
func buildFilter(f *Filter) (string, []any, error) {
	if f == nil || f.Property == "" {
		return "", nil, nil
	}
	if !identifierRe.MatchString(f.Property) {
		return "", nil, eqerrors.Newf(eqerrors.EInvalidInput, "knowledge.filter", "invalid property name %q", f.Property)
	}

	column, ok := filterColumns[strings.ToLower(f.Property)]
	if !ok {
		column = fmt.Sprintf("json_extract(metadata, '$.%s')", f.Property)
	}

	op := normalizeOperator(f.Operator)
	values, isList := asList(f.Value)
	if op == opContainsAny && !isList {
		op = opEqual
	}

	switch op {
	case opContainsAny:
		if len(values) == 0 {
			return "1 = 0", nil, nil
		}
		parts := make([]string, len(values))
		args := make([]any, len(values))
		for i, v := range values {
			parts[i] = column + ` LIKE ? ESCAPE '\'`
			args[i] = "%" + escapeLike(fmt.Sprint(v)) + "%"
		}
		return "(" + strings.Join(parts, " OR ") + ")", args, nil
	case opNotEqual:
		return column + " != ?", []any{scalarArg(f.Value)}, nil
	case opGreaterThan:
		return column + " > ?", []any{scalarArg(f.Value)}, nil
	case opLessThan:
		return column + " < ?", []any{scalarArg(f.Value)}, nil
	default:
		return column + " = ?", []any{scalarArg(f.Value)}, nil
	}
}

func asList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// scalarArg turns a filter value into something database/sql can bind.
func scalarArg(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64:
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
