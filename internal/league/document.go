package league

import (
	"encoding/json"
	"strconv"
)

// Document is the raw ESPN league payload. Nothing about its shape is
// guaranteed, so every read goes through the accessors below.
//
// A value counts as absent when the key is missing, the value is null, or it
// is an empty string. Strings and numbers are the only present scalars;
// objects, arrays and booleans read as absent wherever text is expected.
type Document map[string]any

// Text returns the value at key as text, or "" when absent.
func (d Document) Text(key string) string {
	return text(d[key])
}

// Object returns the nested object at key, or nil.
func (d Document) Object(key string) Document {
	if m, ok := d[key].(map[string]any); ok {
		return Document(m)
	}
	return nil
}

// List returns the array at key, or nil when missing or not an array.
func (d Document) List(key string) []any {
	if l, ok := d[key].([]any); ok {
		return l
	}
	return nil
}

// ID returns the raw id value for echoing in output: a JSON number or a
// string, else nil.
func (d Document) ID() any {
	switch v := d["id"].(type) {
	case json.Number, string:
		return v
	case float64:
		return json.Number(strconv.FormatFloat(v, 'f', -1, 64))
	case int:
		return json.Number(strconv.Itoa(v))
	case int64:
		return json.Number(strconv.FormatInt(v, 10))
	default:
		return nil
	}
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// firstPresent returns the first non-empty value.
func firstPresent(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func objects(list []any) []Document {
	out := make([]Document, 0, len(list))
	for _, it := range list {
		if m, ok := it.(map[string]any); ok {
			out = append(out, Document(m))
		}
	}
	return out
}
