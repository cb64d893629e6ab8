// Package scriptenv provides the Starlark execution environment shared by the
// Mongo expression evaluator and the sandbox child process: value conversion,
// database accessor globals, and deadline-raced evaluation.
package scriptenv

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"
)

// ToStarlark converts a JSON-shaped Go value into a Starlark value.
func ToStarlark(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case string:
		return starlark.String(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int32:
		return starlark.MakeInt64(int64(val)), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case time.Time:
		return starlark.String(val.UTC().Format(time.RFC3339)), nil
	case []interface{}:
		items := make([]starlark.Value, 0, len(val))
		for _, item := range val {
			converted, err := ToStarlark(item)
			if err != nil {
				return nil, err
			}
			items = append(items, converted)
		}
		return starlark.NewList(items), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for key, item := range val {
			converted, err := ToStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(key), converted); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to starlark value", v)
	}
}

// FromStarlark converts a Starlark value into a JSON-shaped Go value.
func FromStarlark(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.String:
		return string(val), nil
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return i, nil
		}
		return nil, fmt.Errorf("integer %s out of range", val.String())
	case starlark.Float:
		return float64(val), nil
	case *starlark.List:
		return fromStarlarkSequence(val.Len(), val.Index)
	case starlark.Tuple:
		return fromStarlarkSequence(val.Len(), val.Index)
	case *starlark.Dict:
		out := make(map[string]interface{}, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be a string, got %s", item[0].Type())
			}
			converted, err := FromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			out[string(key)] = converted
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot convert starlark %s to a plain value", v.Type())
	}
}

func fromStarlarkSequence(n int, index func(int) starlark.Value) (interface{}, error) {
	out := make([]interface{}, 0, n)
	for i := 0; i < n; i++ {
		converted, err := FromStarlark(index(i))
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}
