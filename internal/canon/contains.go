package canon

import (
	"encoding/json"
	"math/big"
)

// Contains reports whether doc structurally contains sub, with the same
// rules as the PostgreSQL jsonb @> operator:
//   - objects: every key of sub exists in doc and its value is contained
//   - arrays: every element of sub is contained in some element of doc
//   - scalars: equal (numbers compared numerically)
//
// A top-level array also contains a bare scalar that is one of its elements.
func Contains(doc, sub any) bool {
	if arr, ok := doc.([]any); ok {
		if _, subIsArr := sub.([]any); !subIsArr {
			if _, subIsObj := sub.(map[string]any); !subIsObj {
				for _, elem := range arr {
					if scalarEqual(elem, sub) {
						return true
					}
				}
				return false
			}
		}
	}
	return contains(doc, sub)
}

func contains(doc, sub any) bool {
	switch s := sub.(type) {
	case map[string]any:
		d, ok := doc.(map[string]any)
		if !ok {
			return false
		}
		for k, sv := range s {
			dv, ok := d[k]
			if !ok || !contains(dv, sv) {
				return false
			}
		}
		return true
	case []any:
		d, ok := doc.([]any)
		if !ok {
			return false
		}
		for _, sv := range s {
			found := false
			for _, dv := range d {
				if contains(dv, sv) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return scalarEqual(doc, sub)
	}
}

func scalarEqual(a, b any) bool {
	an, aNum := number(a)
	bn, bNum := number(b)
	if aNum || bNum {
		return aNum && bNum && an.Cmp(bn) == 0
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func number(v any) (*big.Float, bool) {
	switch n := v.(type) {
	case json.Number:
		f, ok := new(big.Float).SetString(string(n))
		return f, ok
	case float64:
		return big.NewFloat(n), true
	case int:
		return new(big.Float).SetInt64(int64(n)), true
	case int64:
		return new(big.Float).SetInt64(n), true
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return new(big.Float).SetInt(n), true
	}
	return nil, false
}
