package criteria

import (
	"fmt"

	"github.com/roach88/ledgerdb/internal/canon"
)

// Parse decodes criteria from JSON. The document is either one record
// object or an array of record objects (OR).
func Parse(data []byte) (OrRecords, error) {
	v, err := canon.Decode(data)
	if err != nil {
		return nil, &InvalidError{Message: err.Error()}
	}
	return FromDocument(v)
}

// FromDocument converts a decoded JSON or YAML document into records.
func FromDocument(v any) (OrRecords, error) {
	switch doc := v.(type) {
	case map[string]any:
		r, err := RecordFrom(doc)
		if err != nil {
			return nil, err
		}
		return OrRecords{r}, nil
	case []any:
		records := make(OrRecords, 0, len(doc))
		for i, item := range doc {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, invalid("", "element %d: expected an object, got %T", i, item)
			}
			r, err := RecordFrom(obj)
			if err != nil {
				return nil, err
			}
			records = append(records, r)
		}
		return records, nil
	default:
		return nil, invalid("", "expected an object or array, got %T", v)
	}
}

// RecordFrom converts one decoded object into a Record.
func RecordFrom(obj map[string]any) (Record, error) {
	r := make(Record, len(obj))
	for field, raw := range obj {
		c, err := FromValue(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		r[field] = c
	}
	return r, nil
}

// FromValue classifies one field's raw value:
//   - an object whose keys are only "from" and/or "to" is a Range
//   - an array is AnyOf
//   - anything else (including other objects) is a Value
func FromValue(raw any) (Criteria, error) {
	switch v := raw.(type) {
	case []any:
		list := make(AnyOf, 0, len(v))
		for _, item := range v {
			c, err := FromValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, c)
		}
		return list, nil
	case map[string]any:
		if isRange(v) {
			return Range{From: v["from"], To: v["to"]}, nil
		}
		return Value{V: v}, nil
	default:
		return Value{V: raw}, nil
	}
}

func isRange(obj map[string]any) bool {
	if len(obj) == 0 {
		return false
	}
	for k := range obj {
		if k != "from" && k != "to" {
			return false
		}
	}
	return true
}
