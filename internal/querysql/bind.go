package querysql

import (
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/ledgerdb/internal/canon"
)

// placeholderPattern matches :pN references. The leading group keeps
// Postgres casts (x::text) from matching.
var placeholderPattern = regexp.MustCompile(`(^|[^:]):p(\d+)`)

// Rebind rewrites :pN references into the dialect's positional placeholders
// and returns the arguments in matching order.
//
// Positions are assigned in order of first appearance; a reference used
// twice binds the same argument.
func Rebind(d Dialect, query string, params map[string]any) (string, []any, error) {
	positions := make(map[string]int)
	var args []any
	var missing error

	var b strings.Builder
	last := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(query, -1) {
		// loc[2:4] is the prefix group, loc[4:6] the number.
		name := "p" + query[loc[4]:loc[5]]
		pos, ok := positions[name]
		if !ok {
			v, found := params[name]
			if !found && missing == nil {
				missing = fmt.Errorf("rebind: no value for :%s", name)
			}
			nv, err := bindValue(v)
			if err != nil && missing == nil {
				missing = fmt.Errorf("rebind :%s: %w", name, err)
			}
			args = append(args, nv)
			pos = len(args)
			positions[name] = pos
		}
		b.WriteString(query[last:loc[3]])
		b.WriteString(d.Placeholder(pos))
		last = loc[1]
	}
	b.WriteString(query[last:])

	if missing != nil {
		return "", nil, missing
	}
	if len(positions) != len(params) {
		return "", nil, fmt.Errorf("rebind: %d parameters supplied, %d referenced", len(params), len(positions))
	}
	if args == nil {
		args = []any{}
	}
	return b.String(), args, nil
}

// bindValue converts values the drivers do not accept natively.
// Big integers travel as decimal text; the NUMERIC column affinity (SQLite)
// or type (Postgres) turns them back into numbers.
func bindValue(v any) (any, error) {
	switch val := v.(type) {
	case *big.Int:
		if val == nil {
			return nil, nil
		}
		return val.String(), nil
	case json.Number:
		if _, err := strconv.ParseInt(string(val), 10, 64); err == nil {
			return val.Int64()
		}
		return string(val), nil
	case int:
		return int64(val), nil
	case map[string]any, []any:
		data, err := canon.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	default:
		return v, nil
	}
}
