package querysql

import (
	"regexp"
	"strconv"
)

var rowsPattern = regexp.MustCompile(`rows=(\d+)`)

// ParseRowEstimate extracts the planner's row estimate from EXPLAIN output.
//
// The first rows=<N> occurrence is used: Postgres prints the top plan node
// first, and that node's estimate is the one for the whole query. Nested
// scan nodes further down carry estimates for partial inputs only.
func ParseRowEstimate(plan string) (int64, bool) {
	m := rowsPattern.FindStringSubmatch(plan)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
