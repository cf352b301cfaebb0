package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerdb/internal/criteria"
	"github.com/roach88/ledgerdb/internal/querysql"
)

// searchFlags holds the flags shared by search commands.
type searchFlags struct {
	Criteria string   // JSON document, or @path to read one
	Sort     []string // property[:asc|desc], primary key first
	Limit    int
	Offset   int
	Estimate bool
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Criteria, "criteria", "", `criteria as JSON, or @file (e.g. '{"height":{"from":10}}')`)
	cmd.Flags().StringSliceVar(&f.Sort, "sort", nil, "sort keys as property[:asc|desc]")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "page size (0 uses listing.default_limit)")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "rows to skip")
	cmd.Flags().BoolVar(&f.Estimate, "estimate", false, "report the planner's row estimate instead of an exact count")
}

// parse decodes the criteria and sort flags.
func (f *searchFlags) parse() (criteria.OrRecords, []querysql.Sort, error) {
	if f.Offset < 0 {
		return nil, nil, NewExitError(ExitCommandError, "offset must be non-negative")
	}

	var records criteria.OrRecords
	if doc := strings.TrimSpace(f.Criteria); doc != "" {
		data := []byte(doc)
		if path, ok := strings.CutPrefix(doc, "@"); ok {
			var err error
			data, err = os.ReadFile(path)
			if err != nil {
				return nil, nil, WrapExitError(ExitCommandError, "failed to read criteria file", err)
			}
		}
		var err error
		records, err = criteria.Parse(data)
		if err != nil {
			return nil, nil, err
		}
	}

	sorting := make([]querysql.Sort, 0, len(f.Sort))
	for _, s := range f.Sort {
		parsed, err := querysql.ParseSort(s)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid sort %q", s), err)
		}
		sorting = append(sorting, parsed)
	}
	return records, sorting, nil
}

// countLabel renders a total count, marking estimates.
func countLabel(total int64, estimate bool) string {
	if estimate {
		return fmt.Sprintf("~%d", total)
	}
	return fmt.Sprint(total)
}
