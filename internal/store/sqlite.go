package store

import (
	"database/sql"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/ledgerdb/internal/canon"
)

// sqliteDriverName is mattn/go-sqlite3 with ledger functions registered on
// every connection.
const sqliteDriverName = "sqlite3_ledger"

func init() {
	sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("json_contains", jsonContains, true)
		},
	})
}

// jsonContains implements json_contains(doc, sub) with jsonb @> semantics.
// A NULL document contains nothing.
func jsonContains(doc, sub any) (bool, error) {
	docText, ok := sqliteText(doc)
	if !ok {
		return false, nil
	}
	subText, ok := sqliteText(sub)
	if !ok {
		return false, nil
	}

	d, err := canon.Decode(docText)
	if err != nil {
		return false, fmt.Errorf("json_contains: document: %w", err)
	}
	s, err := canon.Decode(subText)
	if err != nil {
		return false, fmt.Errorf("json_contains: value: %w", err)
	}
	return canon.Contains(d, s), nil
}

// sqliteText returns the text of a function argument. SQL NULL arrives as a
// nil byte slice.
func sqliteText(v any) ([]byte, bool) {
	switch t := v.(type) {
	case string:
		return []byte(t), true
	case []byte:
		return t, t != nil
	default:
		return nil, false
	}
}
