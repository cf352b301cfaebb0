// Package canon implements the deterministic JSON encoding used for
// everything the ledger hashes or compares structurally: transaction assets,
// containment parameters, the default transaction payload codec and
// content-addressed block/transaction ids.
//
// The encoding follows RFC 8785:
//   - object keys sorted by UTF-16 code units
//   - no HTML escaping, U+2028/U+2029 emitted literally
//   - strings NFC normalized
//   - integers only; floats are rejected
//
// Values are the shapes produced by encoding/json with UseNumber: nil,
// bool, string, json.Number, []any and map[string]any, plus Go integers and
// *big.Int for convenience.
package canon
