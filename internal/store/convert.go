package store

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/roach88/ledgerdb/internal/canon"
	"github.com/roach88/ledgerdb/internal/ledger"
	"github.com/roach88/ledgerdb/internal/querysql"
)

// kind is the stored representation of a property.
type kind int

const (
	kindText   kind = iota // TEXT / VARCHAR, NULL as ""
	kindInt                // INTEGER / BIGINT
	kindBig                // NUMERIC, bound as decimal text
	kindBytes              // BLOB / BYTEA
	kindVendor             // BLOB / BYTEA holding UTF-8 text
	kindJSON               // TEXT / JSONB object
)

// fields maps property names to decoded values.
type fields map[string]any

// column describes one mapped property.
type column struct {
	property string
	name     string
	kind     kind
}

func columnsMetadata(table string, cols []column) querysql.Metadata {
	m := querysql.Metadata{
		Table:    table,
		Columns:  make(map[string]string, len(cols)),
		Encoders: make(map[string]func(any) (any, error)),
	}
	for _, c := range cols {
		m.Columns[c.property] = c.name
		switch c.kind {
		case kindVendor:
			m.Encoders[c.property] = encodeVendorField
		case kindBig:
			m.Encoders[c.property] = encodeBig
		}
	}
	return m
}

var blockColumns = []column{
	{"id", "id", kindText},
	{"version", "version", kindInt},
	{"timestamp", "timestamp", kindInt},
	{"previousBlock", "previous_block", kindText},
	{"height", "height", kindInt},
	{"numberOfTransactions", "number_of_transactions", kindInt},
	{"totalAmount", "total_amount", kindBig},
	{"totalFee", "total_fee", kindBig},
	{"reward", "reward", kindBig},
	{"payloadLength", "payload_length", kindInt},
	{"payloadHash", "payload_hash", kindText},
	{"generatorPublicKey", "generator_public_key", kindText},
	{"blockSignature", "block_signature", kindText},
}

var transactionColumns = []column{
	{"id", "id", kindText},
	{"version", "version", kindInt},
	{"blockId", "block_id", kindText},
	{"blockHeight", "block_height", kindInt},
	{"sequence", "sequence", kindInt},
	{"timestamp", "timestamp", kindInt},
	{"nonce", "nonce", kindBig},
	{"senderPublicKey", "sender_public_key", kindText},
	{"recipientId", "recipient_id", kindText},
	{"type", "type", kindInt},
	{"typeGroup", "type_group", kindInt},
	{"vendorField", "vendor_field", kindVendor},
	{"amount", "amount", kindBig},
	{"fee", "fee", kindBig},
	{"serialized", "serialized", kindBytes},
	{"asset", "asset", kindJSON},
}

var roundColumns = []column{
	{"publicKey", "public_key", kindText},
	{"round", "round", kindInt},
	{"balance", "balance", kindBig},
}

var (
	blockMetadata       = columnsMetadata("blocks", blockColumns)
	transactionMetadata = columnsMetadata("transactions", transactionColumns)
	roundMetadata       = columnsMetadata("rounds", roundColumns)
)

// BlockMetadata returns the property/column mapping of blocks.
func BlockMetadata() querysql.Metadata { return blockMetadata }

// TransactionMetadata returns the property/column mapping of transactions.
func TransactionMetadata() querysql.Metadata { return transactionMetadata }

func encodeVendorField(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return []byte(s), nil
	case []byte:
		return s, nil
	default:
		return nil, fmt.Errorf("vendor field must be text, got %T", v)
	}
}

// encodeBig normalizes numeric criteria for big-integer columns.
func encodeBig(v any) (any, error) {
	switch n := v.(type) {
	case *big.Int:
		return n.String(), nil
	case json.Number:
		if _, ok := new(big.Int).SetString(string(n), 10); !ok {
			return nil, fmt.Errorf("not an integer: %s", n)
		}
		return string(n), nil
	case string:
		if _, ok := new(big.Int).SetString(n, 10); !ok {
			return nil, fmt.Errorf("not an integer: %q", n)
		}
		return n, nil
	default:
		return v, nil
	}
}

// decodeValue coerces a raw driver value into the property's domain type.
func decodeValue(k kind, raw any) (any, error) {
	switch k {
	case kindText:
		switch v := raw.(type) {
		case nil:
			return "", nil
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		default:
			return fmt.Sprint(v), nil
		}
	case kindInt:
		return toInt64(raw)
	case kindBig:
		return toBig(raw)
	case kindBytes:
		switch v := raw.(type) {
		case nil:
			return []byte(nil), nil
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		default:
			return nil, fmt.Errorf("expected bytes, got %T", raw)
		}
	case kindVendor:
		switch v := raw.(type) {
		case nil:
			return "", nil
		case []byte:
			return string(v), nil
		case string:
			return v, nil
		default:
			return nil, fmt.Errorf("expected bytes, got %T", raw)
		}
	case kindJSON:
		switch v := raw.(type) {
		case nil:
			return map[string]any(nil), nil
		case map[string]any:
			return v, nil
		case []byte:
			return canon.DecodeObject(v)
		case string:
			return canon.DecodeObject([]byte(v))
		default:
			return nil, fmt.Errorf("expected JSON, got %T", raw)
		}
	default:
		return nil, fmt.Errorf("unknown column kind %d", k)
	}
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}

func toBig(raw any) (*big.Int, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case int64:
		return big.NewInt(v), nil
	case float64:
		// SQLite stores integers beyond int64 as REAL.
		n, _ := new(big.Float).SetFloat64(v).Int(nil)
		return n, nil
	case []byte:
		return parseBig(string(v))
	case string:
		return parseBig(v)
	default:
		return nil, fmt.Errorf("expected big integer, got %T", raw)
	}
}

func parseBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid big integer %q", s)
	}
	return n, nil
}

// bigText renders a big integer for binding; nil is zero.
func bigText(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// blockToFields converts a block into stored column values.
func blockToFields(b ledger.Block) fields {
	return fields{
		"id":                   b.ID,
		"version":              int64(b.Version),
		"timestamp":            b.Timestamp,
		"previousBlock":        nullIfEmpty(b.PreviousBlock),
		"height":               b.Height,
		"numberOfTransactions": int64(b.NumberOfTransactions),
		"totalAmount":          bigText(b.TotalAmount),
		"totalFee":             bigText(b.TotalFee),
		"reward":               bigText(b.Reward),
		"payloadLength":        int64(b.PayloadLength),
		"payloadHash":          b.PayloadHash,
		"generatorPublicKey":   b.GeneratorPublicKey,
		"blockSignature":       b.BlockSignature,
	}
}

func blockFromFields(f fields) (ledger.Block, error) {
	return ledger.Block{
		ID:                   f.str("id"),
		Version:              int(f.int("version")),
		Timestamp:            f.int("timestamp"),
		PreviousBlock:        f.str("previousBlock"),
		Height:               f.int("height"),
		NumberOfTransactions: int(f.int("numberOfTransactions")),
		TotalAmount:          f.big("totalAmount"),
		TotalFee:             f.big("totalFee"),
		Reward:               f.big("reward"),
		PayloadLength:        int(f.int("payloadLength")),
		PayloadHash:          f.str("payloadHash"),
		GeneratorPublicKey:   f.str("generatorPublicKey"),
		BlockSignature:       f.str("blockSignature"),
	}, nil
}

// transactionToFields converts a transaction into stored column values,
// serializing the payload when the caller did not supply one.
func transactionToFields(codec ledger.TransactionCodec, tx ledger.Transaction) (fields, error) {
	serialized := tx.Serialized
	if len(serialized) == 0 {
		data, err := codec.Serialize(tx)
		if err != nil {
			return nil, err
		}
		serialized = data
	}

	var asset any
	if tx.Asset != nil {
		data, err := canon.Marshal(tx.Asset)
		if err != nil {
			return nil, fmt.Errorf("transaction %s asset: %w", tx.ID, err)
		}
		asset = string(data)
	}

	var vendor any
	if tx.VendorField != "" {
		vendor = []byte(tx.VendorField)
	}

	return fields{
		"id":              tx.ID,
		"version":         int64(tx.Version),
		"blockId":         tx.BlockID,
		"blockHeight":     tx.BlockHeight,
		"sequence":        int64(tx.Sequence),
		"timestamp":       tx.Timestamp,
		"nonce":           bigText(tx.Nonce),
		"senderPublicKey": tx.SenderPublicKey,
		"recipientId":     nullIfEmpty(tx.RecipientID),
		"type":            int64(tx.Type),
		"typeGroup":       int64(tx.TypeGroup),
		"vendorField":     vendor,
		"amount":          bigText(tx.Amount),
		"fee":             bigText(tx.Fee),
		"serialized":      serialized,
		"asset":           asset,
	}, nil
}

// transactionFromFields rebuilds a transaction. The serialized payload is
// decoded first; nonce, block id, block height and sequence are then taken
// from the row, which is authoritative for them.
func transactionFromFields(codec ledger.TransactionCodec, f fields) (ledger.Transaction, error) {
	var tx ledger.Transaction
	if serialized, _ := f["serialized"].([]byte); len(serialized) > 0 {
		decoded, err := codec.Deserialize(serialized)
		if err != nil {
			return ledger.Transaction{}, fmt.Errorf("transaction %s: %w", f.str("id"), err)
		}
		tx = decoded
	} else {
		tx = ledger.Transaction{
			ID:              f.str("id"),
			Version:         int(f.int("version")),
			Timestamp:       f.int("timestamp"),
			SenderPublicKey: f.str("senderPublicKey"),
			RecipientID:     f.str("recipientId"),
			Type:            int(f.int("type")),
			TypeGroup:       int(f.int("typeGroup")),
			VendorField:     f.str("vendorField"),
			Amount:          f.big("amount"),
			Fee:             f.big("fee"),
		}
		if asset, ok := f["asset"].(map[string]any); ok {
			tx.Asset = asset
		}
	}

	tx.Nonce = f.big("nonce")
	tx.BlockID = f.str("blockId")
	tx.BlockHeight = f.int("blockHeight")
	tx.Sequence = int(f.int("sequence"))
	return tx, nil
}

func roundToFields(r ledger.Round) fields {
	return fields{
		"publicKey": r.PublicKey,
		"round":     r.Round,
		"balance":   bigText(r.Balance),
	}
}

func roundFromFields(f fields) (ledger.Round, error) {
	return ledger.Round{
		PublicKey: f.str("publicKey"),
		Round:     f.int("round"),
		Balance:   f.big("balance"),
	}, nil
}

func (f fields) str(key string) string {
	s, _ := f[key].(string)
	return s
}

func (f fields) int(key string) int64 {
	n, _ := f[key].(int64)
	return n
}

func (f fields) big(key string) *big.Int {
	n, _ := f[key].(*big.Int)
	return n
}
