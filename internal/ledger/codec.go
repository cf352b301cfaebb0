package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/roach88/ledgerdb/internal/canon"
)

// TransactionCodec converts between a transaction and its serialized
// payload. The node's cryptographic codec plugs in here; the store only
// needs the round trip.
type TransactionCodec interface {
	Serialize(tx Transaction) ([]byte, error)
	Deserialize(data []byte) (Transaction, error)
}

// CanonicalCodec serializes the signed fields of a transaction as canonical
// JSON. Storage-owned fields (block id, height, sequence) are not part of
// the payload.
type CanonicalCodec struct{}

var _ TransactionCodec = CanonicalCodec{}

// Serialize encodes tx's payload fields.
func (CanonicalCodec) Serialize(tx Transaction) ([]byte, error) {
	payload := map[string]any{
		"id":              tx.ID,
		"version":         tx.Version,
		"timestamp":       tx.Timestamp,
		"nonce":           bigOrZero(tx.Nonce),
		"senderPublicKey": tx.SenderPublicKey,
		"type":            tx.Type,
		"typeGroup":       tx.TypeGroup,
		"amount":          bigOrZero(tx.Amount),
		"fee":             bigOrZero(tx.Fee),
	}
	if tx.RecipientID != "" {
		payload["recipientId"] = tx.RecipientID
	}
	if tx.VendorField != "" {
		payload["vendorField"] = tx.VendorField
	}
	if tx.Asset != nil {
		payload["asset"] = tx.Asset
	}

	data, err := canon.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serialize transaction %s: %w", tx.ID, err)
	}
	return data, nil
}

// Deserialize decodes a payload produced by Serialize.
func (CanonicalCodec) Deserialize(data []byte) (Transaction, error) {
	obj, err := canon.DecodeObject(data)
	if err != nil {
		return Transaction{}, fmt.Errorf("deserialize transaction: %w", err)
	}
	if obj == nil {
		return Transaction{}, fmt.Errorf("deserialize transaction: empty payload")
	}

	d := payloadDecoder{obj: obj}
	tx := Transaction{
		ID:              d.str("id"),
		Version:         int(d.int("version")),
		Timestamp:       d.int("timestamp"),
		Nonce:           d.big("nonce"),
		SenderPublicKey: d.str("senderPublicKey"),
		RecipientID:     d.str("recipientId"),
		Type:            int(d.int("type")),
		TypeGroup:       int(d.int("typeGroup")),
		VendorField:     d.str("vendorField"),
		Amount:          d.big("amount"),
		Fee:             d.big("fee"),
		Serialized:      data,
	}
	if asset, ok := obj["asset"].(map[string]any); ok {
		tx.Asset = asset
	}
	if d.err != nil {
		return Transaction{}, fmt.Errorf("deserialize transaction: %w", d.err)
	}
	return tx, nil
}

// payloadDecoder reads typed fields and keeps the first error.
type payloadDecoder struct {
	obj map[string]any
	err error
}

func (d *payloadDecoder) str(key string) string {
	v, ok := d.obj[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok && d.err == nil {
		d.err = fmt.Errorf("%s: expected string, got %T", key, v)
	}
	return s
}

func (d *payloadDecoder) int(key string) int64 {
	n, ok := d.obj[key].(json.Number)
	if !ok {
		if _, present := d.obj[key]; present && d.err == nil {
			d.err = fmt.Errorf("%s: expected number, got %T", key, d.obj[key])
		}
		return 0
	}
	i, err := n.Int64()
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("%s: %w", key, err)
	}
	return i
}

func (d *payloadDecoder) big(key string) *big.Int {
	n, ok := d.obj[key].(json.Number)
	if !ok {
		if d.err == nil {
			d.err = fmt.Errorf("%s: expected number", key)
		}
		return nil
	}
	b, ok := new(big.Int).SetString(string(n), 10)
	if !ok && d.err == nil {
		d.err = fmt.Errorf("%s: invalid integer %q", key, n)
	}
	return b
}

func bigOrZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}

// TransactionID derives a deterministic id from the payload.
func TransactionID(c TransactionCodec, tx Transaction) (string, error) {
	tx.ID = ""
	data, err := c.Serialize(tx)
	if err != nil {
		return "", err
	}
	return canon.HashWithDomain(canon.DomainTransaction, data), nil
}

// BlockID derives a deterministic id from the header fields.
func BlockID(b Block) (string, error) {
	return canon.ID(canon.DomainBlock, map[string]any{
		"version":              b.Version,
		"timestamp":            b.Timestamp,
		"previousBlock":        b.PreviousBlock,
		"height":               b.Height,
		"numberOfTransactions": b.NumberOfTransactions,
		"totalAmount":          bigOrZero(b.TotalAmount),
		"totalFee":             bigOrZero(b.TotalFee),
		"reward":               bigOrZero(b.Reward),
		"payloadLength":        b.PayloadLength,
		"payloadHash":          b.PayloadHash,
		"generatorPublicKey":   b.GeneratorPublicKey,
	})
}
