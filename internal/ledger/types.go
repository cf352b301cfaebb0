// Package ledger defines the domain model stored by the ledger: blocks,
// transactions and per-round delegate balances, plus the collaborator
// interfaces the store depends on (round arithmetic, payload codec).
package ledger

import (
	"math/big"
)

// TypeGroupCore is the namespace of built-in transaction types.
const TypeGroupCore = 1

// Built-in (core) transaction types.
const (
	TypeTransfer             = 0
	TypeSecondSignature      = 1
	TypeDelegateRegistration = 2
	TypeVote                 = 3
	TypeMultiSignature       = 4
	TypeIpfs                 = 5
	TypeMultiPayment         = 6
	TypeDelegateResignation  = 7
	TypeHtlcLock             = 8
	TypeHtlcClaim            = 9
	TypeHtlcRefund           = 10
)

// Block is a stored block header. Transactions is populated only by lookups
// that ask for it and by callers appending blocks.
type Block struct {
	ID                   string   `json:"id"`
	Version              int      `json:"version"`
	Timestamp            int64    `json:"timestamp"`
	PreviousBlock        string   `json:"previousBlock,omitempty"`
	Height               int64    `json:"height"`
	NumberOfTransactions int      `json:"numberOfTransactions"`
	TotalAmount          *big.Int `json:"totalAmount"`
	TotalFee             *big.Int `json:"totalFee"`
	Reward               *big.Int `json:"reward"`
	PayloadLength        int      `json:"payloadLength"`
	PayloadHash          string   `json:"payloadHash"`
	GeneratorPublicKey   string   `json:"generatorPublicKey"`
	BlockSignature       string   `json:"blockSignature"`

	Transactions []Transaction `json:"transactions,omitempty"`
}

// IsGenesis reports whether b has no parent.
func (b Block) IsGenesis() bool {
	return b.PreviousBlock == ""
}

// Transaction is a stored transaction.
//
// BlockID, BlockHeight, Sequence and Nonce are authoritative from storage:
// row conversion overwrites whatever the serialized payload says.
type Transaction struct {
	ID              string         `json:"id"`
	Version         int            `json:"version"`
	BlockID         string         `json:"blockId"`
	BlockHeight     int64          `json:"blockHeight"`
	Sequence        int            `json:"sequence"`
	Timestamp       int64          `json:"timestamp"`
	Nonce           *big.Int       `json:"nonce"`
	SenderPublicKey string         `json:"senderPublicKey"`
	RecipientID     string         `json:"recipientId,omitempty"`
	Type            int            `json:"type"`
	TypeGroup       int            `json:"typeGroup"`
	VendorField     string         `json:"vendorField,omitempty"`
	Amount          *big.Int       `json:"amount"`
	Fee             *big.Int       `json:"fee"`
	Serialized      []byte         `json:"-"`
	Asset           map[string]any `json:"asset,omitempty"`
}

// Is reports whether tx has the given type group and type.
func (tx Transaction) Is(typeGroup, typ int) bool {
	return tx.TypeGroup == typeGroup && tx.Type == typ
}

// LockTransactionID returns the HTLC lock referenced by a claim or refund.
func (tx Transaction) LockTransactionID() (string, bool) {
	var key string
	switch {
	case tx.Is(TypeGroupCore, TypeHtlcClaim):
		key = "claim"
	case tx.Is(TypeGroupCore, TypeHtlcRefund):
		key = "refund"
	default:
		return "", false
	}
	inner, ok := tx.Asset[key].(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := inner["lockTransactionId"].(string)
	return id, ok && id != ""
}

// Round is a delegate's vote-weight snapshot for one round.
type Round struct {
	PublicKey string   `json:"publicKey"`
	Round     int64    `json:"round"`
	Balance   *big.Int `json:"balance"`
}
