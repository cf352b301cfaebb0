package testutil

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/roach88/ledgerdb/internal/canon"
	"github.com/roach88/ledgerdb/internal/ledger"
)

// DefaultGenerator is the generator public key of forged test blocks.
const DefaultGenerator = "03generator0000000000000000000000000000000000000000000000000000000"

// ChainBuilder assembles a linked, internally consistent chain for tests.
//
// Transactions are queued with Add, which fills nonce, timestamp and id,
// and sealed into the next block by Forge. Heights start at 1, each block
// links to the previous one, and per-sender nonces increase by one.
//
// Invalid inputs (an asset that cannot be encoded) panic: the builder only
// runs inside tests.
type ChainBuilder struct {
	codec     ledger.TransactionCodec
	clock     *SlotClock
	generator string
	reward    *big.Int

	blocks  []ledger.Block
	pending []ledger.Transaction
	nonces  map[string]int64
}

// NewChainBuilder creates a builder using the canonical codec, timestamps
// from 1000 in DefaultBlockTime slots, and a zero block reward.
func NewChainBuilder() *ChainBuilder {
	return &ChainBuilder{
		codec:     ledger.CanonicalCodec{},
		clock:     NewSlotClock(1000, DefaultBlockTime),
		generator: DefaultGenerator,
		reward:    new(big.Int),
		nonces:    make(map[string]int64),
	}
}

// WithGenerator sets the generator of subsequently forged blocks.
func (b *ChainBuilder) WithGenerator(publicKey string) *ChainBuilder {
	b.generator = publicKey
	return b
}

// WithReward sets the reward of subsequently forged blocks.
func (b *ChainBuilder) WithReward(reward int64) *ChainBuilder {
	b.reward = big.NewInt(reward)
	return b
}

// Add queues tx for the next block and returns it with its nonce,
// timestamp, sequence and id filled in.
func (b *ChainBuilder) Add(tx ledger.Transaction) ledger.Transaction {
	b.nonces[tx.SenderPublicKey]++
	tx.Nonce = big.NewInt(b.nonces[tx.SenderPublicKey])
	tx.Timestamp = b.clock.Current()
	tx.Sequence = len(b.pending)
	if tx.Version == 0 {
		tx.Version = 2
	}
	if tx.Amount == nil {
		tx.Amount = new(big.Int)
	}
	if tx.Fee == nil {
		tx.Fee = new(big.Int)
	}

	id, err := ledger.TransactionID(b.codec, tx)
	if err != nil {
		panic(fmt.Sprintf("testutil: transaction id: %v", err))
	}
	tx.ID = id

	b.pending = append(b.pending, tx)
	return tx
}

// Forge seals the queued transactions into the next block and returns it.
func (b *ChainBuilder) Forge() ledger.Block {
	block := ledger.Block{
		Version:              0,
		Timestamp:            b.clock.Next(),
		Height:               int64(len(b.blocks)) + 1,
		NumberOfTransactions: len(b.pending),
		TotalAmount:          new(big.Int),
		TotalFee:             new(big.Int),
		Reward:               new(big.Int).Set(b.reward),
		GeneratorPublicKey:   b.generator,
	}
	if len(b.blocks) > 0 {
		block.PreviousBlock = b.blocks[len(b.blocks)-1].ID
	}

	ids := make([]string, len(b.pending))
	for i, tx := range b.pending {
		block.TotalAmount.Add(block.TotalAmount, tx.Amount)
		block.TotalFee.Add(block.TotalFee, tx.Fee)
		ids[i] = tx.ID
	}
	payload := strings.Join(ids, "")
	block.PayloadLength = len(payload) / 2
	block.PayloadHash = canon.HashWithDomain("ledgerdb/payload/v1", []byte(payload))

	id, err := ledger.BlockID(block)
	if err != nil {
		panic(fmt.Sprintf("testutil: block id: %v", err))
	}
	block.ID = id
	block.BlockSignature = canon.HashWithDomain("ledgerdb/signature/v1", []byte(id+b.generator))

	block.Transactions = make([]ledger.Transaction, len(b.pending))
	for i, tx := range b.pending {
		tx.BlockID = id
		tx.BlockHeight = block.Height
		block.Transactions[i] = tx
	}
	b.pending = nil
	b.blocks = append(b.blocks, block)
	return block
}

// ForgeEmpty forges n blocks without transactions.
func (b *ChainBuilder) ForgeEmpty(n int) []ledger.Block {
	out := make([]ledger.Block, n)
	for i := range out {
		out[i] = b.Forge()
	}
	return out
}

// Blocks returns every forged block in height order.
func (b *ChainBuilder) Blocks() []ledger.Block {
	return append([]ledger.Block(nil), b.blocks...)
}

// Rewind drops every forged block above height and any queued
// transactions, so forging continues from the block at height. Timestamps
// and nonces keep increasing.
func (b *ChainBuilder) Rewind(height int64) {
	if height < 0 {
		height = 0
	}
	if height < int64(len(b.blocks)) {
		b.blocks = b.blocks[:height]
	}
	b.pending = nil
}

// Tip returns the last forged block.
func (b *ChainBuilder) Tip() ledger.Block {
	if len(b.blocks) == 0 {
		return ledger.Block{}
	}
	return b.blocks[len(b.blocks)-1]
}

// Transfer builds a core transfer.
func Transfer(sender, recipient string, amount, fee int64) ledger.Transaction {
	return ledger.Transaction{
		SenderPublicKey: sender,
		RecipientID:     recipient,
		TypeGroup:       ledger.TypeGroupCore,
		Type:            ledger.TypeTransfer,
		Amount:          big.NewInt(amount),
		Fee:             big.NewInt(fee),
	}
}

// DelegateRegistration builds a core delegate registration.
func DelegateRegistration(sender, username string, fee int64) ledger.Transaction {
	return ledger.Transaction{
		SenderPublicKey: sender,
		TypeGroup:       ledger.TypeGroupCore,
		Type:            ledger.TypeDelegateRegistration,
		Fee:             big.NewInt(fee),
		Asset:           map[string]any{"delegate": map[string]any{"username": username}},
	}
}

// HtlcLock builds an HTLC lock escrowing amount for recipient.
func HtlcLock(sender, recipient string, amount, fee int64) ledger.Transaction {
	return ledger.Transaction{
		SenderPublicKey: sender,
		RecipientID:     recipient,
		TypeGroup:       ledger.TypeGroupCore,
		Type:            ledger.TypeHtlcLock,
		Amount:          big.NewInt(amount),
		Fee:             big.NewInt(fee),
		Asset: map[string]any{"lock": map[string]any{
			"secretHash": canon.HashWithDomain("ledgerdb/secret/v1", []byte(sender+recipient)),
			"expiration": map[string]any{"type": 1, "value": 100},
		}},
	}
}

// HtlcClaim builds a claim of lockID.
func HtlcClaim(sender, lockID string, fee int64) ledger.Transaction {
	return ledger.Transaction{
		SenderPublicKey: sender,
		TypeGroup:       ledger.TypeGroupCore,
		Type:            ledger.TypeHtlcClaim,
		Fee:             big.NewInt(fee),
		Asset: map[string]any{"claim": map[string]any{
			"lockTransactionId": lockID,
			"unlockSecret":      "secret-" + lockID[:8],
		}},
	}
}

// HtlcRefund builds a refund of lockID.
func HtlcRefund(sender, lockID string, fee int64) ledger.Transaction {
	return ledger.Transaction{
		SenderPublicKey: sender,
		TypeGroup:       ledger.TypeGroupCore,
		Type:            ledger.TypeHtlcRefund,
		Fee:             big.NewInt(fee),
		Asset:           map[string]any{"refund": map[string]any{"lockTransactionId": lockID}},
	}
}
