// Package filter translates entity criteria into optimized expressions,
// applying the chain's domain rules on top of the mechanical mapping.
package filter

import (
	"context"
	"log/slog"

	"github.com/roach88/ledgerdb/internal/criteria"
	"github.com/roach88/ledgerdb/internal/expr"
	"github.com/roach88/ledgerdb/internal/ledger"
)

// BlockFilter builds expressions over block properties.
type BlockFilter struct {
	fields []criteria.Field
}

// NewBlockFilter creates a BlockFilter.
func NewBlockFilter() *BlockFilter {
	return &BlockFilter{fields: []criteria.Field{
		{Name: "id", Handle: criteria.Equal("id")},
		{Name: "version", Handle: criteria.Equal("version")},
		{Name: "timestamp", Handle: criteria.Numeric("timestamp")},
		{Name: "previousBlock", Handle: criteria.Equal("previousBlock")},
		{Name: "height", Handle: criteria.Numeric("height")},
		{Name: "numberOfTransactions", Handle: criteria.Numeric("numberOfTransactions")},
		{Name: "totalAmount", Handle: criteria.Numeric("totalAmount")},
		{Name: "totalFee", Handle: criteria.Numeric("totalFee")},
		{Name: "reward", Handle: criteria.Numeric("reward")},
		{Name: "payloadLength", Handle: criteria.Numeric("payloadLength")},
		{Name: "payloadHash", Handle: criteria.Equal("payloadHash")},
		{Name: "generatorPublicKey", Handle: criteria.Equal("generatorPublicKey")},
		{Name: "blockSignature", Handle: criteria.Equal("blockSignature")},
	}}
}

// Expression returns the optimized expression for records.
// No records means no constraint.
func (f *BlockFilter) Expression(ctx context.Context, records criteria.OrRecords) (expr.Expression, error) {
	return build(ctx, records, func(ctx context.Context, r criteria.Record) (expr.Expression, error) {
		return criteria.HandleRecord(ctx, r, f.fields)
	})
}

// TransactionFilter builds expressions over transaction properties.
//
// Address criteria (senderId, recipientId, address) are resolved through
// the wallet finder. A failed or erroring lookup is never an error: it
// narrows the expression instead.
type TransactionFilter struct {
	wallets WalletFinder
	logger  *slog.Logger
	fields  []criteria.Field
}

// NewTransactionFilter creates a TransactionFilter. A nil logger uses
// slog.Default().
func NewTransactionFilter(wallets WalletFinder, logger *slog.Logger) *TransactionFilter {
	if logger == nil {
		logger = slog.Default()
	}
	f := &TransactionFilter{wallets: wallets, logger: logger}
	f.fields = []criteria.Field{
		{Name: "address", Handle: f.handleAddress},
		{Name: "senderId", Handle: f.handleSenderID},
		{Name: "recipientId", Handle: f.handleRecipientID},
		{Name: "id", Handle: criteria.Equal("id")},
		{Name: "version", Handle: criteria.Equal("version")},
		{Name: "blockId", Handle: criteria.Equal("blockId")},
		{Name: "blockHeight", Handle: criteria.Numeric("blockHeight")},
		{Name: "sequence", Handle: criteria.Numeric("sequence")},
		{Name: "timestamp", Handle: criteria.Numeric("timestamp")},
		{Name: "nonce", Handle: criteria.Numeric("nonce")},
		{Name: "senderPublicKey", Handle: criteria.Equal("senderPublicKey")},
		{Name: "type", Handle: criteria.Equal("type")},
		{Name: "typeGroup", Handle: criteria.Equal("typeGroup")},
		{Name: "vendorField", Handle: criteria.Like("vendorField")},
		{Name: "amount", Handle: criteria.Numeric("amount")},
		{Name: "fee", Handle: criteria.Numeric("fee")},
		{Name: "asset", Handle: criteria.Contains("asset")},
	}
	return f
}

// Expression returns the optimized expression for records.
// No records means no constraint.
func (f *TransactionFilter) Expression(ctx context.Context, records criteria.OrRecords) (expr.Expression, error) {
	return build(ctx, records, f.handleRecord)
}

// handleRecord adds typeGroup = CORE when type is constrained alone: a bare
// type code means the built-in type.
func (f *TransactionFilter) handleRecord(ctx context.Context, r criteria.Record) (expr.Expression, error) {
	e, err := criteria.HandleRecord(ctx, r, f.fields)
	if err != nil {
		return nil, err
	}
	// Nil criteria constrain nothing.
	if r["type"] != nil && r["typeGroup"] == nil {
		return expr.NewAnd(e, expr.Equal{Property: "typeGroup", Value: ledger.TypeGroupCore}), nil
	}
	return e, nil
}

// handleSenderID matches transactions signed by the address's public key.
// An unresolvable address matches nothing.
func (f *TransactionFilter) handleSenderID(ctx context.Context, c criteria.Criteria) (expr.Expression, error) {
	address, err := addressValue("senderId", c)
	if err != nil {
		return nil, err
	}
	w, ok := f.resolve(ctx, address)
	if !ok {
		return expr.False{}, nil
	}
	return expr.Equal{Property: "senderPublicKey", Value: w.PublicKey}, nil
}

// handleRecipientID also matches the address's own delegate registration,
// which has no stored recipient.
func (f *TransactionFilter) handleRecipientID(ctx context.Context, c criteria.Criteria) (expr.Expression, error) {
	address, err := addressValue("recipientId", c)
	if err != nil {
		return nil, err
	}
	direct := expr.Equal{Property: "recipientId", Value: address}

	w, ok := f.resolve(ctx, address)
	if !ok {
		return direct, nil
	}
	return expr.NewOr(
		direct,
		expr.NewAnd(
			expr.Equal{Property: "typeGroup", Value: ledger.TypeGroupCore},
			expr.Equal{Property: "type", Value: ledger.TypeDelegateRegistration},
			expr.Equal{Property: "senderPublicKey", Value: w.PublicKey},
		),
	), nil
}

// handleAddress matches transactions sent or received by the address.
func (f *TransactionFilter) handleAddress(ctx context.Context, c criteria.Criteria) (expr.Expression, error) {
	sender, err := f.handleSenderID(ctx, c)
	if err != nil {
		return nil, err
	}
	recipient, err := f.handleRecipientID(ctx, c)
	if err != nil {
		return nil, err
	}
	return expr.NewOr(sender, recipient), nil
}

func (f *TransactionFilter) resolve(ctx context.Context, address string) (Wallet, bool) {
	if f.wallets == nil {
		return Wallet{}, false
	}
	w, found, err := f.wallets.FindByAddress(ctx, address)
	if err != nil {
		f.logger.Debug("wallet lookup failed", "address", address, "error", err)
		return Wallet{}, false
	}
	if !found || w.PublicKey == "" {
		return Wallet{}, false
	}
	return w, true
}

func addressValue(field string, c criteria.Criteria) (string, error) {
	v, ok := c.(criteria.Value)
	if !ok {
		return "", &criteria.InvalidError{Field: field, Message: "expected an address"}
	}
	address, ok := v.V.(string)
	if !ok {
		return "", &criteria.InvalidError{Field: field, Message: "address must be text"}
	}
	return address, nil
}

func build(ctx context.Context, records criteria.OrRecords, and func(context.Context, criteria.Record) (expr.Expression, error)) (expr.Expression, error) {
	if len(records) == 0 {
		return expr.True{}, nil
	}
	e, err := criteria.HandleOrRecords(ctx, records, and)
	if err != nil {
		return nil, err
	}
	return expr.Optimize(e), nil
}
