package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed ids.
// Version suffix enables future algorithm migration.
const (
	DomainBlock       = "ledgerdb/block/v1"
	DomainTransaction = "ledgerdb/transaction/v1"
)

// HashWithDomain computes SHA-256 with domain separation and returns it as
// 64 lowercase hex characters.
// Format: SHA256(domain + 0x00 + data)
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ID hashes the canonical encoding of v under domain.
func ID(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%s id: %w", domain, err)
	}
	return HashWithDomain(domain, data), nil
}
