/**
 * @description
 * Webhook signature verification for Payscribe deposit notifications.
 *
 * Payscribe signs each webhook by concatenating the shared secret with the
 * sender account number, the destination virtual account number, the
 * destination bank code, the amount, and the transaction id, in that order,
 * with no delimiter, then taking the SHA-512 digest of the UTF-8 bytes,
 * rendered as uppercase hex in the payload's `transaction_hash` field.
 *
 * The amount must be hashed exactly as the aggregator serialized it, which is
 * why callers pass the raw JSON number token rather than a parsed value.
 */

package app

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// ComputeTransactionHash returns the uppercase-hex SHA-512 digest of the
// canonical field concatenation for a deposit webhook.
func ComputeTransactionHash(secret, senderAccount, accountNumber, bankCode, amount, transID string) string {
	sum := sha512.Sum512([]byte(secret + senderAccount + accountNumber + bankCode + amount + transID))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifyTransactionHash reports whether the supplied signature matches the
// expected digest. Comparison is case-insensitive on the hex encoding and
// constant-time on the normalized bytes; no prefix or fuzzy matching.
func VerifyTransactionHash(expected, supplied string) bool {
	supplied = strings.ToUpper(strings.TrimSpace(supplied))
	if len(supplied) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}
