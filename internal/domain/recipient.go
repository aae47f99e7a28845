package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// RecipientID derives the tenant key for a creator from the platform's
// account id. Only the digest ever leaves the ingress: it is what appears in
// overlay URLs, queue keys and connection tags.
func RecipientID(accountID int64) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(accountID, 10)))
	return hex.EncodeToString(sum[:])
}

// IsRecipientID reports whether s has the shape produced by RecipientID.
func IsRecipientID(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// ShortID trims a recipient id for log lines.
func ShortID(recipientID string) string {
	if len(recipientID) <= 8 {
		return recipientID
	}
	return recipientID[:8]
}
