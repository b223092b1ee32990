package verifier

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/tanq16/rangeget/internal/types"
)

// Sum returns the lowercase hex SHA-256 of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify compares the digest of data against expectedHex, ignoring case and
// surrounding whitespace. An empty expectation is NotApplicable; the digest is
// still computed so callers can report it.
func Verify(data []byte, expectedHex string) types.VerificationOutcome {
	out := types.VerificationOutcome{
		Expected: strings.ToLower(strings.TrimSpace(expectedHex)),
		Computed: Sum(data),
	}
	switch {
	case out.Expected == "":
		out.Status = types.VerificationNotApplicable
	case out.Expected == out.Computed:
		out.Status = types.VerificationMatch
	default:
		out.Status = types.VerificationMismatch
	}
	return out
}
