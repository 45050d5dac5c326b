package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/madcrx/FADirect/internal/domain"
)

// Fingerprint returns a short hex fingerprint of a public key.
//
// It hashes with SHA-256 and truncates to 10 bytes (20 hex chars).
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:10])
}

// IdentityFingerprint renders an identity key for out-of-band comparison,
// grouped in blocks of four characters.
func IdentityFingerprint(key domain.IdentityPublicKey) domain.Fingerprint {
	fp := Fingerprint(key.Bytes())
	groups := make([]string, 0, len(fp)/4)
	for i := 0; i < len(fp); i += 4 {
		groups = append(groups, fp[i:i+4])
	}
	return domain.Fingerprint(strings.Join(groups, " "))
}
