package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
)

// ErrMalformedToken is returned for strings that are not a version 4 UUID.
var ErrMalformedToken = errors.New("malformed recovery token")

// RecoveryToken is the opaque value mailed to a subject and its storage
// digest. Only Hash is ever persisted.
type RecoveryToken struct {
	Value string
	Hash  [32]byte
}

// NewRecoveryToken draws a random UUIDv4 from crypto/rand.
func NewRecoveryToken() (RecoveryToken, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return RecoveryToken{}, err
	}
	value := id.String()
	return RecoveryToken{Value: value, Hash: HashRecoveryToken(value)}, nil
}

// ParseRecoveryToken accepts any textual UUID form, requires version 4,
// and returns the digest of the canonical form.
func ParseRecoveryToken(raw string) ([32]byte, error) {
	id, err := uuid.Parse(raw)
	if err != nil || id.Version() != 4 {
		return [32]byte{}, ErrMalformedToken
	}
	return HashRecoveryToken(id.String()), nil
}

// HashRecoveryToken digests a canonical token string.
func HashRecoveryToken(value string) [32]byte {
	return sha256.Sum256([]byte(value))
}

// HashHex renders a digest for use inside storage keys.
func HashHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
