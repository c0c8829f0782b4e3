package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithm = "argon2id"

	minMemoryKB   uint32 = 8 * 1024
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
)

var (
	// ErrTooShort is returned by Hash when the secret is below MinLength.
	ErrTooShort = errors.New("credential too short")
	// ErrMalformedHash is returned by Verify for strings that are not argon2id PHC.
	ErrMalformedHash = errors.New("malformed credential hash")
)

// Config holds Argon2id cost parameters and the minimum secret length.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MinLength is measured in bytes of the raw secret.
	MinLength int
}

// DefaultConfig is tuned for interactive logins on a small server.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        1,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   6,
	}
}

// Validate rejects parameters below the safe floor.
func (c Config) Validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("credential: memory must be >= %d KB", minMemoryKB)
	case c.Time < 1:
		return errors.New("credential: time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("credential: parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("credential: salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("credential: key length must be >= %d", minKeyLength)
	case c.MinLength < 1:
		return errors.New("credential: min length must be >= 1")
	}
	return nil
}

// Hasher produces and checks Argon2id PHC strings:
//
//	$argon2id$v=19$m=65536,t=1,p=2$<salt>$<key>
type Hasher struct {
	cfg Config
}

// NewHasher validates cfg and returns a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Hasher{cfg: cfg}, nil
}

// CheckPolicy applies the length rule without hashing.
func (h *Hasher) CheckPolicy(secret string) error {
	if len(secret) < h.cfg.MinLength {
		return ErrTooShort
	}
	return nil
}

// Hash encodes secret with a fresh random salt.
func (h *Hasher) Hash(secret string) (string, error) {
	if err := h.CheckPolicy(secret); err != nil {
		return "", err
	}

	salt := make([]byte, h.cfg.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(secret), salt, h.cfg.Time, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)

	var b strings.Builder
	b.Grow(96)
	b.WriteString("$" + algorithm)
	b.WriteString("$v=" + strconv.Itoa(argon2.Version))
	b.WriteString("$m=" + strconv.FormatUint(uint64(h.cfg.Memory), 10))
	b.WriteString(",t=" + strconv.FormatUint(uint64(h.cfg.Time), 10))
	b.WriteString(",p=" + strconv.FormatUint(uint64(h.cfg.Parallelism), 10))
	b.WriteString("$" + base64.RawStdEncoding.EncodeToString(salt))
	b.WriteString("$" + base64.RawStdEncoding.EncodeToString(key))
	return b.String(), nil
}

// Verify reports whether secret matches encoded.
func (h *Hasher) Verify(secret, encoded string) (bool, error) {
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(secret), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the Hasher's current configuration.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return p.memory < h.cfg.Memory ||
		p.time < h.cfg.Time ||
		p.parallelism < h.cfg.Parallelism ||
		uint32(len(p.key)) != h.cfg.KeyLength, nil
}

type params struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func decode(encoded string) (params, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != algorithm {
		return params{}, ErrMalformedHash
	}
	if fields[2] != "v="+strconv.Itoa(argon2.Version) {
		return params{}, fmt.Errorf("%w: version %q", ErrMalformedHash, fields[2])
	}

	var p params
	for _, kv := range strings.Split(fields[3], ",") {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return params{}, ErrMalformedHash
		}
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return params{}, ErrMalformedHash
		}
		switch name {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			if n > 255 {
				return params{}, ErrMalformedHash
			}
			p.parallelism = uint8(n)
		default:
			return params{}, ErrMalformedHash
		}
	}
	if p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return params{}, ErrMalformedHash
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return params{}, ErrMalformedHash
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil || len(p.key) == 0 {
		return params{}, ErrMalformedHash
	}
	return p, nil
}
