package password

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
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"

	// DefaultMaxPasswordBytes caps plaintexts when Config.MaxLength is zero.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrPasswordTooShort is returned when the plaintext is below Config.MinLength.
	ErrPasswordTooShort = errors.New("password is too short")
	// ErrPasswordTooLong is returned when the plaintext exceeds the byte cap.
	ErrPasswordTooLong = errors.New("password is too long")
	// ErrSaltTooShort is returned when a caller-supplied salt is below 16 bytes.
	ErrSaltTooShort = errors.New("password salt is too short")
	// ErrInvalidDigest is returned when a stored digest cannot be parsed.
	ErrInvalidDigest = errors.New("invalid password digest")
)

// Config holds Argon2id cost parameters.
//
// SaltLength is the size produced by NewSalt. MinLength is a byte-length
// floor on plaintexts; zero disables it. MaxLength caps plaintexts and
// defaults to DefaultMaxPasswordBytes.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	MaxLength   int
}

// DefaultConfig returns the production parameters with a 32-byte salt.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  32,
		KeyLength:   32,
	}
}

// Argon2 hashes and verifies passwords. It is safe for concurrent use.
type Argon2 struct {
	config Config
	random io.Reader
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
	keyLength   uint32
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	if cfg.MaxLength == 0 {
		cfg.MaxLength = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg, random: rand.Reader}, nil
}

// NewSalt returns SaltLength random bytes.
func (a *Argon2) NewSalt() ([]byte, error) {
	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(a.random, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// EncodeSalt renders a salt the way it is stored on user records.
func EncodeSalt(salt []byte) string {
	return base64.StdEncoding.EncodeToString(salt)
}

// Hash derives a PHC-encoded digest of plain using the caller's salt.
//
// Plaintext bytes are used exactly as given, without Unicode normalization.
func (a *Argon2) Hash(plain string, salt []byte) (string, error) {
	if len(plain) < a.config.MinLength {
		return "", ErrPasswordTooShort
	}
	if len(plain) > a.config.MaxLength {
		return "", ErrPasswordTooLong
	}
	if len(salt) < int(minSaltLength) {
		return "", ErrSaltTooShort
	}

	hash := argon2.IDKey(
		[]byte(plain),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(hash),
	), nil
}

// Verify reports whether plain matches digest. The comparison is constant
// time; a malformed digest yields ErrInvalidDigest.
func (a *Argon2) Verify(digest, plain string) (bool, error) {
	if len(plain) > a.config.MaxLength {
		return false, ErrPasswordTooLong
	}
	parsed, err := parsePHC(digest)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}

	computed := argon2.IDKey(
		[]byte(plain),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		parsed.keyLength,
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsUpgrade reports whether digest was produced with weaker parameters
// than the hasher's current config.
func (a *Argon2) NeedsUpgrade(digest string) (bool, error) {
	parsed, err := parsePHC(digest)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}

	switch {
	case a.config.Memory > parsed.memory,
		a.config.Time > parsed.time,
		a.config.Parallelism > parsed.parallelism,
		a.config.KeyLength != parsed.keyLength:
		return true, nil
	}
	return false, nil
}

func parsePHC(digest string) (*parsedPHC, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, errors.New("missing argon2 version")
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt")
	}

	hash, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return nil, errors.New("invalid hash")
	}

	return &parsedPHC{
		memory:      params.memory,
		time:        params.time,
		parallelism: params.parallelism,
		salt:        salt,
		hash:        hash,
		keyLength:   uint32(len(hash)),
	}, nil
}

type parsedParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func parseParams(part string) (*parsedParams, error) {
	var (
		params parsedParams
		seen   = map[string]bool{}
	)

	for _, pair := range strings.Split(part, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || seen[key] {
			return nil, errors.New("invalid parameter entry")
		}
		seen[key] = true

		switch key {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return nil, errors.New("invalid memory parameter")
			}
			params.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return nil, errors.New("invalid time parameter")
			}
			params.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return nil, errors.New("invalid parallelism parameter")
			}
			params.parallelism = uint8(v)
		default:
			return nil, errors.New("unsupported parameter")
		}
	}

	if !seen["m"] || !seen["t"] || !seen["p"] {
		return nil, errors.New("missing parameters")
	}
	return &params, nil
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	if cfg.MinLength < 0 {
		return errors.New("password min length must be >= 0")
	}
	if cfg.MaxLength < 0 || (cfg.MaxLength > 0 && cfg.MaxLength < cfg.MinLength) {
		return errors.New("password max length must be >= min length")
	}

	return nil
}
