// Package codec generates opaque grant codes and obscures them for transport
// in URLs.
//
// A code has the shape HC-<object id>-<9 digit nonce>. Codes that travel in
// e-mailed links are wrapped in three rounds of unpadded base64url. The
// wrapping keeps raw codes out of casual view in logs and referrers; it is
// not a cryptographic protection.
package codec

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"strconv"
	"strings"
)

const (
	// Prefix starts every code.
	Prefix = "HC-"
	// Length is the exact length of a well-formed code.
	Length = 37

	nonceOffset = 28
	encodeLoops = 3
)

const (
	nonceMin   int64 = 100_000_000
	nonceSpan  int64 = 1_000_000_000
	nonceLimit int64 = 10_000_000_000
	nonceMask        = 1<<30 - 1
)

// ErrInvalidCode is returned for malformed codes and undecodable wrappers.
var ErrInvalidCode = errors.New("invalid code format")

// IDSource hands out 24 char object ids.
type IDSource interface {
	New() string
}

// Codec generates codes from an id source and a random reader.
type Codec struct {
	ids    IDSource
	random io.Reader
}

// New returns a Codec drawing nonces from crypto/rand.
func New(ids IDSource) *Codec {
	return &Codec{ids: ids, random: rand.Reader}
}

// Generate returns a fresh code. The nonce is redrawn until it has exactly
// nine digits.
func (c *Codec) Generate() (string, error) {
	nonce, err := c.nonce()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(Length)
	b.WriteString(Prefix)
	b.WriteString(c.ids.New())
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(nonce, 10))
	return b.String(), nil
}

func (c *Codec) nonce() (int64, error) {
	var buf [4]byte
	for {
		if _, err := io.ReadFull(c.random, buf[:]); err != nil {
			return 0, err
		}
		v := int64(binary.BigEndian.Uint32(buf[:]) & nonceMask)
		if v >= nonceMin && v < nonceSpan {
			return v, nil
		}
	}
}

// IsValid reports whether code has length 37, starts with HC- and carries a
// nonce in [10^8, 10^10).
func IsValid(code string) bool {
	if len(code) != Length || !strings.HasPrefix(code, Prefix) {
		return false
	}
	nonce, err := strconv.ParseInt(code[nonceOffset:], 10, 64)
	if err != nil {
		return false
	}
	return nonce >= nonceMin && nonce < nonceLimit
}

// Validate returns ErrInvalidCode when code is malformed.
func Validate(code string) error {
	if !IsValid(code) {
		return ErrInvalidCode
	}
	return nil
}

// Encode wraps value in three rounds of unpadded base64url.
func Encode(value string) string {
	out := value
	for i := 0; i < encodeLoops; i++ {
		out = base64.RawURLEncoding.EncodeToString([]byte(out))
	}
	return out
}

// Decode inverts Encode. The unwrapped value must be a well-formed code.
func Decode(value string) (string, error) {
	out := value
	for i := 0; i < encodeLoops; i++ {
		raw, err := base64.RawURLEncoding.DecodeString(out)
		if err != nil {
			return "", ErrInvalidCode
		}
		out = string(raw)
	}
	if !IsValid(out) {
		return "", ErrInvalidCode
	}
	return out, nil
}

// EncodeState renders a code as a single-round base64url provider state.
func EncodeState(code string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(code))
}

// DecodeState inverts EncodeState and validates the result.
func DecodeState(state string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return "", ErrInvalidCode
	}
	code := string(raw)
	if !IsValid(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}

// Fingerprint returns a short, log-safe handle for a code.
func Fingerprint(code string) string {
	if !IsValid(code) {
		return "invalid"
	}
	return code[len(Prefix) : len(Prefix)+8]
}
