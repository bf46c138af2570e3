package ids

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// ObjectIDLength is the length of a hex-rendered object id.
const ObjectIDLength = 24

// Generator issues 12-byte object ids rendered as 24 lowercase hex chars:
// 4 bytes of big-endian unix seconds, 5 bytes of per-process randomness and
// a 3-byte counter that starts at a random offset.
//
// One Generator is the id authority for a process: user ids, pending
// provider user ids and grant codes all come from it, so two ids handed out
// by the same process never collide, and the random process part keeps
// separate instances apart.
type Generator struct {
	now     func() time.Time
	process [5]byte
	counter atomic.Uint32
}

// NewGenerator seeds a Generator from crypto/rand.
func NewGenerator() (*Generator, error) {
	return newGenerator(rand.Reader, time.Now)
}

func newGenerator(r io.Reader, now func() time.Time) (*Generator, error) {
	g := &Generator{now: now}
	if _, err := io.ReadFull(r, g.process[:]); err != nil {
		return nil, fmt.Errorf("seed object id process: %w", err)
	}
	var seed [4]byte
	if _, err := io.ReadFull(r, seed[:]); err != nil {
		return nil, fmt.Errorf("seed object id counter: %w", err)
	}
	g.counter.Store(binary.BigEndian.Uint32(seed[:]) & 0x00ffffff)
	return g, nil
}

// New returns the next object id.
func (g *Generator) New() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(g.now().Unix()))
	copy(b[4:9], g.process[:])

	c := g.counter.Add(1)
	b[9] = byte(c >> 16)
	b[10] = byte(c >> 8)
	b[11] = byte(c)

	return hex.EncodeToString(b[:])
}
