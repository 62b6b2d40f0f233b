// Package ident mints the short identifiers that name graphs and attached
// tables.
//
// An identifier is 8 characters drawn uniformly from [A-Za-z0-9]. With 62^8
// (~2.18e14) possible values, collisions are improbable enough that minting
// does not consult existing identifiers; stores that index by identifier
// still guard against duplicates on insert.
package ident

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Alphabet is the identifier symbol set, in the order used for sampling.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Length is the number of characters in a minted identifier.
const Length = 8

// maxAccept is the rejection-sampling cutoff: the largest multiple of
// len(Alphabet) that fits in a byte. Bytes at or above it are discarded so
// every symbol is equally likely.
const maxAccept = byte(len(Alphabet) * (256 / len(Alphabet))) // 248

// Minter produces identifiers from a random byte source. The zero value is
// not usable; construct with New or NewFrom.
type Minter struct {
	src io.Reader
}

// New returns a Minter backed by crypto/rand.
func New() *Minter {
	return &Minter{src: rand.Reader}
}

// NewFrom returns a Minter backed by the given byte source. Tests inject a
// seeded source here to make minted identifiers reproducible.
func NewFrom(src io.Reader) *Minter {
	return &Minter{src: src}
}

// Mint returns a fresh identifier. Each character is sampled independently
// and uniformly from Alphabet. The only failure mode is the underlying
// source failing to produce bytes.
func (m *Minter) Mint() (string, error) {
	out := make([]byte, 0, Length)
	buf := make([]byte, Length)
	for len(out) < Length {
		if _, err := io.ReadFull(m.src, buf); err != nil {
			return "", fmt.Errorf("ident: read random source: %w", err)
		}
		for _, b := range buf {
			if b >= maxAccept {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether s is a well-formed identifier: exactly Length
// characters, all from Alphabet.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
