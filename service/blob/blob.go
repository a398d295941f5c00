// Package blob provides the content-addressed object store used for snapshot
// roots and effect payloads.  Content is immutable: a ref is the blake2b-256
// digest of the bytes it names, so a successful Get can never observe a
// different value than the one originally Put.
package blob

import (
	"context"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// Ref is an opaque content reference (hex blake2b-256 digest).
type Ref string

// ErrNotFound is returned when the requested content is absent.
var ErrNotFound = errors.New("blob: not found")

// Store abstracts content-addressed persistence.
type Store interface {
	// Put persists bytes and returns their content ref.  Storing the same
	// bytes twice is a no-op returning the same ref.
	Put(ctx context.Context, data []byte) (Ref, error)

	// Get returns the bytes named by ref or ErrNotFound.
	Get(ctx context.Context, ref Ref) ([]byte, error)

	// Exists reports whether ref resolves without fetching its content.
	Exists(ctx context.Context, ref Ref) (bool, error)
}

// RefOf computes the content ref for the supplied bytes.
func RefOf(data []byte) Ref {
	digest := blake2b.Sum256(data)
	return Ref(hex.EncodeToString(digest[:]))
}
