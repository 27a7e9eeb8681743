// Package keyring implements data-key wrapping. A keyring either generates
// and wraps the data key for one encryption pass, or recovers it from the
// wrapped copies carried by a decryption request.
//
// All keyrings are immutable after construction and safe for concurrent use
// against independent materials objects.
package keyring

import (
	"context"
	"errors"

	"github.com/guided-traffic/envelope-keyring/pkg/materials"
)

// Keyring is the contract shared by every key-wrapping mechanism.
//
// OnEncrypt generates a data key if the materials do not hold one yet, wraps
// the (now present) key and appends exactly one EncryptedDataKey. Several
// keyrings may run against the same materials in sequence; only the first
// generates.
//
// OnDecrypt scans the request's candidates in order and fills the decryption
// materials from the first one it can unwrap. Candidates belonging to other
// keyrings are skipped, failed attempts are absorbed; OnDecrypt fails with
// ErrNoMatchingCandidate only after the whole scan comes up empty.
type Keyring interface {
	OnEncrypt(ctx context.Context, mat *materials.EncryptionMaterials) error
	OnDecrypt(ctx context.Context, req *materials.DecryptionRequest, mat *materials.DecryptionMaterials) error
}

var (
	// ErrConfiguration indicates the keyring is missing the key half needed
	// for the requested operation, or was otherwise misconfigured.
	ErrConfiguration = errors.New("keyring configuration error")

	// ErrUnsupportedPaddingOrKeySize indicates the data key does not fit the
	// wrapping key's modulus under the configured padding scheme.
	ErrUnsupportedPaddingOrKeySize = errors.New("data key too large for wrapping key and padding scheme")

	// ErrRandomSource indicates the secure random source failed while
	// generating a data key.
	ErrRandomSource = errors.New("random source failure")

	// ErrCipherOperation is the single opaque failure for any underlying
	// cipher error. No detail is attached so failed unwrap attempts cannot be
	// used as a padding oracle.
	ErrCipherOperation = errors.New("cipher operation failed")

	// ErrNoMatchingCandidate indicates a decrypt scan finished without
	// recovering a data key.
	ErrNoMatchingCandidate = errors.New("no encrypted data key could be unwrapped")

	// ErrInvariantViolation indicates the materials rejected a write, e.g. a
	// second data-key assignment. This is a bug in the calling sequence, not
	// a runtime condition.
	ErrInvariantViolation = errors.New("materials invariant violated")
)
