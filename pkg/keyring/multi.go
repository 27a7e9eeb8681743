package keyring

import (
	"context"
	"fmt"

	"github.com/guided-traffic/envelope-keyring/pkg/materials"
)

// MultiKeyring fans one encryption pass out to several keyrings so a single
// data key ends up wrapped under each of them. The generator runs first and
// is the only keyring allowed to generate; the children wrap the key it
// produced. On decrypt the generator and children are tried in order until
// one succeeds.
type MultiKeyring struct {
	generator Keyring
	children  []Keyring
}

// NewMultiKeyring builds a multi-keyring. The generator may be nil, in which
// case the materials must already hold a data key when OnEncrypt runs (some
// other keyring generated it earlier in the pass).
func NewMultiKeyring(generator Keyring, children ...Keyring) *MultiKeyring {
	return &MultiKeyring{generator: generator, children: children}
}

// OnEncrypt runs the generator, then every child, aborting on the first
// failure.
func (m *MultiKeyring) OnEncrypt(ctx context.Context, mat *materials.EncryptionMaterials) error {
	if m.generator == nil && !mat.HasDataKey() {
		return fmt.Errorf("%w: multi-keyring has no generator and materials hold no data key", ErrConfiguration)
	}

	if m.generator != nil {
		if err := m.generator.OnEncrypt(ctx, mat); err != nil {
			return fmt.Errorf("multi-keyring generator: %w", err)
		}
	}
	for i, child := range m.children {
		if err := child.OnEncrypt(ctx, mat); err != nil {
			return fmt.Errorf("multi-keyring child %d: %w", i, err)
		}
	}
	return nil
}

// OnDecrypt tries the generator and then each child until one fills the
// materials. A member's failure to find a candidate is absorbed; members are
// independent and any one of them may hold the only usable key.
func (m *MultiKeyring) OnDecrypt(ctx context.Context, req *materials.DecryptionRequest, mat *materials.DecryptionMaterials) error {
	if mat.HasDataKey() {
		return nil
	}

	members := make([]Keyring, 0, len(m.children)+1)
	if m.generator != nil {
		members = append(members, m.generator)
	}
	members = append(members, m.children...)

	for _, member := range members {
		if err := member.OnDecrypt(ctx, req, mat); err != nil {
			continue
		}
		if mat.HasDataKey() {
			return nil
		}
	}

	return ErrNoMatchingCandidate
}
