// Package manager orchestrates keyrings for complete encryption and
// decryption passes: it allocates the materials, runs the configured keyring
// and checks the post-conditions the rest of the system relies on.
package manager

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/envelope-keyring/pkg/keyring"
	"github.com/guided-traffic/envelope-keyring/pkg/materials"
	"github.com/guided-traffic/envelope-keyring/pkg/suite"
)

// MaterialsManager produces encryption materials for new messages and
// recovers decryption materials for existing ones.
type MaterialsManager interface {
	GetEncryptionMaterials(ctx context.Context, alg suite.AlgorithmID) (*materials.EncryptionMaterials, error)
	DecryptMaterials(ctx context.Context, req *materials.DecryptionRequest) (*materials.DecryptionMaterials, error)
}

// Default is the straightforward manager: one keyring (possibly a
// multi-keyring), no caching, every call is a fresh pass.
type Default struct {
	keyring keyring.Keyring
	logger  *logrus.Entry
}

// NewDefault creates a manager around the given keyring.
func NewDefault(kr keyring.Keyring) (*Default, error) {
	if kr == nil {
		return nil, fmt.Errorf("%w: materials manager requires a keyring", keyring.ErrConfiguration)
	}
	return &Default{
		keyring: kr,
		logger:  logrus.WithField("component", "materials_manager"),
	}, nil
}

// GetEncryptionMaterials runs one encryption pass and verifies the keyring
// produced a data key and at least one wrapped copy.
func (m *Default) GetEncryptionMaterials(ctx context.Context, alg suite.AlgorithmID) (*materials.EncryptionMaterials, error) {
	mat, err := materials.NewEncryptionMaterials(alg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keyring.ErrConfiguration, err)
	}

	if err := m.keyring.OnEncrypt(ctx, mat); err != nil {
		return nil, fmt.Errorf("keyring encrypt pass failed: %w", err)
	}

	if !mat.HasDataKey() {
		return nil, fmt.Errorf("%w: encrypt pass finished without a data key", keyring.ErrInvariantViolation)
	}
	if len(mat.EncryptedDataKeys()) == 0 {
		return nil, fmt.Errorf("%w: encrypt pass finished without any wrapped key", keyring.ErrInvariantViolation)
	}

	m.logger.WithFields(logrus.Fields{
		"algorithm": alg.String(),
		"edk_count": len(mat.EncryptedDataKeys()),
	}).Debug("Produced encryption materials")

	return mat, nil
}

// DecryptMaterials runs one decryption pass over the request's candidates.
func (m *Default) DecryptMaterials(ctx context.Context, req *materials.DecryptionRequest) (*materials.DecryptionMaterials, error) {
	mat, err := materials.NewDecryptionMaterials(req.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keyring.ErrConfiguration, err)
	}

	if err := m.keyring.OnDecrypt(ctx, req, mat); err != nil {
		m.logger.WithFields(logrus.Fields{
			"algorithm":       req.Algorithm.String(),
			"candidate_count": len(req.EncryptedDataKeys),
		}).Debug("Decrypt pass failed")
		return nil, fmt.Errorf("keyring decrypt pass failed: %w", err)
	}

	if !mat.HasDataKey() {
		return nil, fmt.Errorf("%w: decrypt pass reported success without a data key", keyring.ErrInvariantViolation)
	}

	m.logger.WithFields(logrus.Fields{
		"algorithm":       req.Algorithm.String(),
		"candidate_count": len(req.EncryptedDataKeys),
	}).Debug("Recovered decryption materials")

	return mat, nil
}
