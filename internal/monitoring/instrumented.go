package monitoring

import (
	"context"
	"time"

	"github.com/guided-traffic/envelope-keyring/pkg/manager"
	"github.com/guided-traffic/envelope-keyring/pkg/materials"
	"github.com/guided-traffic/envelope-keyring/pkg/suite"
)

// InstrumentedManager decorates a MaterialsManager with operation counters
// and latency histograms.
type InstrumentedManager struct {
	delegate manager.MaterialsManager
}

// InstrumentManager wraps delegate with metrics collection.
func InstrumentManager(delegate manager.MaterialsManager) *InstrumentedManager {
	return &InstrumentedManager{delegate: delegate}
}

// GetEncryptionMaterials records the outcome and latency of a wrap pass.
func (m *InstrumentedManager) GetEncryptionMaterials(ctx context.Context, alg suite.AlgorithmID) (*materials.EncryptionMaterials, error) {
	start := time.Now()
	mat, err := m.delegate.GetEncryptionMaterials(ctx, alg)
	WrapDuration.WithLabelValues(alg.String()).Observe(time.Since(start).Seconds())
	WrapOperationsTotal.WithLabelValues(alg.String(), statusLabel(err)).Inc()
	return mat, err
}

// DecryptMaterials records the outcome and latency of an unwrap pass.
func (m *InstrumentedManager) DecryptMaterials(ctx context.Context, req *materials.DecryptionRequest) (*materials.DecryptionMaterials, error) {
	start := time.Now()
	mat, err := m.delegate.DecryptMaterials(ctx, req)
	UnwrapDuration.WithLabelValues(req.Algorithm.String()).Observe(time.Since(start).Seconds())
	UnwrapOperationsTotal.WithLabelValues(req.Algorithm.String(), statusLabel(err)).Inc()
	return mat, err
}
