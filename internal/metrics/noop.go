package metrics

import (
	"time"

	"github.com/and161185/socialkeeper/internal/model"
)

// NoopMetrics discards every event.
type NoopMetrics struct{}

var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation recorder.
func NewNoopMetrics() Recorder { return &NoopMetrics{} }

func (n *NoopMetrics) RecordOperation(string, time.Duration) {}
func (n *NoopMetrics) RecordBackendError(string)             {}
func (n *NoopMetrics) RecordValueWrite(string)               {}
func (n *NoopMetrics) RecordReconcile(model.ReconcileStats)  {}
func (n *NoopMetrics) RecordStatus(string)                   {}
