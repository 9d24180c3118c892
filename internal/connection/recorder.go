package connection

import "time"

// Rejection reasons reported to a Recorder
const (
	RejectReasonShutdown  = "shutdown"
	RejectReasonQueueFull = "queue_full"
	RejectReasonDropped   = "dropped_oldest"
)

// Recorder receives delivery metrics from AsyncConnection.
// Implementations must be safe for concurrent use.
type Recorder interface {
	RecordSubmitted()
	RecordRejected(reason string)
	RecordDelivered(duration time.Duration)
	RecordFailed(duration time.Duration)
	RecordAbandoned(count int)
	SetQueueDepth(depth int)
}

// NoopRecorder discards all metrics
type NoopRecorder struct{}

func (NoopRecorder) RecordSubmitted()              {}
func (NoopRecorder) RecordRejected(string)         {}
func (NoopRecorder) RecordDelivered(time.Duration) {}
func (NoopRecorder) RecordFailed(time.Duration)    {}
func (NoopRecorder) RecordAbandoned(int)           {}
func (NoopRecorder) SetQueueDepth(int)             {}
