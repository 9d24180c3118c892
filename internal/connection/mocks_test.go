package connection

import (
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/edgecomet/eventrelay/internal/event"
)

var errTransportDown = errors.New("transport down")

// recordingConnection records sends and can fail selected events
type recordingConnection struct {
	mu         sync.Mutex
	sent       []string
	failIDs    map[string]bool
	closeCalls int
	closeErr   error
}

func newRecordingConnection() *recordingConnection {
	return &recordingConnection{failIDs: make(map[string]bool)}
}

func (r *recordingConnection) failOn(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failIDs[id] = true
}

func (r *recordingConnection) Send(ev *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent = append(r.sent, ev.ID)
	if r.failIDs[ev.ID] {
		return &DeliveryError{EventID: ev.ID, Transport: "test", Err: errTransportDown}
	}
	return nil
}

func (r *recordingConnection) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeCalls++
	return r.closeErr
}

func (r *recordingConnection) sentIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func (r *recordingConnection) closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeCalls
}

// blockingConnection blocks every Send until release is closed
type blockingConnection struct {
	recordingConnection
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingConnection() *blockingConnection {
	return &blockingConnection{
		recordingConnection: recordingConnection{failIDs: make(map[string]bool)},
		started:             make(chan struct{}),
		release:             make(chan struct{}),
	}
}

func (b *blockingConnection) Send(ev *event.Event) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.recordingConnection.Send(ev)
}

func (b *blockingConnection) unblock() {
	select {
	case <-b.release:
	default:
		close(b.release)
	}
}

// countingRecorder keeps Recorder calls for assertions
type countingRecorder struct {
	mu        sync.Mutex
	submitted int
	rejected  map[string]int
	delivered int
	failed    int
	abandoned int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{rejected: make(map[string]int)}
}

func (r *countingRecorder) RecordSubmitted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted++
}

func (r *countingRecorder) RecordRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected[reason]++
}

func (r *countingRecorder) RecordDelivered(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered++
}

func (r *countingRecorder) RecordFailed(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
}

func (r *countingRecorder) RecordAbandoned(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandoned += count
}

func (r *countingRecorder) SetQueueDepth(int) {}

type recorderCounts struct {
	submitted int
	rejected  map[string]int
	delivered int
	failed    int
	abandoned int
}

func (r *countingRecorder) snapshot() recorderCounts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorderCounts{
		submitted: r.submitted,
		delivered: r.delivered,
		failed:    r.failed,
		abandoned: r.abandoned,
		rejected:  maps.Clone(r.rejected),
	}
}

func newEvent(message string) *event.Event {
	return event.NewBuilder().WithMessage(message).WithServerName("test").Build()
}
