package daemon

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/drip/pkg/history"
	"github.com/charlie0129/drip/pkg/watering"
)

const historyQueueSize = 32

// historyRecorder turns timer transitions into cycle rows. Transitions are
// queued so the timer lock is never held across a database write.
type historyRecorder struct {
	store *history.Store
	ch    chan watering.Transition
	done  chan struct{}

	mu     sync.Mutex
	closed bool

	// current is the open cycle ID. Only the run goroutine touches it.
	current string
}

func newHistoryRecorder(store *history.Store) *historyRecorder {
	r := &historyRecorder{
		store: store,
		ch:    make(chan watering.Transition, historyQueueSize),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *historyRecorder) enqueue(tr watering.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	select {
	case r.ch <- tr:
	default:
		logrus.WithField("reason", string(tr.Reason)).Warn("history queue full, dropping transition")
	}
}

func (r *historyRecorder) run() {
	defer close(r.done)
	for tr := range r.ch {
		r.apply(tr)
	}
}

func (r *historyRecorder) apply(tr watering.Transition) {
	switch tr.Reason {
	case watering.ReasonStarted:
		r.begin(tr)
	case watering.ReasonRearmed:
		r.end(string(watering.ReasonRearmed), tr)
		r.begin(tr)
	case watering.ReasonStopped, watering.ReasonExpired:
		r.end(string(tr.Reason), tr)
	}
}

func (r *historyRecorder) begin(tr watering.Transition) {
	id, err := r.store.Begin(tr.Interval.Token(), tr.Interval.Millis()/1000, tr.At)
	if err != nil {
		logrus.Errorf("failed to record watering cycle start: %v", err)
		return
	}
	r.current = id
	logrus.WithFields(logrus.Fields{
		"id":       id,
		"interval": tr.Interval.Token(),
	}).Debug("watering cycle recorded")
}

func (r *historyRecorder) end(reason string, tr watering.Transition) {
	if r.current == "" {
		return
	}
	if err := r.store.End(r.current, reason, tr.At); err != nil {
		logrus.Errorf("failed to record end of watering cycle %s: %v", r.current, err)
	}
	r.current = ""
}

// close drains the queue and waits for pending writes.
func (r *historyRecorder) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	<-r.done
}
