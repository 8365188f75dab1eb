package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// stallGrace is added to the tick interval before a gap between two ticks
// counts as a stall.
const stallGrace = time.Second

// TimeSeriesRecorder records the last N tick times.
type TimeSeriesRecorder struct {
	MaxRecordCount int
	Interval       time.Duration
	LastTickTimes  []time.Time
	mu             *sync.Mutex
}

// NewTimeSeriesRecorder returns a new TimeSeriesRecorder for a loop that
// runs every interval.
func NewTimeSeriesRecorder(maxRecordCount int, interval time.Duration) *TimeSeriesRecorder {
	return &TimeSeriesRecorder{
		MaxRecordCount: maxRecordCount,
		Interval:       interval,
		LastTickTimes:  make([]time.Time, 0),
		mu:             &sync.Mutex{},
	}
}

// AddRecord adds a new record and returns the gap since the previous one,
// or zero if this is the first record.
func (r *TimeSeriesRecorder) AddRecord(t time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	var gap time.Duration
	if n := len(r.LastTickTimes); n > 0 {
		gap = t.Sub(r.LastTickTimes[n-1])
	}

	if len(r.LastTickTimes) >= r.MaxRecordCount {
		r.LastTickTimes = r.LastTickTimes[1:]
	}
	r.LastTickTimes = append(r.LastTickTimes, t)
	return gap
}

// GetRecordsIn returns the number of continuous records in the last duration.
func (r *TimeSeriesRecorder) GetRecordsIn(last time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit := r.Interval + stallGrace

	// The last record must be within the last duration.
	if len(r.LastTickTimes) > 0 && time.Since(r.LastTickTimes[len(r.LastTickTimes)-1]) >= limit {
		return 0
	}

	// Count from the end while adjacent records are less than one interval
	// plus grace apart.
	count := 0
	for i := len(r.LastTickTimes) - 1; i >= 0; i-- {
		record := r.LastTickTimes[i]
		if time.Since(record) > last {
			break
		}

		theRecordAfter := record
		if i+1 < len(r.LastTickTimes) {
			theRecordAfter = r.LastTickTimes[i+1]
		}

		if theRecordAfter.Sub(record) >= limit {
			break
		}
		count++
	}

	return count
}

// GetLastRecord returns the last record.
func (r *TimeSeriesRecorder) GetLastRecord() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.LastTickTimes) == 0 {
		return time.Time{}
	}

	return r.LastTickTimes[len(r.LastTickTimes)-1]
}

// Healthy reports whether the loop has ticked recently.
func (r *TimeSeriesRecorder) Healthy() bool {
	last := r.GetLastRecord()
	if last.IsZero() {
		return false
	}
	return time.Since(last) < r.Interval+stallGrace
}

// tickLoop drives the watering timer until ctx is done.
func (d *Daemon) tickLoop(ctx context.Context) {
	interval := d.conf.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logrus.WithField("interval", interval.String()).Debug("tick loop starts")

	for {
		select {
		case <-ctx.Done():
			logrus.Debug("tick loop stopped")
			return
		case now := <-ticker.C:
			d.tick(now)
		}
	}
}

func (d *Daemon) tick(now time.Time) {
	gap := d.ticks.AddRecord(now)
	if gap >= d.ticks.Interval+stallGrace {
		logrus.WithFields(logrus.Fields{
			"gap":      gap.String(),
			"interval": d.ticks.Interval.String(),
		}).Warn("tick loop stalled, catching up elapsed time")
	}

	d.timer.TickNow()
}
