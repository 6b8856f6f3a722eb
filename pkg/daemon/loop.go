package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battstat/pkg/events"
	"github.com/charlie0129/battstat/pkg/powerinfo"
)

var (
	// updateMu orders status updates so that the last read stored is
	// also the last one announced.
	updateMu   = &sync.Mutex{}
	statusMu   = &sync.RWMutex{}
	lastStatus = powerinfo.NotPresent()
	lastUpdate time.Time

	readRecorder = NewTimeSeriesRecorder(60)
	// A window without a status read more than this many intervals long
	// is most likely a system sleep.
	missedReadsThreshold = 5
)

// TimeSeriesRecorder records the times of the last N status reads.
type TimeSeriesRecorder struct {
	MaxRecordCount int
	LastReadTimes  []time.Time
	mu             *sync.Mutex
}

// NewTimeSeriesRecorder returns a new TimeSeriesRecorder.
func NewTimeSeriesRecorder(maxRecordCount int) *TimeSeriesRecorder {
	return &TimeSeriesRecorder{
		MaxRecordCount: maxRecordCount,
		LastReadTimes:  make([]time.Time, 0),
		mu:             &sync.Mutex{},
	}
}

// AddRecordNow adds a new record with the current time.
func (r *TimeSeriesRecorder) AddRecordNow() {
	r.AddRecord(time.Now())
}

// AddRecord adds a new record.
func (r *TimeSeriesRecorder) AddRecord(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strip the monotonic clock reading so time.Since stays accurate
	// across system sleep.
	t = t.Round(0)

	if len(r.LastReadTimes) >= r.MaxRecordCount {
		r.LastReadTimes = r.LastReadTimes[1:]
	}
	r.LastReadTimes = append(r.LastReadTimes, t)
}

// GetLastRecord returns the last record.
func (r *TimeSeriesRecorder) GetLastRecord() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.LastReadTimes) == 0 {
		return time.Time{}
	}

	return r.LastReadTimes[len(r.LastReadTimes)-1]
}

// GetRecordsIn returns the number of continuous records in the last
// duration. Two records are continuous if they are less than
// interval+1s apart.
func (r *TimeSeriesRecorder) GetRecordsIn(last, interval time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	gap := interval + time.Second

	// The last record must be within the last duration.
	if len(r.LastReadTimes) > 0 && time.Since(r.LastReadTimes[len(r.LastReadTimes)-1]) >= gap {
		return 0
	}

	count := 0
	for i := len(r.LastReadTimes) - 1; i >= 0; i-- {
		record := r.LastReadTimes[i]
		if time.Since(record) > last {
			break
		}

		theRecordAfter := record
		if i+1 < len(r.LastReadTimes) {
			theRecordAfter = r.LastReadTimes[i+1]
		}

		if theRecordAfter.Sub(record) >= gap {
			break
		}
		count++
	}

	return count
}

// statusLoop reads the status whenever the backend signals an event or
// the poll interval elapses, until ctx is canceled.
func statusLoop(ctx context.Context) {
	updateStatus(ctx, "startup")

	evc := mon.Events()
	for {
		interval := nextInterval(currentStatus())
		timer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-evc:
			timer.Stop()
			if mon.HandleEvent() {
				updateStatus(ctx, "event")
			}
		case <-timer.C:
			checkMissedReads(interval)
			updateStatus(ctx, "poll")
		}
	}
}

// nextInterval relaxes polling on AC power for backends that have to be
// polled. Battery draining is what callers care about.
func nextInterval(s powerinfo.CompositeStatus) time.Duration {
	if s.OnACPower && mon.NeedsPolling() {
		return conf.ACPollInterval()
	}
	return conf.PollInterval()
}

func checkMissedReads(interval time.Duration) bool {
	last := readRecorder.GetLastRecord()
	if last.IsZero() {
		return false
	}

	if since := time.Since(last); since > time.Duration(missedReadsThreshold)*interval {
		logrus.WithFields(logrus.Fields{
			"since":        since.Round(time.Second),
			"interval":     interval,
			"recentReads":  readRecorder.GetRecordsIn(time.Duration(missedReadsThreshold)*interval, interval),
			"lastReadTime": last.Format(time.RFC3339),
		}).Info("status reads were missed, system probably slept")
		return true
	}
	return false
}

// updateStatus reads the status and announces it if it changed.
func updateStatus(ctx context.Context, trigger string) powerinfo.CompositeStatus {
	updateMu.Lock()
	defer updateMu.Unlock()

	s := mon.Read(ctx)
	readRecorder.AddRecordNow()

	statusMu.Lock()
	changed := s != lastStatus || lastUpdate.IsZero()
	lastStatus = s
	lastUpdate = time.Now()
	statusMu.Unlock()

	metrics.observe(s)

	entry := logrus.WithFields(logrus.Fields{
		"trigger":   trigger,
		"present":   s.Present,
		"percent":   s.Percent,
		"minutes":   s.Minutes,
		"charging":  s.Charging,
		"onACPower": s.OnACPower,
	})
	if !changed {
		entry.Trace("battery status unchanged")
		return s
	}
	entry.Debug("battery status changed")

	ev := events.StatusChangedEvent{
		Status:  s,
		State:   s.State().String(),
		Backend: mon.BackendName(),
		Ts:      time.Now().Unix(),
	}
	if err := hub.Publish(events.StatusChanged, ev); err != nil {
		logrus.Errorf("failed to publish status change: %v", err)
	}
	publishAll(ctx, publishers, ev)

	return s
}

func currentStatus() powerinfo.CompositeStatus {
	statusMu.RLock()
	defer statusMu.RUnlock()
	return lastStatus
}

func lastUpdateTime() time.Time {
	statusMu.RLock()
	defer statusMu.RUnlock()
	return lastUpdate
}
