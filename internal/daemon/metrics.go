package daemon

import (
	"go.uber.org/atomic"
)

// TailMetrics counts what the tailer is doing. All methods are safe for
// concurrent use.
type TailMetrics struct {
	filesDiscovered atomic.Int64
	filesActive     atomic.Int64
	filesClosed     atomic.Int64
	filesFailed     atomic.Int64
	queuedFiles     atomic.Int64
	workersActive   atomic.Int64
	workersBusy     atomic.Int64
	linesRead       atomic.Int64
	linesStructured atomic.Int64
	scaleUps        atomic.Int64
	scaleDowns      atomic.Int64

	queueCapacity int
}

type TailSnapshot struct {
	FilesDiscovered int64 `json:"files_discovered"`
	FilesActive     int64 `json:"files_active"`
	FilesClosed     int64 `json:"files_closed"`
	FilesFailed     int64 `json:"files_failed"`
	QueuedFiles     int64 `json:"queued_files"`
	QueueCapacity   int   `json:"queue_capacity"`
	WorkersActive   int64 `json:"workers_active"`
	WorkersBusy     int64 `json:"workers_busy"`
	LinesRead       int64 `json:"lines_read"`
	LinesStructured int64 `json:"lines_structured"`
	ScaleUps        int64 `json:"scale_ups"`
	ScaleDowns      int64 `json:"scale_downs"`
}

func NewTailMetrics(queueCapacity int) *TailMetrics {
	return &TailMetrics{queueCapacity: queueCapacity}
}

func (m *TailMetrics) fileDiscovered() { m.filesDiscovered.Inc() }
func (m *TailMetrics) fileOpened()     { m.filesActive.Inc() }
func (m *TailMetrics) fileFailed()     { m.filesFailed.Inc() }
func (m *TailMetrics) fileQueued()     { m.queuedFiles.Inc() }
func (m *TailMetrics) fileDequeued()   { m.queuedFiles.Dec() }
func (m *TailMetrics) workerStarted()  { m.workersActive.Inc() }
func (m *TailMetrics) workerStopped()  { m.workersActive.Dec() }
func (m *TailMetrics) workerBusy()     { m.workersBusy.Inc() }
func (m *TailMetrics) workerIdle()     { m.workersBusy.Dec() }
func (m *TailMetrics) scaledUp()       { m.scaleUps.Inc() }
func (m *TailMetrics) scaledDown()     { m.scaleDowns.Inc() }

func (m *TailMetrics) fileClosed() {
	m.filesActive.Dec()
	m.filesClosed.Inc()
}

func (m *TailMetrics) lineRead(structured bool) {
	m.linesRead.Inc()
	if structured {
		m.linesStructured.Inc()
	}
}

func (m *TailMetrics) Snapshot() TailSnapshot {
	return TailSnapshot{
		FilesDiscovered: m.filesDiscovered.Load(),
		FilesActive:     m.filesActive.Load(),
		FilesClosed:     m.filesClosed.Load(),
		FilesFailed:     m.filesFailed.Load(),
		QueuedFiles:     m.queuedFiles.Load(),
		QueueCapacity:   m.queueCapacity,
		WorkersActive:   m.workersActive.Load(),
		WorkersBusy:     m.workersBusy.Load(),
		LinesRead:       m.linesRead.Load(),
		LinesStructured: m.linesStructured.Load(),
		ScaleUps:        m.scaleUps.Load(),
		ScaleDowns:      m.scaleDowns.Load(),
	}
}

func (s TailSnapshot) QueueUsage() float64 {
	if s.QueueCapacity == 0 {
		return 0
	}
	return float64(s.QueuedFiles) / float64(s.QueueCapacity)
}
