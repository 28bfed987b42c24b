package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hpcloud/tail"

	"github.com/Arun-Labana/logai-sdk/internal/logging"
	"github.com/Arun-Labana/logai-sdk/internal/logging/jsonline"
)

// LogDaemonService discovers *.log files under a root directory, tails them
// with a pool of workers and hands every line to an Appender.
type LogDaemonService struct {
	config        Config
	appender      logging.Appender
	logger        log.Logger
	fileQueue     chan string
	workers       []*worker
	workersWg     sync.WaitGroup
	subServicesWg sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
	metrics       *TailMetrics

	scaleMutex     sync.Mutex
	currentWorkers int
	maxWorkers     int
	minWorkers     int

	// tracked holds files that are queued or being tailed.
	trackedMu sync.Mutex
	tracked   map[string]struct{}
	seenFiles map[string]struct{}
}

type worker struct {
	id     int
	ctx    context.Context
	cancel context.CancelFunc
}

type Config struct {
	LogRootPath        string        `koanf:"root"`
	ScanInterval       time.Duration `koanf:"scan_interval"`
	MinWorkers         int           `koanf:"min_workers"`
	MaxWorkers         int           `koanf:"max_workers"`
	FileQueueSize      int           `koanf:"file_queue_size"`
	NodeName           string        `koanf:"node_name"`
	ScaleUpThreshold   float64       `koanf:"scale_up_threshold"`   // default: 0.9
	ScaleDownThreshold float64       `koanf:"scale_down_threshold"` // default: 0.3
	ScaleCheckInterval time.Duration `koanf:"scale_check_interval"`
	// If > 0, stop tailing a file after this period without new lines.
	// The next scan picks it up again.
	FileIdleTimeout time.Duration `koanf:"file_idle_timeout"`
	// Read files from the beginning instead of only new lines.
	FromStart bool `koanf:"from_start"`
}

func DefaultConfig() Config {
	return Config{
		LogRootPath:        "/var/log/pods",
		ScanInterval:       10 * time.Second,
		MinWorkers:         2,
		MaxWorkers:         16,
		FileQueueSize:      256,
		ScaleUpThreshold:   0.9,
		ScaleDownThreshold: 0.3,
		ScaleCheckInterval: 5 * time.Second,
		FileIdleTimeout:    5 * time.Minute,
	}
}

// NewLogDaemonService always creates 3 + config.MinWorkers goroutines on Start()
func NewLogDaemonService(ctx context.Context, config Config, appender logging.Appender, logger log.Logger) *LogDaemonService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if config.MaxWorkers < config.MinWorkers {
		config.MaxWorkers = config.MinWorkers
	}
	nCtx, cancel := context.WithCancel(ctx)

	service := &LogDaemonService{
		config:         config,
		appender:       appender,
		logger:         log.With(logger, "component", "tailer"),
		fileQueue:      make(chan string, config.FileQueueSize),
		ctx:            nCtx,
		cancel:         cancel,
		metrics:        NewTailMetrics(config.FileQueueSize),
		minWorkers:     config.MinWorkers,
		maxWorkers:     config.MaxWorkers,
		currentWorkers: config.MinWorkers,
		tracked:        make(map[string]struct{}),
		seenFiles:      make(map[string]struct{}),
	}

	service.workers = make([]*worker, config.MaxWorkers+1)

	return service
}

func (s *LogDaemonService) Metrics() TailSnapshot {
	return s.metrics.Snapshot()
}

func (s *LogDaemonService) Start() {
	level.Info(s.logger).Log("msg", "starting log tailer",
		"root", s.config.LogRootPath,
		"min_workers", s.minWorkers,
		"max_workers", s.maxWorkers,
		"queue_size", s.config.FileQueueSize)

	s.scaleMutex.Lock()
	for i := 0; i < s.minWorkers; i++ {
		s.startWorker(i)
	}
	s.scaleMutex.Unlock()

	s.subServicesWg.Add(1)
	go s.scanner()

	s.subServicesWg.Add(1)
	go s.monitorAndScale()

	s.subServicesWg.Add(1)
	go s.metricsReporter()
}

func (s *LogDaemonService) Stop() {
	level.Info(s.logger).Log("msg", "stopping log tailer")
	s.cancel()

	s.subServicesWg.Wait()

	close(s.fileQueue)
	s.workersWg.Wait()

	level.Info(s.logger).Log("msg", "log tailer stopped")
}

// startWorker must be called with scaleMutex held.
func (s *LogDaemonService) startWorker(id int) {
	if id >= len(s.workers) || s.workers[id] != nil {
		return
	}

	workerCtx, cancel := context.WithCancel(s.ctx)
	worker := &worker{
		id:     id,
		ctx:    workerCtx,
		cancel: cancel,
	}
	s.workers[id] = worker

	s.workersWg.Add(1)
	go s.worker(worker)

	s.metrics.workerStarted()
	level.Debug(s.logger).Log("msg", "worker started", "worker", id)
}

// stopWorker must be called with scaleMutex held.
func (s *LogDaemonService) stopWorker(id int) {
	if id >= len(s.workers) || s.workers[id] == nil {
		return
	}

	s.workers[id].cancel()
	s.workers[id] = nil

	s.metrics.workerStopped()
	level.Debug(s.logger).Log("msg", "worker stopped", "worker", id)
}

func (s *LogDaemonService) worker(worker *worker) {
	defer s.workersWg.Done()
	defer func() {
		if r := recover(); r != nil {
			level.Error(s.logger).Log("msg", "worker panicked", "worker", worker.id, "panic", r)
		}
	}()

	for {
		select {
		case filePath, ok := <-s.fileQueue:
			if !ok {
				return
			}
			s.metrics.fileDequeued()
			s.metrics.workerBusy()
			s.processFile(worker.ctx, filePath)
			s.metrics.workerIdle()
			s.untrack(filePath)

		case <-worker.ctx.Done():
			return
		}
	}
}

func (s *LogDaemonService) processFile(ctx context.Context, filePath string) {
	defer func() {
		if r := recover(); r != nil {
			level.Error(s.logger).Log("msg", "file processing panicked", "file", filePath, "panic", r)
			s.metrics.fileFailed()
		}
	}()

	cfg := tail.Config{
		Follow: true,
		ReOpen: true,
		Poll:   true,
		Logger: tail.DiscardingLogger,
	}
	if !s.config.FromStart {
		cfg.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}

	t, err := tail.TailFile(filePath, cfg)
	if err != nil {
		level.Warn(s.logger).Log("msg", "failed to tail file", "file", filePath, "err", err)
		s.metrics.fileFailed()
		return
	}
	defer t.Cleanup()
	defer t.Stop()

	s.metrics.fileOpened()
	defer s.metrics.fileClosed()

	labels := s.extractLabels(filePath)

	checkTicker := time.NewTicker(1 * time.Second)
	defer checkTicker.Stop()

	lastActivity := time.Now()

	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return
			}
			if line == nil {
				continue
			}
			if line.Err != nil {
				level.Warn(s.logger).Log("msg", "error reading file", "file", filePath, "err", line.Err)
				continue
			}
			if strings.TrimSpace(line.Text) == "" {
				continue
			}

			s.appender.Append(s.toEvent(line.Text, line.Time, labels))
			lastActivity = time.Now()

		case <-checkTicker.C:
			// waking up from blocking line reading to check context status and idle timeout
			if s.config.FileIdleTimeout > 0 && time.Since(lastActivity) > s.config.FileIdleTimeout {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *LogDaemonService) toEvent(text string, readAt time.Time, labels map[string]string) logging.Event {
	ev, structured := jsonline.Parse([]byte(text))
	if !structured {
		ev = logging.Event{
			Level:   sniffLevel(text),
			Message: text,
		}
	}
	s.metrics.lineRead(structured)

	if ev.Time.IsZero() {
		ev.Time = readAt
	}
	if ev.Logger == "" {
		ev.Logger = labels["container"]
	}
	if ev.Logger == "" {
		ev.Logger = labels["file"]
	}

	if ev.Fields == nil {
		ev.Fields = make(map[string]string, len(labels))
	}
	for k, v := range labels {
		if _, exists := ev.Fields[k]; !exists && v != "" {
			ev.Fields[k] = v
		}
	}
	return ev
}

// sniffLevel looks for a level word among the first few tokens of a plain
// text line, e.g. "2024-03-01 12:00:00 [ERROR] ...".
func sniffLevel(text string) logging.Level {
	if len(text) > 96 {
		text = text[:96]
	}
	for i, token := range strings.Fields(text) {
		if i >= 6 {
			break
		}
		word := strings.ToUpper(strings.Trim(token, "[]():|,"))
		switch word {
		case "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR", "ERR", "FATAL", "PANIC", "CRITICAL":
			return logging.ParseLevel(word)
		}
	}
	return logging.LevelInfo
}

func (s *LogDaemonService) scanner() {
	defer s.subServicesWg.Done()

	s.scanFiles()

	ticker := time.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.scanFiles()

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *LogDaemonService) scanFiles() {
	files, err := s.discoverLogFiles()
	if err != nil {
		level.Warn(s.logger).Log("msg", "error discovering log files", "err", err)
		return
	}

	for _, file := range files {
		if _, ok := s.seenFiles[file]; !ok {
			s.metrics.fileDiscovered()
			s.seenFiles[file] = struct{}{}
		}
		if !s.track(file) {
			continue
		}
		s.metrics.fileQueued()
		select {
		case s.fileQueue <- file:
		case <-s.ctx.Done():
			s.metrics.fileDequeued()
			s.untrack(file)
			return

		default:
			s.metrics.fileDequeued()
			s.untrack(file)
			level.Warn(s.logger).Log("msg", "file queue full, skipping file",
				"queued", len(s.fileQueue), "capacity", cap(s.fileQueue), "file", file)
		}
	}
}

// track reports false if file is already queued or being tailed.
func (s *LogDaemonService) track(file string) bool {
	s.trackedMu.Lock()
	defer s.trackedMu.Unlock()
	if _, ok := s.tracked[file]; ok {
		return false
	}
	s.tracked[file] = struct{}{}
	return true
}

func (s *LogDaemonService) untrack(file string) {
	s.trackedMu.Lock()
	defer s.trackedMu.Unlock()
	delete(s.tracked, file)
}

func (s *LogDaemonService) monitorAndScale() {
	defer s.subServicesWg.Done()

	ticker := time.NewTicker(s.config.ScaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.adjustWorkers()

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *LogDaemonService) adjustWorkers() {
	if s.maxWorkers <= s.minWorkers {
		return
	}

	snap := s.metrics.Snapshot()
	queueUsage := snap.QueueUsage()

	s.scaleMutex.Lock()
	current := s.currentWorkers
	s.scaleMutex.Unlock()

	workerUtilization := 0.0
	if current > 0 {
		workerUtilization = float64(snap.WorkersBusy) / float64(current)
	}

	// Workers hold a file for as long as it is live, so files waiting while
	// the pool is saturated mean the pool is too small.
	if workerUtilization >= s.config.ScaleUpThreshold &&
		snap.QueuedFiles > 0 &&
		current < s.maxWorkers {
		s.scaleUp()
	} else if queueUsage < s.config.ScaleDownThreshold &&
		workerUtilization < s.config.ScaleDownThreshold &&
		current > s.minWorkers {
		s.scaleDown()
	}
}

func (s *LogDaemonService) scaleUp() {
	s.scaleMutex.Lock()
	defer s.scaleMutex.Unlock()

	if s.currentWorkers >= s.maxWorkers {
		return
	}

	newWorkerID := s.currentWorkers
	s.currentWorkers++

	s.startWorker(newWorkerID)
	s.metrics.scaledUp()

	level.Info(s.logger).Log("msg", "scaled up", "workers", s.currentWorkers,
		"queue_usage_pct", int(s.metrics.Snapshot().QueueUsage()*100))
}

func (s *LogDaemonService) scaleDown() {
	s.scaleMutex.Lock()
	defer s.scaleMutex.Unlock()

	if s.currentWorkers <= s.minWorkers {
		return
	}

	workerToStop := s.currentWorkers - 1
	s.currentWorkers--

	s.stopWorker(workerToStop)
	s.metrics.scaledDown()

	level.Info(s.logger).Log("msg", "scaled down", "workers", s.currentWorkers,
		"queue_usage_pct", int(s.metrics.Snapshot().QueueUsage()*100))
}

func (s *LogDaemonService) metricsReporter() {
	defer s.subServicesWg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := s.metrics.Snapshot()
			level.Info(s.logger).Log(
				"msg", "tailer metrics",
				"workers_active", snap.WorkersActive,
				"max_workers", s.maxWorkers,
				"workers_busy", snap.WorkersBusy,
				"queued_files", snap.QueuedFiles,
				"queue_capacity", snap.QueueCapacity,
				"files_active", snap.FilesActive,
				"files_discovered", snap.FilesDiscovered,
				"lines_read", snap.LinesRead,
				"scale_ups", snap.ScaleUps,
				"scale_downs", snap.ScaleDowns,
			)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *LogDaemonService) discoverLogFiles() ([]string, error) {
	var logFiles []string

	err := filepath.Walk(s.config.LogRootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			level.Debug(s.logger).Log("msg", "error accessing path", "path", path, "err", err)
			return nil
		}

		if !info.IsDir() && strings.HasSuffix(info.Name(), ".log") {
			logFiles = append(logFiles, path)
		}
		return nil
	})

	return logFiles, err
}

// extractLabels reads the kubelet layout <ns>_<pod>_<uid>/<container>/<file>.
func (s *LogDaemonService) extractLabels(filePath string) map[string]string {
	labels := map[string]string{
		"node": s.config.NodeName,
		"file": filepath.Base(filePath),
	}

	parts := strings.Split(filepath.ToSlash(filePath), "/")
	if len(parts) >= 3 {
		podParts := strings.SplitN(parts[len(parts)-3], "_", 3)
		if len(podParts) == 3 {
			labels["namespace"] = podParts[0]
			labels["pod"] = podParts[1]
			labels["pod_uid"] = podParts[2]
			labels["container"] = parts[len(parts)-2]
		}
	}

	return labels
}
