package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"mailbox_server/core/domain"
	"mailbox_server/core/port/in"
	"mailbox_server/core/port/out"
	"mailbox_server/pkg/metrics"

	"github.com/go-pkgz/pool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// SyncScheduler - per-session polling of the mailbox
// =============================================================================
//
// Each watched session has its own ticker. Ticks and manual refreshes go
// through the same in-progress guard, so passes of one session never overlap.
// Passes of all sessions run on a shared go-pkgz/pool worker group, fed from a
// bounded queue so a trigger never blocks on busy workers.

var (
	ErrUnknownSession   = errors.New("session is not watched")
	ErrSessionExpired   = errors.New("session expired")
	ErrSchedulerStopped = errors.New("sync scheduler is not running")
)

type TriggerStatus string

const (
	TriggerStarted    TriggerStatus = "started"
	TriggerInProgress TriggerStatus = "in_progress"
	// TriggerBusy means the pass queue is full; nothing was scheduled.
	TriggerBusy TriggerStatus = "busy"
)

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Workers caps concurrent passes across all sessions.
	Workers int
	// AutoSync enables the periodic ticker. Without it passes only run on
	// login and manual refresh.
	AutoSync bool
	// QueueSize bounds passes waiting for a worker. Defaults to 4 per worker.
	QueueSize int
}

func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{Workers: 8, AutoSync: true}
}

// Snapshot is the presentation state of a watched session.
type Snapshot struct {
	Result     *domain.SyncResult `json:"result,omitempty"`
	LastError  string             `json:"last_error,omitempty"`
	InProgress bool               `json:"in_progress"`
	Polling    bool               `json:"polling"`
}

type sessionLoop struct {
	sess    *domain.Session
	cancel  context.CancelFunc
	running atomic.Bool
	polling atomic.Bool

	mu      sync.RWMutex
	last    *domain.SyncResult
	lastErr error
}

func (l *sessionLoop) store(result *domain.SyncResult, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = result
	l.lastErr = err
}

func (l *sessionLoop) snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Snapshot{
		Result:     l.last,
		InProgress: l.running.Load(),
		Polling:    l.polling.Load(),
	}
	if l.lastErr != nil {
		s.LastError = l.lastErr.Error()
	}
	return s
}

type passJob struct {
	loop     *sessionLoop
	reason   string
	enqueued time.Time
}

// passWorker implements pool.Worker for sync passes.
type passWorker struct {
	s *SyncScheduler
}

func (w *passWorker) Do(ctx context.Context, job *passJob) error {
	w.s.runPass(ctx, job)
	return nil
}

type SyncScheduler struct {
	syncer    in.SyncUseCase
	publisher out.SyncPublisher
	metrics   *metrics.SyncMetrics
	config    *SchedulerConfig
	interval  time.Duration
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	pool    *pool.WorkerGroup[*passJob]
	queue   chan *passJob
	fed     chan struct{}
	stateMu sync.RWMutex
	started bool
	now     func() time.Time

	mu    sync.RWMutex
	loops map[uuid.UUID]*sessionLoop
}

// NewSyncScheduler creates a scheduler. publisher and m may be nil.
func NewSyncScheduler(syncer in.SyncUseCase, publisher out.SyncPublisher, m *metrics.SyncMetrics, config *SchedulerConfig, log zerolog.Logger) *SyncScheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.Workers * 4
	}
	if m == nil {
		m = metrics.NewSyncMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncScheduler{
		syncer:    syncer,
		publisher: publisher,
		metrics:   m,
		config:    config,
		interval:  syncer.Interval(),
		log:       log.With().Str("component", "sync_scheduler").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		loops:     make(map[uuid.UUID]*sessionLoop),
		now:       time.Now,
	}
}

// Start starts the pass workers.
func (s *SyncScheduler) Start() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.started {
		return nil
	}

	s.pool = pool.New[*passJob](s.config.Workers, &passWorker{s: s}).
		WithBatchSize(1).
		WithWorkerChanSize(4).
		WithContinueOnError()
	if err := s.pool.Go(s.ctx); err != nil {
		return err
	}
	s.queue = make(chan *passJob, s.config.QueueSize)
	s.fed = make(chan struct{})
	go s.feed(s.queue, s.fed)
	s.started = true

	s.log.Info().
		Int("workers", s.config.Workers).
		Dur("interval", s.interval).
		Bool("auto_sync", s.config.AutoSync).
		Msg("sync scheduler started")
	return nil
}

// Stop stops all session timers and waits for queued passes until ctx ends.
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	for id, loop := range s.loops {
		loop.cancel()
		delete(s.loops, id)
	}
	s.mu.Unlock()

	s.stateMu.Lock()
	if !s.started {
		s.stateMu.Unlock()
		s.cancel()
		return nil
	}
	s.started = false
	close(s.queue)
	fed := s.fed
	s.stateMu.Unlock()

	// Queued passes are handed to the workers before the pool closes.
	select {
	case <-fed:
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}

	err := s.pool.Close(ctx)
	s.cancel()
	s.log.Info().Msg("sync scheduler stopped")
	return err
}

func (s *SyncScheduler) feed(queue <-chan *passJob, done chan<- struct{}) {
	defer close(done)
	for job := range queue {
		s.pool.Submit(job)
	}
}

// Watch registers sess, runs a pass right away and, with auto sync, starts its
// ticker. Watching a session again replaces the previous loop.
func (s *SyncScheduler) Watch(sess *domain.Session) {
	if sess.IsExpired(s.now()) {
		s.log.Debug().Str("session_id", sess.ID.String()).Msg("expired session not watched")
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	loop := &sessionLoop{sess: sess, cancel: cancel}

	s.mu.Lock()
	if prev, ok := s.loops[sess.ID]; ok {
		prev.cancel()
	}
	s.loops[sess.ID] = loop
	s.mu.Unlock()

	if s.config.AutoSync {
		loop.polling.Store(true)
	}
	if _, err := s.trigger(loop, "login"); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("initial pass not started")
	}
	if s.config.AutoSync {
		go s.run(ctx, loop)
	}
}

// Unwatch cancels the timer of a session. A pass already running finishes on
// its own.
func (s *SyncScheduler) Unwatch(id uuid.UUID) {
	s.mu.Lock()
	loop, ok := s.loops[id]
	delete(s.loops, id)
	s.mu.Unlock()

	if ok {
		loop.cancel()
		loop.polling.Store(false)
		s.log.Debug().Str("session_id", id.String()).Msg("session unwatched")
	}
}

// expire drops loop once its session has ended. A newer loop for the same
// session is left alone.
func (s *SyncScheduler) expire(loop *sessionLoop) {
	s.mu.Lock()
	if cur, ok := s.loops[loop.sess.ID]; ok && cur == loop {
		delete(s.loops, loop.sess.ID)
	}
	s.mu.Unlock()

	loop.cancel()
	loop.polling.Store(false)
	s.log.Info().Str("session_id", loop.sess.ID.String()).Msg("session expired, polling stopped")
}

// Trigger requests a manual pass.
func (s *SyncScheduler) Trigger(id uuid.UUID) (TriggerStatus, error) {
	loop, ok := s.loop(id)
	if !ok {
		return "", ErrUnknownSession
	}
	return s.trigger(loop, "manual")
}

// Snapshot returns the last result of a session.
func (s *SyncScheduler) Snapshot(id uuid.UUID) (Snapshot, bool) {
	loop, ok := s.loop(id)
	if !ok {
		return Snapshot{}, false
	}
	return loop.snapshot(), true
}

func (s *SyncScheduler) Watched() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.loops)
}

func (s *SyncScheduler) Metrics() *metrics.SyncMetrics {
	return s.metrics
}

// SetInterval sets the tick interval (for testing).
func (s *SyncScheduler) SetInterval(interval time.Duration) {
	s.interval = interval
}

// SetClock replaces the expiry clock (for testing).
func (s *SyncScheduler) SetClock(now func() time.Time) {
	s.now = now
}

func (s *SyncScheduler) loop(id uuid.UUID) (*sessionLoop, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loop, ok := s.loops[id]
	return loop, ok
}

func (s *SyncScheduler) run(ctx context.Context, loop *sessionLoop) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			loop.polling.Store(false)
			return
		case <-ticker.C:
			if _, err := s.trigger(loop, "tick"); errors.Is(err, ErrSessionExpired) {
				return
			}
		}
	}
}

func (s *SyncScheduler) trigger(loop *sessionLoop, reason string) (TriggerStatus, error) {
	if loop.sess.IsExpired(s.now()) {
		s.expire(loop)
		return "", ErrSessionExpired
	}
	if !loop.running.CompareAndSwap(false, true) {
		s.metrics.RecordSkip()
		s.log.Debug().
			Str("session_id", loop.sess.ID.String()).
			Str("reason", reason).
			Msg("pass still running, trigger skipped")
		return TriggerInProgress, nil
	}

	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if !s.started {
		loop.running.Store(false)
		s.log.Warn().Str("reason", reason).Msg("scheduler not started, pass dropped")
		return "", ErrSchedulerStopped
	}
	select {
	case s.queue <- &passJob{loop: loop, reason: reason, enqueued: time.Now()}:
		return TriggerStarted, nil
	default:
		loop.running.Store(false)
		s.metrics.RecordSkip()
		s.log.Warn().
			Str("session_id", loop.sess.ID.String()).
			Str("reason", reason).
			Msg("pass queue full, trigger skipped")
		return TriggerBusy, nil
	}
}

func (s *SyncScheduler) runPass(ctx context.Context, job *passJob) {
	loop := job.loop
	sessionID := loop.sess.ID.String()
	start := time.Now()

	// The session may have ended while the pass was queued.
	if loop.sess.IsExpired(s.now()) {
		loop.running.Store(false)
		s.expire(loop)
		return
	}

	// An in-flight pass is not cancelled by logout or shutdown.
	result, err := s.syncer.RunSync(context.WithoutCancel(ctx), loop.sess)
	elapsed := time.Since(start)

	// Without a running timer there is no next run to announce.
	if result != nil && (!loop.polling.Load() || out.IsAuthError(err)) {
		result.NextRunAt = time.Time{}
	}
	loop.store(result, err)
	loop.running.Store(false)
	s.metrics.RecordPass(elapsed, err)

	event := s.log.Info()
	if err != nil {
		event = s.log.Warn().Err(err)
	}
	event.
		Str("session_id", sessionID).
		Str("reason", job.reason).
		Dur("queued", start.Sub(job.enqueued)).
		Dur("duration", elapsed).
		Msg("sync pass finished")

	if out.IsAuthError(err) {
		// Polling with a rejected credential cannot succeed until the user
		// signs in again.
		loop.cancel()
		s.log.Warn().Str("session_id", sessionID).Msg("credential rejected, polling stopped")
	}

	if s.publisher != nil && result != nil {
		if perr := s.publisher.PublishSync(ctx, sessionID, result); perr != nil {
			s.log.Warn().Err(perr).Str("session_id", sessionID).Msg("failed to publish sync result")
		}
	}
}
