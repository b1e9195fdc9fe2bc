package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/classroom-sync/internal/config"
	"github.com/yukikurage/classroom-sync/internal/constants"
	"github.com/yukikurage/classroom-sync/internal/models"
	"github.com/yukikurage/classroom-sync/internal/reconcile"
	"github.com/yukikurage/classroom-sync/internal/repository"
)

var (
	ErrSyncInProgress  = errors.New("a sync run is already in progress")
	ErrSyncDisabled    = errors.New("sync is disabled")
	ErrInvalidInterval = errors.New("sync interval must be positive")
)

// SyncState is the orchestrator state as seen from outside.
type SyncState string

const (
	SyncStateDisabled SyncState = "disabled"
	SyncStateIdle     SyncState = "idle"
	SyncStateSyncing  SyncState = "syncing"
)

// TriggerReason names what asked for a run.
type TriggerReason string

const (
	TriggerTaskCreated    TriggerReason = "taskCreated"
	TriggerTaskDeleted    TriggerReason = "taskDeleted"
	TriggerStorageChanged TriggerReason = "storageChanged"

	triggerEnable   TriggerReason = "enable"
	triggerInterval TriggerReason = "interval"
	triggerManual   TriggerReason = "manual"
)

// ParseTriggerReason accepts only the reasons external callers may send.
func ParseTriggerReason(s string) (TriggerReason, bool) {
	switch r := TriggerReason(s); r {
	case TriggerTaskCreated, TriggerTaskDeleted, TriggerStorageChanged:
		return r, true
	}
	return "", false
}

type SyncEventType string

const (
	EventSyncCompleted        SyncEventType = "sync_completed"
	EventNotificationsUpdated SyncEventType = "notifications_updated"
)

// SyncSummary is the payload of a sync_completed event.
type SyncSummary struct {
	GhostsRemoved        int `json:"ghostsRemoved"`
	NotificationsCreated int `json:"notificationsCreated"`
	CommentsRemoved      int `json:"commentsRemoved"`
}

// SyncEvent is delivered to subscribers after a run changed the store.
type SyncEvent struct {
	ID        string        `json:"id"`
	Type      SyncEventType `json:"type"`
	RunID     string        `json:"runId"`
	Timestamp time.Time     `json:"timestamp"`
	Summary   *SyncSummary  `json:"summary,omitempty"`
}

// SyncError is one entry of the capped error log.
type SyncError struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"runId"`
	Error     string    `json:"error"`
}

// SyncStats accumulate across runs until ClearStats.
type SyncStats struct {
	TotalSyncs           int         `json:"totalSyncs"`
	GhostsRemoved        int         `json:"ghostsRemoved"`
	NotificationsCreated int         `json:"notificationsCreated"`
	CommentsRemoved      int         `json:"commentsRemoved"`
	DuplicatesRemoved    int         `json:"duplicatesRemoved"`
	LastSyncDurationMs   int64       `json:"lastSyncDuration"`
	Errors               []SyncError `json:"errors"`
}

// DataCounts sizes the collections the report was computed over.
type DataCounts struct {
	TasksCount         int `json:"tasksCount"`
	NotificationsCount int `json:"notificationsCount"`
	CommentsCount      int `json:"commentsCount"`
}

// StatusReport combines orchestrator state with a fresh consistency check.
type StatusReport struct {
	Timestamp      time.Time        `json:"timestamp"`
	IsEnabled      bool             `json:"isEnabled"`
	State          SyncState        `json:"state"`
	LastSyncTime   *time.Time       `json:"lastSyncTime"`
	SyncIntervalMs int64            `json:"syncInterval"`
	DebugMode      bool             `json:"debugMode"`
	Stats          SyncStats        `json:"stats"`
	Data           DataCounts       `json:"data"`
	Issues         reconcile.Issues `json:"issues"`
	HealthScore    int              `json:"healthScore"`
}

// SyncService runs reconciliation against the store: once on Enable, on a
// repeating interval, and after debounced triggers. At most one run is
// active at a time.
type SyncService struct {
	repo            repository.CollectionRepository
	log             *logrus.Entry
	now             func() time.Time
	debounce        time.Duration
	storageDebounce time.Duration

	// runMu is held for the whole of a run
	runMu   sync.Mutex
	running atomic.Bool

	mu           sync.Mutex
	enabled      bool
	interval     time.Duration
	debug        bool
	parent       context.Context
	stopLoop     context.CancelFunc
	pending      *time.Timer
	pendingSeq   uint64
	pendingDelay time.Duration
	stats        SyncStats
	lastSyncTime time.Time

	subscribers map[uint64]func(SyncEvent)
	nextSubID   uint64
}

// NewSyncService creates a disabled SyncService
func NewSyncService(repo repository.CollectionRepository, cfg config.SyncConfig, log *logrus.Entry) *SyncService {
	return &SyncService{
		repo:            repo,
		log:             log,
		now:             time.Now,
		debounce:        cfg.Debounce,
		storageDebounce: cfg.StorageDebounce,
		interval:        cfg.Interval,
		debug:           cfg.Debug,
		stats:           SyncStats{Errors: []SyncError{}},
		subscribers:     make(map[uint64]func(SyncEvent)),
	}
}

// Enable runs one sync synchronously and then arms the interval timer. If a
// run is already in progress, the initial sync waits for it. The timer stops
// when ctx is done or on Disable. Enabling twice is a no-op.
func (s *SyncService) Enable(ctx context.Context) {
	s.mu.Lock()
	if s.enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = true
	s.parent = ctx
	interval := s.interval
	s.mu.Unlock()

	s.log.WithField("interval", interval.String()).Info("Sync enabled")
	s.runMu.Lock()
	_, _ = s.run(context.WithoutCancel(ctx), triggerEnable)
	s.runMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	// Disable may have been called during the initial run
	if s.enabled && s.stopLoop == nil {
		s.startLoopLocked()
	}
}

// Disable stops scheduling. A run already in progress completes.
func (s *SyncService) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return
	}
	s.enabled = false
	s.stopLoopLocked()
	s.cancelPendingLocked()
	s.log.Info("Sync disabled")
}

// Toggle flips the enabled state and reports the new one.
func (s *SyncService) Toggle(ctx context.Context) bool {
	if s.IsEnabled() {
		s.Disable()
		return false
	}
	s.Enable(ctx)
	return true
}

// Restart disables and re-enables, running an immediate sync.
func (s *SyncService) Restart(ctx context.Context) {
	s.Disable()
	s.Enable(ctx)
}

func (s *SyncService) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *SyncService) State() SyncState {
	if !s.IsEnabled() {
		return SyncStateDisabled
	}
	if s.running.Load() {
		return SyncStateSyncing
	}
	return SyncStateIdle
}

// SetInterval changes the repeat interval, re-arming the timer if enabled.
func (s *SyncService) SetInterval(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
	if s.enabled {
		s.stopLoopLocked()
		s.startLoopLocked()
	}
	s.log.WithField("interval", d.String()).Info("Sync interval updated")
	return nil
}

func (s *SyncService) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetDebugMode promotes per-run detail logging from debug to info.
func (s *SyncService) SetDebugMode(on bool) {
	s.mu.Lock()
	s.debug = on
	s.mu.Unlock()
	s.log.WithField("debug", on).Info("Sync debug mode updated")
}

func (s *SyncService) DebugMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debug
}

// Trigger schedules a debounced run. Triggers arriving before the timer
// fires replace it, so a burst of writes produces one run.
func (s *SyncService) Trigger(reason TriggerReason) error {
	delay := s.debounce
	if reason == TriggerStorageChanged {
		delay = s.storageDebounce
	}

	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return ErrSyncDisabled
	}
	s.armPendingLocked(reason, delay)
	s.mu.Unlock()

	s.verbose(s.log.WithFields(logrus.Fields{
		"trigger": reason,
		"delay":   delay.String(),
	}), "Sync scheduled")
	return nil
}

// NotifyStorageChange schedules a run when the tasks collection changed.
// Changes to the other collections, the engine's own writes included, are
// ignored. It reports whether a run was scheduled.
func (s *SyncService) NotifyStorageChange(c repository.Collection) (bool, error) {
	if c != repository.CollectionTasks {
		return false, nil
	}
	if err := s.Trigger(TriggerStorageChanged); err != nil {
		return false, err
	}
	return true, nil
}

// ForceSync runs a sync now and returns its result.
func (s *SyncService) ForceSync(ctx context.Context) (reconcile.Result, error) {
	if !s.runMu.TryLock() {
		return reconcile.Result{}, ErrSyncInProgress
	}
	defer s.runMu.Unlock()
	return s.run(ctx, triggerManual)
}

// Stats returns a copy of the accumulated statistics.
func (s *SyncService) Stats() SyncStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.Errors = slices.Clone(s.stats.Errors)
	return stats
}

// LastSyncTime is zero until the first completed run.
func (s *SyncService) LastSyncTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncTime
}

func (s *SyncService) ClearStats() {
	s.mu.Lock()
	s.stats = SyncStats{Errors: []SyncError{}}
	s.mu.Unlock()
	s.log.Info("Sync statistics cleared")
}

// Subscribe registers handler for sync events and returns a function that
// removes it. Handlers run on the syncing goroutine and must not block.
func (s *SyncService) Subscribe(handler func(SyncEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = handler
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// CheckConsistency reads the store and reports drift without repairing it.
func (s *SyncService) CheckConsistency(ctx context.Context) (reconcile.ConsistencyReport, error) {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return reconcile.ConsistencyReport{}, err
	}
	notifications, err := s.repo.ListNotifications(ctx)
	if err != nil {
		return reconcile.ConsistencyReport{}, err
	}
	comments, err := s.repo.ListComments(ctx)
	if err != nil {
		return reconcile.ConsistencyReport{}, err
	}
	return reconcile.CheckConsistency(tasks, notifications, comments), nil
}

// GenerateStatusReport combines the orchestrator state with a consistency check.
func (s *SyncService) GenerateStatusReport(ctx context.Context) (*StatusReport, error) {
	consistency, err := s.CheckConsistency(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	report := &StatusReport{
		Timestamp:      s.now(),
		IsEnabled:      s.enabled,
		SyncIntervalMs: s.interval.Milliseconds(),
		DebugMode:      s.debug,
		Data: DataCounts{
			TasksCount:         consistency.TasksCount,
			NotificationsCount: consistency.NotificationsCount,
			CommentsCount:      consistency.CommentsCount,
		},
		Issues:      consistency.Issues,
		HealthScore: consistency.HealthScore,
	}
	if !s.lastSyncTime.IsZero() {
		last := s.lastSyncTime
		report.LastSyncTime = &last
	}
	report.Stats = s.stats
	report.Stats.Errors = slices.Clone(s.stats.Errors)
	s.mu.Unlock()

	report.State = s.State()
	return report, nil
}

// startLoopLocked must be called with s.mu held.
func (s *SyncService) startLoopLocked() {
	parent := s.parent
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	s.stopLoop = cancel
	go s.loop(ctx, s.interval)
}

func (s *SyncService) stopLoopLocked() {
	if s.stopLoop != nil {
		s.stopLoop()
		s.stopLoop = nil
	}
}

func (s *SyncService) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// a run already in flight covers this tick
			s.runGuarded(context.WithoutCancel(ctx), triggerInterval, false)
		}
	}
}

func (s *SyncService) armPendingLocked(reason TriggerReason, delay time.Duration) {
	s.cancelPendingLocked()
	s.pendingSeq++
	seq := s.pendingSeq
	s.pendingDelay = delay
	s.pending = time.AfterFunc(delay, func() { s.firePending(seq, reason) })
}

func (s *SyncService) cancelPendingLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

func (s *SyncService) firePending(seq uint64, reason TriggerReason) {
	s.mu.Lock()
	if seq != s.pendingSeq || !s.enabled {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	ctx := s.parent
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	s.runGuarded(context.WithoutCancel(ctx), reason, true)
}

// runGuarded runs unless another run holds runMu. With rearm set, a busy
// orchestrator pushes the request back by one debounce delay instead of
// dropping it, keeping a single pending slot.
func (s *SyncService) runGuarded(ctx context.Context, reason TriggerReason, rearm bool) {
	if !s.runMu.TryLock() {
		if rearm {
			s.mu.Lock()
			if s.enabled && s.pending == nil {
				s.armPendingLocked(reason, s.pendingDelay)
			}
			s.mu.Unlock()
		}
		s.verbose(s.log.WithField("trigger", reason), "Sync already running, request coalesced")
		return
	}
	defer s.runMu.Unlock()
	_, _ = s.run(ctx, reason)
}

// run performs one reconciliation pass. Callers hold runMu.
func (s *SyncService) run(ctx context.Context, reason TriggerReason) (result reconcile.Result, err error) {
	runID := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{
		"run_id":  runID,
		"trigger": reason,
	})

	s.running.Store(true)
	defer s.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync run panicked: %v", r)
			log.WithField("panic", r).Error("Panic during sync run")
			s.recordError(runID, err)
		}
	}()

	start := time.Now()
	now := s.now()

	tasks, notifications, comments, users, err := s.snapshot(ctx)
	if err != nil {
		log.WithError(err).Error("Sync aborted: failed to read collections")
		s.recordError(runID, err)
		return reconcile.Result{}, err
	}

	out := reconcile.Reconcile(reconcile.Input{
		Tasks:         tasks,
		Notifications: notifications,
		Comments:      comments,
		Users:         users,
		Now:           now,
	})
	result = out.Result

	var writeErr error
	if result.GhostsRemoved+result.NotificationsCreated+result.DuplicatesRemoved > 0 {
		writeErr = s.repo.ReplaceNotifications(ctx, out.Notifications)
	}
	if writeErr == nil && result.CommentsRemoved > 0 {
		writeErr = s.repo.ReplaceComments(ctx, out.Comments)
	}

	duration := time.Since(start)
	s.mu.Lock()
	s.stats.TotalSyncs++
	s.stats.GhostsRemoved += result.GhostsRemoved
	s.stats.NotificationsCreated += result.NotificationsCreated
	s.stats.CommentsRemoved += result.CommentsRemoved
	s.stats.DuplicatesRemoved += result.DuplicatesRemoved
	s.stats.LastSyncDurationMs = duration.Milliseconds()
	s.lastSyncTime = now
	s.mu.Unlock()

	fields := logrus.Fields{
		"ghosts_removed":        result.GhostsRemoved,
		"notifications_created": result.NotificationsCreated,
		"comments_removed":      result.CommentsRemoved,
		"duplicates_removed":    result.DuplicatesRemoved,
		"duration_ms":           duration.Milliseconds(),
	}

	if writeErr != nil {
		log.WithFields(fields).WithError(writeErr).Error("Sync failed to write repairs")
		s.recordError(runID, writeErr)
		return result, writeErr
	}

	if !result.HasChanges {
		s.verbose(log.WithFields(fields), "Sync completed, no changes")
		return result, nil
	}

	for _, id := range out.RemovedNotificationIDs {
		s.verbose(log.WithField("notification_id", id), "Removed notification")
	}
	for _, id := range out.RemovedCommentIDs {
		s.verbose(log.WithField("comment_id", id), "Removed orphan comment")
	}
	for _, id := range out.CreatedNotificationIDs {
		s.verbose(log.WithField("notification_id", id), "Created missing notification")
	}
	log.WithFields(fields).Info("Sync completed")

	s.emit(SyncEvent{
		Type:  EventSyncCompleted,
		RunID: runID,
		Summary: &SyncSummary{
			GhostsRemoved:        result.GhostsRemoved,
			NotificationsCreated: result.NotificationsCreated,
			CommentsRemoved:      result.CommentsRemoved,
		},
	})
	s.emit(SyncEvent{Type: EventNotificationsUpdated, RunID: runID})

	return result, nil
}

// snapshot reads every collection reconciliation needs; any failure aborts.
func (s *SyncService) snapshot(ctx context.Context) ([]models.Task, []models.Notification, []models.Comment, []models.User, error) {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	notifications, err := s.repo.ListNotifications(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	comments, err := s.repo.ListComments(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return tasks, notifications, comments, users, nil
}

func (s *SyncService) recordError(runID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Errors = append(s.stats.Errors, SyncError{
		Timestamp: s.now(),
		RunID:     runID,
		Error:     err.Error(),
	})
	if over := len(s.stats.Errors) - constants.MaxSyncErrors; over > 0 {
		s.stats.Errors = slices.Delete(s.stats.Errors, 0, over)
	}
}

func (s *SyncService) emit(event SyncEvent) {
	event.ID = uuid.NewString()
	event.Timestamp = s.now()

	s.mu.Lock()
	handlers := make([]func(SyncEvent), 0, len(s.subscribers))
	for _, h := range s.subscribers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.WithField("panic", r).Error("Sync event subscriber panicked")
				}
			}()
			h(event)
		}()
	}
}

func (s *SyncService) verbose(entry *logrus.Entry, msg string) {
	level := logrus.DebugLevel
	if s.DebugMode() {
		level = logrus.InfoLevel
	}
	entry.Log(level, msg)
}
