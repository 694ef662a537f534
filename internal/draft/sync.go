package draft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	apperrors "github.com/alexjbarnes/inspect-sync/internal/errors"
	"github.com/alexjbarnes/inspect-sync/internal/models"
)

const (
	// DefaultMaxRetries is the number of upload attempts per sync.
	DefaultMaxRetries = 5

	// DefaultRetryDelay is the fixed wait between upload attempts.
	DefaultRetryDelay = 3 * time.Second

	// DefaultAttemptTimeout bounds a single upload attempt so a hung
	// connection counts as a transient failure.
	DefaultAttemptTimeout = 30 * time.Second
)

// SyncState is the orchestrator's position in one sync run. It is only
// reported through logs.
type SyncState int

const (
	StateIdle SyncState = iota
	StateResolvingUID
	StateLocalSave
	StateUploading
	StateSuccess
	StateFailed
)

func (s SyncState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingUID:
		return "resolving_uid"
	case StateLocalSave:
		return "local_save"
	case StateUploading:
		return "uploading"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	}

	return fmt.Sprintf("state(%d)", int(s))
}

// SyncConfig controls retry behaviour. Zero fields take the defaults.
type SyncConfig struct {
	MaxRetries     int
	RetryDelay     time.Duration
	AttemptTimeout time.Duration

	// OnProgress, if set, is called before each upload attempt.
	OnProgress func(attempt, maxAttempts int)
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}

	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}

	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}

	return c
}

// SyncTarget is what the orchestrator syncs: something that can name its
// durable UID and force a local save. Session implements it.
type SyncTarget interface {
	ResolveUID() (string, bool)
	SaveForSync(ctx context.Context) (PersistResult, error)
}

// Orchestrator runs local-save-then-upload for one session. Only one run
// may be in flight at a time.
type Orchestrator struct {
	uploader Uploader
	store    DurableStore
	cfg      SyncConfig
	logger   *slog.Logger
	now      func() time.Time
	running  atomic.Bool
}

// NewOrchestrator creates an orchestrator. store is used only to record
// successful uploads.
func NewOrchestrator(uploader Uploader, store DurableStore, cfg SyncConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		uploader: uploader,
		store:    store,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// Running reports whether a sync is in flight.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Run syncs target and reports the terminal outcome. ctx can stop the run
// only up to the start of the local save; from then on the run always
// reaches SUCCESS or FAILED.
func (o *Orchestrator) Run(ctx context.Context, target SyncTarget) models.SyncAttemptResult {
	if !o.running.CompareAndSwap(false, true) {
		return models.SyncAttemptResult{Message: apperrors.ErrSyncInProgress.Error()}
	}
	defer o.running.Store(false)

	o.enter(StateResolvingUID, "")

	uid, ok := target.ResolveUID()
	if !ok {
		return o.fail(uid, apperrors.ErrNoIdentity.Error())
	}

	if err := ctx.Err(); err != nil {
		return o.fail(uid, fmt.Sprintf("cancelled before local save: %v", err))
	}

	ctx = context.WithoutCancel(ctx)

	o.enter(StateLocalSave, uid)

	saved, err := target.SaveForSync(ctx)
	if err != nil {
		return o.fail(uid, err.Error())
	}

	if saved.UID != uid {
		return o.fail(uid, fmt.Sprintf("local save wrote %q, expected %q", saved.UID, uid))
	}

	o.enter(StateUploading, uid)

	msg, err := o.upload(ctx, uid, saved.Draft)
	if err != nil {
		return o.fail(uid, err.Error())
	}

	marked, err := o.store.MarkSynced(saved.Draft, o.now())

	switch {
	case err != nil:
		o.logger.Warn("recording sync time failed",
			slog.String("uid", uid),
			slog.String("error", err.Error()),
		)
	case !marked:
		o.logger.Info("event changed during upload, left pending", slog.String("uid", uid))
	}

	o.enter(StateSuccess, uid)

	return models.SyncAttemptResult{Success: true, Message: msg}
}

// upload makes up to MaxRetries attempts with RetryDelay between them.
// A rejection stops immediately.
func (o *Orchestrator) upload(ctx context.Context, uid string, d models.EventDraft) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		if o.cfg.OnProgress != nil {
			o.cfg.OnProgress(attempt, o.cfg.MaxRetries)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
		res, err := o.uploader.Upload(attemptCtx, uid, d)
		cancel()

		switch {
		case err == nil && res.Success:
			if res.Message == "" {
				res.Message = "uploaded"
			}

			return res.Message, nil
		case err == nil:
			lastErr = errors.New(failureMessage(res.Message))
		case errors.Is(err, apperrors.ErrUploadRejected):
			return "", err
		default:
			lastErr = err
		}

		o.logger.Warn("upload attempt failed",
			slog.String("uid", uid),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", o.cfg.MaxRetries),
			slog.String("error", lastErr.Error()),
		)

		if attempt < o.cfg.MaxRetries {
			timer := time.NewTimer(o.cfg.RetryDelay)
			<-timer.C
		}
	}

	return "", fmt.Errorf("upload failed after %d attempts: %w", o.cfg.MaxRetries, lastErr)
}

func failureMessage(msg string) string {
	if msg == "" {
		return "remote reported failure"
	}

	return msg
}

func (o *Orchestrator) enter(s SyncState, uid string) {
	o.logger.Debug("sync state", slog.String("state", s.String()), slog.String("uid", uid))
}

func (o *Orchestrator) fail(uid, msg string) models.SyncAttemptResult {
	o.logger.Warn("sync failed",
		slog.String("state", StateFailed.String()),
		slog.String("uid", uid),
		slog.String("error", msg),
	)

	return models.SyncAttemptResult{Message: msg}
}
