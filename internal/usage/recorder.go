// Package usage records one audit entry per generation attempt that reached
// a provider.
package usage

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

// Store persists usage records. Records are append-only.
type Store interface {
	Append(ctx context.Context, rec *models.UsageRecord) error
}

// Entry is what a caller knows about a finished attempt.
type Entry struct {
	UserID       string
	Provider     models.Provider
	Prompt       string
	Parameters   models.Parameters
	Status       models.UsageStatus
	ResponseTime time.Duration
}

// Recorder writes entries to a Store. Recording is best-effort: failures are
// logged and never reach the caller.
type Recorder struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
}

// NewRecorder creates a Recorder. A nil store turns Record into a no-op.
func NewRecorder(store Store, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{store: store, timeout: timeout, now: time.Now}
}

// Record appends one usage record for e. The write runs on a context detached
// from ctx cancellation and bounded by the recorder's own timeout, so a client
// that hung up still gets its attempt recorded.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.store == nil {
		return
	}

	rec := &models.UsageRecord{
		ID:             uuid.New().String(),
		UserID:         e.UserID,
		Provider:       e.Provider,
		Prompt:         e.Prompt,
		ResponseTimeMs: e.ResponseTime.Milliseconds(),
		Status:         e.Status,
		Parameters:     e.Parameters,
		CreatedAt:      r.now().UTC(),
	}

	defer func() {
		if p := recover(); p != nil {
			log.Printf("[usage] panic recording %s call %s for user %s: %v", rec.Provider, rec.ID, rec.UserID, p)
		}
	}()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.store.Append(writeCtx, rec); err != nil {
		log.Printf("[usage] failed to record %s call %s for user %s: %v", rec.Provider, rec.ID, rec.UserID, err)
	}
}
