package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cron "github.com/netresearch/go-cron"
)

// Reaper periodically deletes sessions that were opened but never received a
// user message, e.g. created over REST without a websocket ever connecting.
type Reaper struct {
	store    Store
	schedule string
	minAge   time.Duration
	cron     *cron.Cron
}

// NewReaper builds a reaper that runs on the given cron schedule and only
// touches sessions older than minAge, so live connections that simply have
// not spoken yet are left alone.
func NewReaper(store Store, schedule string, minAge time.Duration) *Reaper {
	return &Reaper{
		store:    store,
		schedule: schedule,
		minAge:   minAge,
		cron:     cron.New(),
	}
}

// Start performs one immediate sweep of leftovers from previous runs, then
// schedules recurring sweeps.
func (r *Reaper) Start(ctx context.Context) error {
	if n, err := r.Sweep(ctx, 0); err != nil {
		slog.Warn("initial session sweep failed", "error", err)
	} else if n > 0 {
		slog.Info("reaped stale sessions", "count", n)
	}

	_, err := r.cron.AddFunc(r.schedule, r.sweepJob)
	if err != nil {
		return fmt.Errorf("schedule session reaper: %w", err)
	}
	r.cron.Start()
	slog.Info("session reaper scheduled", "schedule", r.schedule, "min_age", r.minAge)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reaper) sweepJob() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := r.Sweep(ctx, r.minAge)
	if err != nil {
		slog.Warn("session sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("reaped empty sessions", "count", n)
	}
}

// Sweep deletes unended sessions older than minAge that contain no user
// messages and reports how many were removed.
func (r *Reaper) Sweep(ctx context.Context, minAge time.Duration) (int, error) {
	candidates, err := r.store.UnendedSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}

	cutoff := time.Now().Add(-minAge)
	reaped := 0
	for _, sess := range candidates {
		if sess.StartTime.After(cutoff) {
			continue
		}
		n, err := r.store.CountEvents(ctx, sess.ID, EventUserMessage)
		if err != nil {
			slog.Warn("count session events failed", "session_id", sess.ID, "error", err)
			continue
		}
		if n > 0 {
			continue
		}
		if err := r.store.DeleteSession(ctx, sess.ID); err != nil {
			slog.Warn("delete empty session failed", "session_id", sess.ID, "error", err)
			continue
		}
		reaped++
	}
	return reaped, nil
}
