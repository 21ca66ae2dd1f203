package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
	"github.com/mohammad-safakhou/morningdrive/internal/queue/streams"
)

// SchedulerStore is the persistence the scheduler needs.
type SchedulerStore interface {
	ListEnabledSchedules(ctx context.Context) ([]briefing.Schedule, error)
	LatestBriefingTime(ctx context.Context, userID string) (*time.Time, error)
	CreateBriefing(ctx context.Context, userID, title string) (briefing.Briefing, error)
	UpdateBriefingStatus(ctx context.Context, id string, status briefing.Status) (bool, error)
}

// Scheduler creates briefings for users whose schedule has come due.
type Scheduler struct {
	Store   SchedulerStore
	Queue   Enqueuer
	Rdb     *redis.Client // nil disables the cross-instance lock
	Tick    time.Duration
	LockTTL time.Duration
	Logger  *log.Logger
	Now     func() time.Time
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	tick := s.Tick
	if tick <= 0 {
		tick = time.Minute
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce evaluates every enabled schedule and returns how many briefings it queued.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	schedules, err := s.Store.ListEnabledSchedules(ctx)
	if err != nil {
		s.logf("warn: list schedules: %v", err)
		return 0
	}
	now := s.now()
	fired := 0
	for _, sc := range schedules {
		last, err := s.Store.LatestBriefingTime(ctx, sc.UserID)
		if err != nil {
			s.logf("warn: latest briefing for %s: %v", sc.UserID, err)
			continue
		}
		due, slot := isDue(sc, last, now)
		if !due {
			continue
		}
		if !s.lock(ctx, sc.UserID, slot) {
			continue
		}
		if err := s.fire(ctx, sc, now); err != nil {
			s.logf("warn: scheduled briefing for %s: %v", sc.UserID, err)
			continue
		}
		fired++
	}
	return fired
}

// lock takes a per-user, per-slot lock that is left to expire so a second
// instance ticking in the same window skips the slot.
func (s *Scheduler) lock(ctx context.Context, userID string, slot time.Time) bool {
	if s.Rdb == nil {
		return true
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	key := fmt.Sprintf("morningdrive:sched:lock:%s:%d", userID, slot.Unix())
	ok, err := s.Rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		s.logf("warn: scheduler lock %s: %v", key, err)
		return false
	}
	return ok
}

func (s *Scheduler) fire(ctx context.Context, sc briefing.Schedule, now time.Time) error {
	b, err := s.Store.CreateBriefing(ctx, sc.UserID, BriefingTitle(now.In(scheduleLocation(sc))))
	if err != nil {
		return fmt.Errorf("create briefing: %w", err)
	}
	if _, err := s.Queue.PublishBriefingRequested(ctx, streams.BriefingRequested{
		BriefingID: b.ID, UserID: sc.UserID, Trigger: streams.TriggerSchedule, RequestedAt: now.UTC(),
	}); err != nil {
		if _, ferr := s.Store.UpdateBriefingStatus(ctx, b.ID, briefing.StatusFailed); ferr != nil {
			s.logf("warn: mark briefing %s failed: %v", b.ID, ferr)
		}
		return fmt.Errorf("enqueue briefing %s: %w", b.ID, err)
	}
	s.logf("queued scheduled briefing %s for %s", b.ID, sc.UserID)
	return nil
}

func scheduleLocation(sc briefing.Schedule) *time.Location {
	if loc, err := time.LoadLocation(sc.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

// isDue reports whether the schedule fired between the user's latest
// briefing and now, evaluating the cron spec in the user's timezone. A user
// with no briefing looks back one day. The returned slot is the fire time.
func isDue(sc briefing.Schedule, last *time.Time, now time.Time) (bool, time.Time) {
	if !sc.Enabled {
		return false, time.Time{}
	}
	expr, err := cronexpr.Parse(sc.CronSpec())
	if err != nil {
		return false, time.Time{}
	}
	loc := scheduleLocation(sc)
	base := now.Add(-24 * time.Hour)
	if last != nil {
		base = *last
	}
	next := expr.Next(base.In(loc))
	if next.IsZero() || next.After(now) {
		return false, time.Time{}
	}
	// only the most recent missed slot counts
	for {
		after := expr.Next(next)
		if after.IsZero() || after.After(now) {
			return true, next
		}
		next = after
	}
}
