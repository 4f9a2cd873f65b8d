package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sol1corejz/invertgold/cmd/config"
	"github.com/sol1corejz/invertgold/internal/logger"
	"github.com/sol1corejz/invertgold/internal/models"
	"github.com/sol1corejz/invertgold/internal/storage"
	"github.com/sol1corejz/invertgold/internal/withdrawal"
	"go.uber.org/zap"
)

const DefaultRefreshInterval = 30 * time.Second

// ScheduleWatcher holds the latest snapshot of withdrawal schedules and logs
// when a withdrawal window opens or closes.
type ScheduleWatcher struct {
	mu        sync.RWMutex
	loc       *time.Location
	schedules []withdrawal.Schedule
	open      bool
	activeID  int64
}

var Schedules = NewScheduleWatcher(withdrawal.Location(withdrawal.ReferenceZone))

func NewScheduleWatcher(loc *time.Location) *ScheduleWatcher {
	return &ScheduleWatcher{loc: loc}
}

func InitScheduleWatcher(ctx context.Context) {
	Schedules = NewScheduleWatcher(withdrawal.Location(config.ScheduleZone))

	interval := config.ScheduleRefresh
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	go Schedules.run(ctx, interval)

	logger.Log.Info("Withdrawal schedule watcher started",
		zap.String("zone", Schedules.loc.String()),
		zap.Duration("interval", interval))
}

func (w *ScheduleWatcher) run(ctx context.Context, interval time.Duration) {
	if err := w.Refresh(ctx); err != nil {
		logger.Log.Error("Error loading withdrawal schedules", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Withdrawal schedule watcher stopped")
			return
		case <-ticker.C:
			if err := w.Refresh(ctx); err != nil {
				logger.Log.Error("Error refreshing withdrawal schedules", zap.Error(err))
			}
		}
	}
}

// Refresh reloads schedules from storage and swaps the snapshot.
func (w *ScheduleWatcher) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := storage.Store.GetSchedules(ctx)
	if err != nil {
		return err
	}

	schedules := make([]withdrawal.Schedule, 0, len(rows))
	for _, row := range rows {
		s, err := ToSchedule(row, w.loc)
		if err != nil {
			logger.Log.Warn("Skipping unreadable withdrawal schedule", zap.Int64("scheduleID", row.ID), zap.Error(err))
			continue
		}
		if !s.Valid() {
			logger.Log.Warn("Withdrawal schedule ends before it starts", zap.Int64("scheduleID", row.ID))
		}
		schedules = append(schedules, s)
	}

	w.mu.Lock()
	w.schedules = schedules
	w.mu.Unlock()

	w.observe(time.Now())
	return nil
}

func (w *ScheduleWatcher) observe(now time.Time) {
	res := w.Evaluate(now)

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case res.IsEligibleNow && (!w.open || w.activeID != res.ActiveScheduleID):
		logger.Log.Info("Withdrawal window open",
			zap.Int64("scheduleID", res.ActiveScheduleID),
			zap.String("feePercent", res.ActiveFeePercent.String()))
	case !res.IsEligibleNow && w.open:
		logger.Log.Info("Withdrawal window closed", zap.Int64("scheduleID", w.activeID))
	}
	w.open = res.IsEligibleNow
	w.activeID = res.ActiveScheduleID
}

func (w *ScheduleWatcher) Evaluate(now time.Time) withdrawal.Result {
	return withdrawal.Evaluate(w.Snapshot(), now)
}

// Snapshot returns a copy of the current schedules in storage order.
func (w *ScheduleWatcher) Snapshot() []withdrawal.Schedule {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]withdrawal.Schedule, len(w.schedules))
	copy(out, w.schedules)
	return out
}

func (w *ScheduleWatcher) Location() *time.Location {
	return w.loc
}

func ToSchedule(row models.WithdrawalSchedule, loc *time.Location) (withdrawal.Schedule, error) {
	return withdrawal.NewSchedule(row.ID, row.StartDate, row.EndDate, row.StartTime, row.EndTime, row.FeePercent, row.Message, loc)
}
