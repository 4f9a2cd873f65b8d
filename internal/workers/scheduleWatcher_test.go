package workers

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sol1corejz/invertgold/internal/models"
	"github.com/sol1corejz/invertgold/internal/storage"
	"github.com/sol1corejz/invertgold/internal/withdrawal"
)

func TestScheduleWatcherRefresh(t *testing.T) {
	mem := storage.NewMemory()
	storage.Store = mem
	ctx := context.Background()

	loc := withdrawal.Location(withdrawal.ReferenceZone)
	today := time.Now().In(loc).Format("2006-01-02")

	_, _ = mem.CreateSchedule(ctx, models.WithdrawalSchedule{
		StartDate: today, EndDate: today, StartTime: "00:00", EndTime: "23:59:59",
		FeePercent: decimal.NewFromInt(3), Message: "open today",
	})
	_, _ = mem.CreateSchedule(ctx, models.WithdrawalSchedule{
		StartDate: "bad", EndDate: today, StartTime: "00:00", EndTime: "01:00",
	})

	w := NewScheduleWatcher(loc)
	if err := w.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if got := len(w.Snapshot()); got != 1 {
		t.Fatalf("expected unreadable schedule to be skipped, got %d schedules", got)
	}

	noon := time.Now().In(loc)
	noon = time.Date(noon.Year(), noon.Month(), noon.Day(), 12, 0, 0, 0, loc)
	res := w.Evaluate(noon)
	if !res.IsEligibleNow || res.ActiveMessage != "open today" {
		t.Fatalf("expected open window, got %+v", res)
	}
	if !res.ActiveFeePercent.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected fee 3, got %s", res.ActiveFeePercent)
	}
}

func TestScheduleWatcherSnapshotIsCopy(t *testing.T) {
	storage.Store = storage.NewMemory()
	ctx := context.Background()

	_, _ = storage.Store.CreateSchedule(ctx, models.WithdrawalSchedule{
		StartDate: "2030-01-01", EndDate: "2030-01-02", StartTime: "08:00", EndTime: "10:00",
	})

	w := NewScheduleWatcher(withdrawal.Location(withdrawal.ReferenceZone))
	if err := w.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	snap := w.Snapshot()
	snap[0].Message = "changed"
	if w.Snapshot()[0].Message == "changed" {
		t.Fatal("snapshot must not alias watcher state")
	}
}

func TestToSchedule(t *testing.T) {
	loc := withdrawal.Location(withdrawal.ReferenceZone)
	s, err := ToSchedule(models.WithdrawalSchedule{
		ID: 9, StartDate: "2025-01-01", EndDate: "2025-01-01", StartTime: "08:00:00", EndTime: "10:00:00",
		FeePercent: decimal.NewFromFloat(2.5),
	}, loc)
	if err != nil {
		t.Fatalf("to schedule: %v", err)
	}
	if s.ID != 9 || !s.Start.Equal(time.Date(2025, 1, 1, 8, 0, 0, 0, loc)) {
		t.Fatalf("unexpected schedule: %+v", s)
	}
}
