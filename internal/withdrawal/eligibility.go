package withdrawal

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxUpcoming caps how many future windows are shown to a member.
const MaxUpcoming = 3

type Result struct {
	IsEligibleNow    bool            `json:"isEligibleNow"`
	ActiveFeePercent decimal.Decimal `json:"activeFeePercent"`
	ActiveMessage    string          `json:"activeMessage"`
	ActiveScheduleID int64           `json:"activeScheduleId,omitempty"`
	UpcomingWindows  []string        `json:"upcomingWindows"`
}

// Evaluate picks the first schedule, in input order, whose window contains
// now. When none does, it lists up to MaxUpcoming schedules starting after
// now, also in input order rather than by start time. Inverted windows are
// never active and never listed.
func Evaluate(schedules []Schedule, now time.Time) Result {
	res := Result{ActiveFeePercent: decimal.Zero, UpcomingWindows: []string{}}

	for _, s := range schedules {
		if s.Contains(now) {
			res.IsEligibleNow = true
			res.ActiveFeePercent = s.FeePercent
			res.ActiveMessage = s.Message
			res.ActiveScheduleID = s.ID
			return res
		}
	}

	for _, s := range schedules {
		if len(res.UpcomingWindows) == MaxUpcoming {
			break
		}
		if s.Valid() && s.Start.After(now) {
			res.UpcomingWindows = append(res.UpcomingWindows, s.Describe())
		}
	}
	return res
}
