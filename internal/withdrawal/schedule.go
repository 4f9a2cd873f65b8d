package withdrawal

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
)

// MaxFeePercent and FeeScale bound the fee percentages a schedule may carry.
var MaxFeePercent = decimal.RequireFromString("999.999")

const FeeScale = 3

// ReferenceZone anchors every schedule regardless of where the viewer is.
const ReferenceZone = "America/Bogota"

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

var (
	ErrInvalidDate     = errors.New("invalid schedule date")
	ErrInvalidTime     = errors.New("invalid schedule time")
	ErrInvalidFee      = errors.New("invalid fee percent")
	ErrInvalidID       = errors.New("invalid schedule id")
	ErrInvertedWindow  = errors.New("schedule starts after it ends")
	ErrMissingSchedule = errors.New("schedule record is empty")
)

// Location returns the named zone, or Bogota's fixed UTC-5 offset when the
// name cannot be loaded.
func Location(name string) *time.Location {
	if name == "" {
		name = ReferenceZone
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.FixedZone("COT", -5*60*60)
}

// Schedule is one administrator-defined withdrawal window.
type Schedule struct {
	ID         int64           `json:"id"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	FeePercent decimal.Decimal `json:"feePercent"`
	Message    string          `json:"message"`
}

// NewSchedule combines the date and time-of-day parts in loc. Times accept
// HH:MM or HH:MM:SS. A date may carry its own time part (2025-01-01T08:00),
// which is used when the matching time argument is empty.
func NewSchedule(id int64, startDate, endDate, startTime, endTime string, fee decimal.Decimal, message string, loc *time.Location) (Schedule, error) {
	if loc == nil {
		loc = Location(ReferenceZone)
	}
	if fee.IsNegative() || fee.GreaterThan(MaxFeePercent) || !fee.Equal(fee.Truncate(FeeScale)) {
		return Schedule{}, ErrInvalidFee
	}

	start, err := combine(startDate, startTime, loc)
	if err != nil {
		return Schedule{}, fmt.Errorf("start: %w", err)
	}
	end, err := combine(endDate, endTime, loc)
	if err != nil {
		return Schedule{}, fmt.Errorf("end: %w", err)
	}

	return Schedule{
		ID:         id,
		Start:      start,
		End:        end,
		FeePercent: fee,
		Message:    message,
	}, nil
}

// Valid reports whether the window is not inverted.
func (s Schedule) Valid() bool {
	return !s.Start.After(s.End)
}

// Contains is inclusive on both ends.
func (s Schedule) Contains(now time.Time) bool {
	return s.Valid() && !now.Before(s.Start) && !now.After(s.End)
}

// Describe renders the window the way members see it in the portal.
func (s Schedule) Describe() string {
	return fmt.Sprintf("Desde: %s hasta %s, en horarios desde %s hasta la(s) %s",
		s.Start.Format(dateLayout), s.End.Format(dateLayout),
		s.Start.Format(timeLayout), s.End.Format(timeLayout))
}

// ParseSchedule reads a backend schedule record. Spanish and English field
// names are both accepted; the fee may be a number or a numeric string.
func ParseSchedule(raw map[string]any, loc *time.Location) (Schedule, error) {
	if len(raw) == 0 {
		return Schedule{}, ErrMissingSchedule
	}

	id, err := scheduleID(first(raw, "id"))
	if err != nil {
		return Schedule{}, err
	}

	fee := decimal.Zero
	switch v := first(raw, "porcentaje", "fee_percent", "fee").(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			d, err := decimal.NewFromString(strings.TrimSpace(v))
			if err != nil {
				return Schedule{}, ErrInvalidFee
			}
			fee = d
		}
	case float64:
		fee = decimal.NewFromFloat(v)
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return Schedule{}, ErrInvalidFee
		}
		fee = d
	}

	return NewSchedule(id,
		text(raw, "fecha_inicio", "start_date"),
		text(raw, "fecha_fin", "end_date"),
		text(raw, "hora_inicio", "start_time"),
		text(raw, "hora_fin", "end_time"),
		fee,
		text(raw, "mensaje", "message"),
		loc,
	)
}

// scheduleID accepts whole numbers only; a missing id is 0.
func scheduleID(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		if t != math.Trunc(t) || t < math.MinInt64 || t >= math.MaxInt64 {
			return 0, ErrInvalidID
		}
		return int64(t), nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		return 0, ErrInvalidID
	case string:
		if strings.TrimSpace(t) == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, ErrInvalidID
		}
		return n, nil
	default:
		return 0, ErrInvalidID
	}
}

func combine(date, clock string, loc *time.Location) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)

	if i := strings.IndexByte(date, 'T'); i >= 0 {
		if clock == "" {
			clock = trimZone(date[i+1:])
		}
		date = date[:i]
	}

	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}

	var h, m, sec int
	if clock != "" {
		h, m, sec, err = parseClock(clock)
		if err != nil {
			return time.Time{}, err
		}
	}
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, sec, 0, loc), nil
}

func parseClock(clock string) (int, int, int, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, clock); err == nil {
			return t.Hour(), t.Minute(), t.Second(), nil
		}
	}
	return 0, 0, 0, ErrInvalidTime
}

// trimZone drops fractional seconds and any zone suffix; the reference zone
// always wins over whatever offset the backend serialised.
func trimZone(clock string) string {
	if i := strings.IndexAny(clock, ".Z+-"); i >= 0 {
		return clock[:i]
	}
	return clock
}

func first(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func text(raw map[string]any, keys ...string) string {
	if s, ok := first(raw, keys...).(string); ok {
		return s
	}
	return ""
}
