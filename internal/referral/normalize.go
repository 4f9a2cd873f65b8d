package referral

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DefaultName is shown for members whose record carries no name.
const DefaultName = "Usuario"

// Record is the canonical shape of a referral record.
type Record struct {
	ID        int64  `json:"id"`
	SponsorID *int64 `json:"sponsorId"`
	Name      string `json:"name"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Level     int    `json:"level"`
}

func (r Record) DisplayName() string {
	return strings.TrimSpace(r.Name + " " + r.LastName)
}

// Normalize maps the field aliases seen in backend responses onto Record.
// The second return value is false when the record has no usable id.
func Normalize(raw RawRecord) (Record, bool) {
	id, ok := intValue(firstOf(raw, idKeys))
	if !ok {
		return Record{}, false
	}

	rec := Record{
		ID:       id,
		Name:     stringValue(firstOf(raw, []string{"nombre", "name", "first_name"})),
		LastName: stringValue(firstOf(raw, []string{"apellido", "apellidos", "last_name", "lastName"})),
		Username: stringValue(firstOf(raw, []string{"username", "usuario"})),
		Email:    stringValue(firstOf(raw, []string{"correo", "email"})),
	}
	if rec.Name == "" {
		rec.Name = DefaultName
	}
	if sponsor, ok := intValue(firstOf(raw, sponsorKeys)); ok {
		rec.SponsorID = &sponsor
	}
	if level, ok := intValue(firstOf(raw, []string{"nivel", "level"})); ok {
		rec.Level = int(level)
	}
	return rec, true
}

// NormalizeAll drops records without an id and keeps input order.
func NormalizeAll(raw []RawRecord) []Record {
	out := make([]Record, 0, len(raw))
	for _, r := range raw {
		if rec, ok := Normalize(r); ok {
			out = append(out, rec)
		}
	}
	return out
}

func intValue(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return wholeFloat(f)
		}
	case float64:
		return wholeFloat(t)
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func wholeFloat(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
