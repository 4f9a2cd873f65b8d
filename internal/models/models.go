package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type User struct {
	ID           int64     `db:"id"`
	SponsorID    *int64    `db:"sponsor_id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	LastName     string    `db:"last_name"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}

type UserBalance struct {
	ID             int64           `db:"id"`
	UserID         int64           `db:"user_id"`
	CurrentBalance decimal.Decimal `db:"current_balance"`
	WithdrawnTotal decimal.Decimal `db:"withdrawn_total"`
}

type Withdrawal struct {
	ID          int64           `db:"id"`
	UserID      int64           `db:"user_id"`
	Reference   uuid.UUID       `db:"reference"`
	ScheduleID  *int64          `db:"schedule_id"`
	Amount      decimal.Decimal `db:"amount"`
	FeePercent  decimal.Decimal `db:"fee_percent"`
	Fee         decimal.Decimal `db:"fee"`
	Net         decimal.Decimal `db:"net"`
	ProcessedAt time.Time       `db:"processed_at"`
}

// WithdrawalSchedule keeps dates and times as the admin entered them; they
// are combined in the reference zone when evaluated.
type WithdrawalSchedule struct {
	ID         int64           `db:"id"`
	StartDate  string          `db:"start_date"`
	EndDate    string          `db:"end_date"`
	StartTime  string          `db:"start_time"`
	EndTime    string          `db:"end_time"`
	FeePercent decimal.Decimal `db:"fee_percent"`
	Message    string          `db:"message"`
	CreatedAt  time.Time       `db:"created_at"`
}
