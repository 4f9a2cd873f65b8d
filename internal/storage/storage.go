package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sol1corejz/invertgold/cmd/config"
	"github.com/sol1corejz/invertgold/internal/logger"
	"github.com/sol1corejz/invertgold/internal/models"
	"go.uber.org/zap"
)

var (
	ErrConnectionFailed    = errors.New("db connection failed")
	ErrCreatingTableFailed = errors.New("creating table failed")
	ErrNotFound            = errors.New("not found")
	ErrUserExists          = errors.New("user exists")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrSponsorCycle        = errors.New("sponsor would create a cycle")
)

// Repository is everything the portal persists.
type Repository interface {
	GetUserByLogin(ctx context.Context, login string) (models.User, error)
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	UpdateSponsor(ctx context.Context, userID, sponsorID int64) error

	// GetDownlinePayload returns the member and everyone below them as a JSON
	// array in the legacy referral shape (usuario_id, sponsor_id, nombre...).
	GetDownlinePayload(ctx context.Context, userID int64) ([]byte, error)

	GetUserBalance(ctx context.Context, userID int64) (models.UserBalance, error)
	CreditBalance(ctx context.Context, userID int64, amount decimal.Decimal) error
	CreateWithdrawal(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error)
	GetUserWithdrawals(ctx context.Context, userID int64) ([]models.Withdrawal, error)

	GetSchedules(ctx context.Context) ([]models.WithdrawalSchedule, error)
	CreateSchedule(ctx context.Context, s models.WithdrawalSchedule) (models.WithdrawalSchedule, error)
	DeleteSchedules(ctx context.Context, ids []int64) (int64, error)
}

// Store is the repository the handlers and workers use.
var Store Repository

func Init() error {
	if config.DatabaseURI == "" {
		logger.Log.Warn("DATABASE_URI is empty, falling back to in-memory storage")
		Store = NewMemory()
		return nil
	}

	pg, err := NewPostgres(config.DatabaseURI)
	if err != nil {
		logger.Log.Error("Error opening database", zap.Error(err))
		return err
	}
	Store = pg
	return nil
}

// legacyRecord is the referral row shape the downline payload is encoded in.
type legacyRecord struct {
	ID        int64  `json:"usuario_id"`
	SponsorID *int64 `json:"sponsor_id"`
	Name      string `json:"nombre"`
	LastName  string `json:"apellido"`
	Username  string `json:"usuario"`
	Email     string `json:"correo"`
}
