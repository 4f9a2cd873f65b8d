package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sol1corejz/invertgold/internal/logger"
	"github.com/sol1corejz/invertgold/internal/middleware"
	"github.com/sol1corejz/invertgold/internal/models"
	"github.com/sol1corejz/invertgold/internal/storage"
	"github.com/sol1corejz/invertgold/internal/withdrawal"
	"github.com/sol1corejz/invertgold/internal/workers"
	"go.uber.org/zap"
)

type WithdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type QuoteResponse struct {
	withdrawal.Quote
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type WithdrawalsResponse struct {
	Reference   string          `json:"reference"`
	Amount      decimal.Decimal `json:"amount"`
	FeePercent  decimal.Decimal `json:"fee_percent"`
	Fee         decimal.Decimal `json:"fee"`
	Net         decimal.Decimal `json:"net"`
	ScheduleID  *int64          `json:"schedule_id,omitempty"`
	ProcessedAt time.Time       `json:"processed_at"`
}

func toWithdrawalResponse(w models.Withdrawal) WithdrawalsResponse {
	return WithdrawalsResponse{
		Reference:   w.Reference.String(),
		Amount:      w.Amount,
		FeePercent:  w.FeePercent,
		Fee:         w.Fee,
		Net:         w.Net,
		ScheduleID:  w.ScheduleID,
		ProcessedAt: w.ProcessedAt,
	}
}

// validationStatus maps a failed gate to the status the portal shows.
func validationStatus(err error) int {
	switch {
	case errors.Is(err, withdrawal.ErrInsufficientFunds), errors.Is(err, storage.ErrInsufficientFunds):
		return fiber.StatusPaymentRequired
	case errors.Is(err, withdrawal.ErrNonPositiveAmount),
		errors.Is(err, withdrawal.ErrAmountPrecision),
		errors.Is(err, withdrawal.ErrNonPositiveNet),
		errors.Is(err, withdrawal.ErrOutsideWindow):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func GetEligibilityHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(workers.Schedules.Evaluate(now()))
}

// QuoteHandler previews fee and net amount without submitting anything.
func QuoteHandler(c *fiber.Ctx) error {
	var request WithdrawRequest
	if err := parseBody(c, &request); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	session, _ := middleware.Session(c)

	balance, err := storage.Store.GetUserBalance(ctx, session.UserID)
	if err != nil {
		logger.Log.Error("Error getting user balance", zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	quote, err := withdrawal.Validate(request.Amount, balance.CurrentBalance, workers.Schedules.Evaluate(now()))
	response := QuoteResponse{Quote: quote, Valid: err == nil}
	if err != nil {
		response.Error = err.Error()
	}
	return c.Status(fiber.StatusOK).JSON(response)
}

func WithdrawHandler(c *fiber.Ctx) error {
	var request WithdrawRequest
	if err := parseBody(c, &request); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	session, _ := middleware.Session(c)

	balance, err := storage.Store.GetUserBalance(ctx, session.UserID)
	if err != nil {
		logger.Log.Error("Error getting user balance", zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	form := withdrawal.NewForm(balance.CurrentBalance, workers.Schedules.Evaluate(now()))
	if err := form.EnterAmount(request.Amount); err != nil {
		return err
	}
	if _, err := form.ComputeFee(); err != nil {
		return err
	}
	if _, err := form.Validate(); err != nil {
		return c.Status(validationStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	var created models.Withdrawal
	err = form.Submit(ctx, func(ctx context.Context, q withdrawal.Quote) error {
		w := models.Withdrawal{
			UserID:     session.UserID,
			Reference:  uuid.New(),
			Amount:     q.Amount,
			FeePercent: q.FeePercent,
			Fee:        q.Fee,
			Net:        q.Net,
		}
		if q.ScheduleID != 0 {
			id := q.ScheduleID
			w.ScheduleID = &id
		}

		var err error
		created, err = storage.Store.CreateWithdrawal(ctx, w)
		return err
	})
	if err != nil {
		status := validationStatus(err)
		if status == fiber.StatusInternalServerError {
			logger.Log.Error("Error creating withdrawal", zap.Int64("userID", session.UserID), zap.Error(err))
			return c.SendStatus(status)
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	logger.Log.Info("Withdrawal created successfully",
		zap.Int64("userID", session.UserID),
		zap.String("reference", created.Reference.String()),
		zap.String("amount", created.Amount.String()),
		zap.String("net", created.Net.String()))
	return c.Status(fiber.StatusOK).JSON(toWithdrawalResponse(created))
}

func GetWithdrawalsHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	session, _ := middleware.Session(c)

	withdrawals, err := storage.Store.GetUserWithdrawals(ctx, session.UserID)
	if err != nil {
		logger.Log.Error("Error getting user withdrawals", zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	if len(withdrawals) == 0 {
		logger.Log.Info("No withdrawals found", zap.Int64("userID", session.UserID))
		return c.SendStatus(fiber.StatusNoContent)
	}

	response := make([]WithdrawalsResponse, 0, len(withdrawals))
	for _, w := range withdrawals {
		response = append(response, toWithdrawalResponse(w))
	}

	return c.Status(fiber.StatusOK).JSON(response)
}
