package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/sol1corejz/invertgold/internal/logger"
	"github.com/sol1corejz/invertgold/internal/storage"
	"github.com/sol1corejz/invertgold/internal/withdrawal"
	"go.uber.org/zap"
)

type SponsorRequest struct {
	SponsorID int64 `json:"sponsor_id" validate:"required,gt=0"`
}

type CreditRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func userIDParam(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid user id")
	}
	return int64(id), nil
}

// UpdateSponsorHandler moves a member under another sponsor. Moves that
// would put a member below their own downline are refused.
func UpdateSponsorHandler(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return err
	}

	var request SponsorRequest
	if err := parseBody(c, &request); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	err = storage.Store.UpdateSponsor(ctx, userID, request.SponsorID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User or sponsor not found",
		})
	case errors.Is(err, storage.ErrSponsorCycle):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Sponsor is part of the user's downline",
		})
	case err != nil:
		logger.Log.Error("Error updating sponsor", zap.Int64("userID", userID), zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	logger.Log.Info("Sponsor updated", zap.Int64("userID", userID), zap.Int64("sponsorID", request.SponsorID))
	return c.SendStatus(fiber.StatusNoContent)
}

func CreditBalanceHandler(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return err
	}

	var request CreditRequest
	if err := parseBody(c, &request); err != nil {
		return err
	}
	if !request.Amount.IsPositive() {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Amount must be greater than zero",
		})
	}
	if !withdrawal.ValidAmountScale(request.Amount) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": withdrawal.ErrAmountPrecision.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	err = storage.Store.CreditBalance(ctx, userID, request.Amount)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}
	if err != nil {
		logger.Log.Error("Error crediting balance", zap.Int64("userID", userID), zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	balance, err := storage.Store.GetUserBalance(ctx, userID)
	if err != nil {
		logger.Log.Error("Error getting user balance", zap.Int64("userID", userID), zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	logger.Log.Info("Balance credited", zap.Int64("userID", userID), zap.String("amount", request.Amount.String()))
	return c.Status(fiber.StatusOK).JSON(BalanceResponse{
		Current:   balance.CurrentBalance,
		Withdrawn: balance.WithdrawnTotal,
	})
}
