package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/sol1corejz/invertgold/internal/logger"
	"github.com/sol1corejz/invertgold/internal/middleware"
	"github.com/sol1corejz/invertgold/internal/storage"
	"go.uber.org/zap"
)

type BalanceResponse struct {
	Current   decimal.Decimal `json:"current"`
	Withdrawn decimal.Decimal `json:"withdrawn"`
}

func GetUserBalanceHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	session, _ := middleware.Session(c)

	balance, err := storage.Store.GetUserBalance(ctx, session.UserID)
	if err != nil {
		logger.Log.Error("Error getting user balance", zap.Int64("userID", session.UserID), zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusOK).JSON(BalanceResponse{
		Current:   balance.CurrentBalance,
		Withdrawn: balance.WithdrawnTotal,
	})
}
