package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/sol1corejz/invertgold/internal/logger"
	"github.com/sol1corejz/invertgold/internal/models"
	"github.com/sol1corejz/invertgold/internal/storage"
	"github.com/sol1corejz/invertgold/internal/withdrawal"
	"github.com/sol1corejz/invertgold/internal/workers"
	"go.uber.org/zap"
)

type ScheduleRequest struct {
	StartDate  string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string          `json:"end_date" validate:"required,datetime=2006-01-02"`
	StartTime  string          `json:"start_time" validate:"required"`
	EndTime    string          `json:"end_time" validate:"required"`
	FeePercent decimal.Decimal `json:"fee_percent"`
	Message    string          `json:"message" validate:"max=500"`
}

type DeleteSchedulesRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

type ScheduleResponse struct {
	ID          int64           `json:"id"`
	StartDate   string          `json:"start_date"`
	EndDate     string          `json:"end_date"`
	StartTime   string          `json:"start_time"`
	EndTime     string          `json:"end_time"`
	FeePercent  decimal.Decimal `json:"fee_percent"`
	Message     string          `json:"message"`
	Description string          `json:"description,omitempty"`
	Valid       bool            `json:"valid"`
}

func toScheduleResponse(row models.WithdrawalSchedule) ScheduleResponse {
	response := ScheduleResponse{
		ID:         row.ID,
		StartDate:  row.StartDate,
		EndDate:    row.EndDate,
		StartTime:  row.StartTime,
		EndTime:    row.EndTime,
		FeePercent: row.FeePercent,
		Message:    row.Message,
	}
	if s, err := workers.ToSchedule(row, workers.Schedules.Location()); err == nil {
		response.Description = s.Describe()
		response.Valid = s.Valid()
	}
	return response
}

func GetSchedulesHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	rows, err := storage.Store.GetSchedules(ctx)
	if err != nil {
		logger.Log.Error("Error getting withdrawal schedules", zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	if len(rows) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	response := make([]ScheduleResponse, 0, len(rows))
	for _, row := range rows {
		response = append(response, toScheduleResponse(row))
	}
	return c.Status(fiber.StatusOK).JSON(response)
}

func CreateScheduleHandler(c *fiber.Ctx) error {
	var request ScheduleRequest
	if err := parseBody(c, &request); err != nil {
		return err
	}

	row := models.WithdrawalSchedule{
		StartDate:  request.StartDate,
		EndDate:    request.EndDate,
		StartTime:  request.StartTime,
		EndTime:    request.EndTime,
		FeePercent: request.FeePercent,
		Message:    request.Message,
	}

	s, err := workers.ToSchedule(row, workers.Schedules.Location())
	if err == nil && !s.Valid() {
		err = withdrawal.ErrInvertedWindow
	}
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	row, err = storage.Store.CreateSchedule(ctx, row)
	if err != nil {
		logger.Log.Error("Error creating withdrawal schedule", zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	refreshSchedules(ctx)

	logger.Log.Info("Withdrawal schedule created", zap.Int64("scheduleID", row.ID), zap.String("window", s.Describe()))
	return c.Status(fiber.StatusCreated).JSON(toScheduleResponse(row))
}

func DeleteScheduleHandler(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid schedule id")
	}

	return deleteSchedules(c, []int64{int64(id)})
}

func DeleteSchedulesHandler(c *fiber.Ctx) error {
	var request DeleteSchedulesRequest
	if err := parseBody(c, &request); err != nil {
		return err
	}

	return deleteSchedules(c, request.IDs)
}

func deleteSchedules(c *fiber.Ctx, ids []int64) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	deleted, err := storage.Store.DeleteSchedules(ctx, ids)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Log.Error("Error deleting withdrawal schedules", zap.Int64s("ids", ids), zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	if deleted == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Schedule not found",
		})
	}

	refreshSchedules(ctx)

	logger.Log.Info("Withdrawal schedules deleted", zap.Int64s("ids", ids), zap.Int64("deleted", deleted))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"deleted": deleted,
	})
}

func refreshSchedules(ctx context.Context) {
	if err := workers.Schedules.Refresh(ctx); err != nil {
		logger.Log.Error("Error refreshing withdrawal schedules", zap.Error(err))
	}
}
