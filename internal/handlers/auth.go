package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sol1corejz/invertgold/cmd/config"
	"github.com/sol1corejz/invertgold/internal/auth"
	"github.com/sol1corejz/invertgold/internal/logger"
	"github.com/sol1corejz/invertgold/internal/middleware"
	"github.com/sol1corejz/invertgold/internal/models"
	"github.com/sol1corejz/invertgold/internal/storage"
	"github.com/sol1corejz/invertgold/internal/tokenstorage"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Name     string `json:"name" validate:"max=255"`
	LastName string `json:"last_name" validate:"max=255"`
	Sponsor  string `json:"sponsor" validate:"omitempty,max=255"`
}

type LoginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func RegisterHandler(c *fiber.Ctx) error {
	var request RegisterRequest
	if err := parseBody(c, &request); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	user := models.User{
		Username: request.Username,
		Email:    request.Email,
		Name:     request.Name,
		LastName: request.LastName,
		Role:     models.RoleMember,
	}
	if config.AdminUsername != "" && request.Username == config.AdminUsername {
		user.Role = models.RoleAdmin
	}

	if request.Sponsor != "" {
		sponsor, err := storage.Store.GetUserByLogin(ctx, request.Sponsor)
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "Unknown sponsor",
			})
		}
		if err != nil {
			logger.Log.Error("Error looking up sponsor", zap.Error(err))
			return fiber.ErrInternalServerError
		}
		user.SponsorID = &sponsor.ID
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(request.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Log.Error("Error hashing password", zap.Error(err))
		return fiber.ErrInternalServerError
	}
	user.PasswordHash = string(hashedPassword)

	user, err = storage.Store.CreateUser(ctx, user)
	if errors.Is(err, storage.ErrUserExists) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "User already exists",
		})
	}
	if err != nil {
		logger.Log.Error("Error creating user", zap.Error(err))
		return fiber.ErrInternalServerError
	}

	if err := issueSession(c, user); err != nil {
		return err
	}

	logger.Log.Info("User registered", zap.Int64("userID", user.ID), zap.String("username", user.Username))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "User registered successfully",
		"id":      user.ID,
	})
}

func LoginHandler(c *fiber.Ctx) error {
	var request LoginRequest
	if err := parseBody(c, &request); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	existingUser, err := storage.Store.GetUserByLogin(ctx, request.Login)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Wrong login or password",
		})
	}
	if err != nil {
		logger.Log.Error("Error while querying user", zap.Error(err))
		return fiber.ErrInternalServerError
	}

	if err := bcrypt.CompareHashAndPassword([]byte(existingUser.PasswordHash), []byte(request.Password)); err != nil {
		logger.Log.Info("Wrong password", zap.String("login", request.Login))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Wrong login or password",
		})
	}

	if err := issueSession(c, existingUser); err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "User authorized successfully",
	})
}

func LogoutHandler(c *fiber.Ctx) error {
	session, _ := middleware.Session(c)
	tokenstorage.RevokeToken(session.Token)

	c.Cookie(&fiber.Cookie{
		Name:     "jwt",
		Value:    "",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
	})
	return c.SendStatus(fiber.StatusNoContent)
}

func issueSession(c *fiber.Ctx, user models.User) error {
	token, expires, err := auth.GenerateToken(user)
	if err != nil {
		logger.Log.Error("Error generating token", zap.Error(err))
		return fiber.ErrInternalServerError
	}

	tokenstorage.AddToken(token, expires)

	c.Cookie(&fiber.Cookie{
		Name:     "jwt",
		Value:    token,
		Expires:  expires,
		HTTPOnly: true,
	})
	c.Set(fiber.HeaderAuthorization, "Bearer "+token)
	return nil
}
