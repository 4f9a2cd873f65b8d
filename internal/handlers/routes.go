package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/sol1corejz/invertgold/cmd/config"
	"github.com/sol1corejz/invertgold/internal/middleware"
)

func NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	loginLimiter := middleware.NewRateLimiter(config.LoginRate, config.LoginBurst)

	app.Post("/api/user/register", RegisterHandler)
	app.Post("/api/user/login", loginLimiter.Handler, LoginHandler)

	authRoutes := app.Group("/api/user", middleware.AuthMiddleware)
	authRoutes.Post("/logout", LogoutHandler)
	authRoutes.Get("/balance", GetUserBalanceHandler)
	authRoutes.Post("/balance/withdraw", WithdrawHandler)
	authRoutes.Get("/withdrawals", GetWithdrawalsHandler)
	authRoutes.Get("/withdrawals/eligibility", GetEligibilityHandler)
	authRoutes.Post("/withdrawals/quote", QuoteHandler)
	authRoutes.Get("/referrals/tree", GetReferralTreeHandler)
	authRoutes.Get("/referrals/members", GetMembersHandler)

	adminRoutes := app.Group("/api/admin", middleware.AuthMiddleware, middleware.AdminMiddleware)
	adminRoutes.Get("/schedules", GetSchedulesHandler)
	adminRoutes.Post("/schedules", CreateScheduleHandler)
	adminRoutes.Delete("/schedules", DeleteSchedulesHandler)
	adminRoutes.Delete("/schedules/:id", DeleteScheduleHandler)
	adminRoutes.Put("/users/:id/sponsor", UpdateSponsorHandler)
	adminRoutes.Post("/users/:id/credit", CreditBalanceHandler)
	adminRoutes.Post("/referrals/inspect", InspectReferralsHandler)

	return app
}
