package main

import (
	"comedor-backend/internal/audit"
	"comedor-backend/internal/auth"
	"comedor-backend/internal/consumptions"
	"comedor-backend/internal/dashboard"
	"comedor-backend/internal/httpx"
	"comedor-backend/internal/middleware"
	"comedor-backend/internal/models"
	"comedor-backend/internal/payments"
	"comedor-backend/internal/prices"
	"comedor-backend/internal/products"
	"comedor-backend/internal/receipts"
	"comedor-backend/internal/rollcall"
	"comedor-backend/internal/statements"
	"comedor-backend/internal/students"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func newApp(d *httpx.Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: httpx.ErrorHandler,
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		BodyLimit:    receipts.MaxUploadSize + 1024*1024,
	})

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${locals:request_id} ${status} ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: d.Cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods: "GET,POST,PUT,PATCH,OPTIONS",
	}))

	if d.Cfg.ReceiptStorage != "oss" && d.Cfg.ReceiptPath != "" {
		app.Static(d.Cfg.ReceiptBaseURL, d.Cfg.ReceiptPath)
	}

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(d))
	api.Post("/auth/login", auth.LoginHandler(d))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(d.Cfg.JWTSecret))
	adminOnly := auth.RequireRole(models.RoleAdmin)

	protected.Get("/auth/me", auth.MeHandler(d))
	protected.Post("/users", adminOnly, auth.CreateUserHandler(d))

	// Estudiantes
	protected.Get("/students", students.ListHandler(d))
	protected.Get("/students/search", students.SearchHandler(d))
	protected.Post("/students/import", students.ImportHandler(d))
	protected.Post("/students", students.CreateHandler(d))
	protected.Get("/students/:id/statement.xlsx", statements.ExportHandler(d))
	protected.Get("/students/:id/statement", statements.GetHandler(d))
	protected.Get("/students/:id", students.DetailHandler(d))
	protected.Put("/students/:id", students.UpdateHandler(d))
	protected.Patch("/students/:id/toggle", students.ToggleHandler(d))

	// Productos
	protected.Get("/products", products.ListHandler(d))
	protected.Post("/products", adminOnly, products.CreateHandler(d))
	protected.Put("/products/:id", adminOnly, products.UpdateHandler(d))
	protected.Patch("/products/:id/toggle", adminOnly, products.ToggleHandler(d))

	// Precios
	protected.Get("/prices", prices.ListHandler(d))
	protected.Post("/prices", adminOnly, prices.ChangeHandler(d))

	// Consumos y pagos
	protected.Get("/consumptions", consumptions.ListHandler(d))
	protected.Post("/consumptions", consumptions.CreateHandler(d))
	protected.Get("/payments", payments.ListHandler(d))
	protected.Post("/payments", payments.CreateHandler(d))

	// Lista del día
	protected.Get("/roll-call", rollcall.GetSheetHandler(d))
	protected.Post("/roll-call", rollcall.PostHandler(d))

	// Dashboard
	protected.Get("/dashboard", dashboard.OverviewHandler(d))
	protected.Get("/dashboard/cash-chart", dashboard.CashChartHandler(d))

	// Audit logs
	protected.Get("/audit-logs", adminOnly, audit.ListAuditLogsHandler(d))

	return app
}
