package main

import (
	"log"
	"strings"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/audit"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/auth"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/billing"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/catalog"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/config"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/database"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/timesheet"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func main() {
	cfg := config.Load()
	database.Init(cfg)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			log.Println("Unexpected error:", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "unexpected server error",
			})
		},
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	// Admin routes
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))

	// User directory
	adminRoutes.Post("/users", auth.CreateUserHandler())
	protected.Get("/users", auth.ListUsersHandler())

	// Catalog
	adminRoutes.Post("/clients", catalog.CreateClientHandler())
	adminRoutes.Post("/projects", catalog.CreateProjectHandler())
	adminRoutes.Post("/tasks", catalog.CreateTaskHandler())

	protected.Get("/clients", catalog.ListClientsHandler())
	protected.Get("/projects", catalog.ListProjectsHandler())
	protected.Get("/tasks", catalog.ListTasksHandler())

	// Timesheets & entries
	protected.Post("/timesheets", timesheet.CreateTimesheetHandler())
	protected.Get("/timesheets", timesheet.ListTimesheetsHandler())
	protected.Put("/timesheets/:id/status", timesheet.UpdateStatusHandler())
	protected.Post("/timesheets/:id/entries", timesheet.CreateEntryHandler())
	protected.Get("/timesheets/:id/entries", timesheet.ListEntriesHandler())
	protected.Delete("/entries/:id", timesheet.DeleteEntryHandler())

	// Billing reads
	protected.Get("/billing/aggregation", billing.AggregationHandler())
	protected.Get("/billing/aggregation/export", billing.AggregationExportHandler())
	protected.Get("/billing/breakdown", billing.BreakdownHandler())
	protected.Get("/billing/snapshots", billing.ListSnapshotsHandler())
	protected.Get("/reviews", billing.ListReviewsHandler())

	// Billing writes, management and up
	managed := protected.Group("/billing")
	managed.Use(auth.RequireRole(models.RoleAdmin, models.RoleManagement))
	managed.Put("/adjustments", billing.UpsertAdjustmentHandler())
	managed.Delete("/adjustments/:id", billing.DeleteAdjustmentHandler())
	managed.Post("/snapshots/generate", billing.GenerateSnapshotsHandler())
	managed.Delete("/snapshots/:id", billing.DeleteSnapshotHandler())

	protected.Post("/reviews",
		auth.RequireRole(models.RoleAdmin, models.RoleManagement),
		billing.RecordReviewHandler())

	// Hard delete stays admin-only
	adminRoutes.Delete("/billing/snapshots/:id/permanent", billing.HardDeleteSnapshotHandler())

	// Audit logs
	protected.Get("/audit-logs", audit.ListAuditLogsHandler())

	log.Println("Server listening on port:", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
