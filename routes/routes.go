package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	controller "reachly/controllers"
	"reachly/middleware"
	"reachly/worker"
)

func SetupRoutes(app *fiber.App, db *gorm.DB, automation *worker.AutomationWorker) {
	apiLogger := log.New(os.Stdout, "API: ", log.Ldate|log.Ltime|log.Lshortfile)

	broadcastController := controller.NewBroadcastController(db, apiLogger)
	automationController := controller.NewAutomationController(db, apiLogger)
	contactController := controller.NewContactController(db, automation, apiLogger)

	requestLog := logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	})

	// Public auth endpoints
	auth := app.Group("/auth", requestLog)
	auth.Post("/register", controller.Register)
	auth.Post("/login", controller.Login)
	auth.Get("/me", middleware.Protected(), controller.GetCurrentUser)

	// Broadcasts
	broadcasts := app.Group("/broadcasts", requestLog, middleware.Protected())
	broadcasts.Post("/", middleware.APIRateLimiter(), broadcastController.CreateBroadcast)
	broadcasts.Get("/", broadcastController.ListBroadcasts)
	broadcasts.Get("/:id", broadcastController.GetBroadcast)
	broadcasts.Get("/:id/stats", broadcastController.GetBroadcastStats)
	broadcasts.Post("/:id/schedule", middleware.APIRateLimiter(), broadcastController.ScheduleBroadcast)
	broadcasts.Post("/:id/cancel", middleware.APIRateLimiter(), broadcastController.CancelBroadcast)

	// Contacts and audiences
	contacts := app.Group("/contacts", requestLog, middleware.Protected())
	contacts.Post("/", middleware.APIRateLimiter(), contactController.CreateContact)
	contacts.Get("/", contactController.ListContacts)
	contacts.Post("/:id/unsubscribe", contactController.UnsubscribeContact)

	audiences := app.Group("/audiences", requestLog, middleware.Protected())
	audiences.Post("/", middleware.APIRateLimiter(), contactController.CreateAudience)
	audiences.Get("/", contactController.ListAudiences)

	// Automation sequences
	automations := app.Group("/automations", requestLog, middleware.Protected())
	automations.Post("/", middleware.APIRateLimiter(), automationController.CreateSequence)
	automations.Get("/", automationController.ListSequences)
	automations.Get("/:id", automationController.GetSequence)
	automations.Patch("/:id/active", automationController.SetSequenceActive)
	automations.Delete("/:id", automationController.DeleteSequence)

	// Inbound events from external contact-management modules
	events := app.Group("/events", requestLog, middleware.Protected())
	events.Post("/new-lead", contactController.HandleNewLeadEvent)

	// Live broadcast progress
	ws := app.Group("/ws", middleware.Protected())
	ws.Use(func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Get("/broadcasts", websocket.New(broadcastController.HandleBroadcastProgressWS))

	apiLogger.Println("Routes initialized successfully")
}
