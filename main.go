package main

import (
	"context"
	"log"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"reachly/config"
	"reachly/routes"
	"reachly/utils"
	"reachly/worker"
)

func main() {
	logger := log.New(os.Stdout, "REACHLY: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Transports and dispatcher
	mailer := utils.NewSMTPMailer(
		config.AppConfig.SMTPHost,
		config.AppConfig.SMTPPort,
		config.AppConfig.SMTPUsername,
		config.AppConfig.SMTPPassword,
		config.AppConfig.FromEmail,
		config.AppConfig.FromName,
	)
	sms := utils.NewGatewaySMS(
		config.AppConfig.SMSGatewayURL,
		config.AppConfig.SMSGatewayKey,
		config.AppConfig.SMSFrom,
		config.AppConfig.DispatchTimeout,
	)
	links := utils.NewReviewLinkBuilder(config.AppConfig.ReviewLinkBaseURL)
	dispatcher := utils.NewDispatcher(config.DB, mailer, sms, links,
		log.New(os.Stdout, "DISPATCH: ", log.LstdFlags), config.AppConfig.DispatchTimeout)

	// A Redis lease keeps a single scheduler instance scanning when
	// multiple nodes run; without Redis the lock always acquires.
	var schedulerLock *worker.SchedulerLock
	if config.AppConfig.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     config.AppConfig.Redis.Address,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		})
		schedulerLock = worker.NewSchedulerLock(client, "reachly:scheduler", 2*config.AppConfig.ScanInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize and start workers
	broadcastWorker := worker.NewBroadcastWorker(config.DB, dispatcher,
		log.New(os.Stdout, "BROADCAST: ", log.Ldate|log.Ltime|log.Lshortfile))
	broadcastWorker.Interval = config.AppConfig.ScanInterval
	broadcastWorker.Lock = schedulerLock
	go broadcastWorker.Start(ctx)

	automationWorker := worker.NewAutomationWorker(config.DB, dispatcher,
		log.New(os.Stdout, "AUTOMATION: ", log.Ldate|log.Ltime|log.Lshortfile))
	automationWorker.Interval = config.AppConfig.ScanInterval
	automationWorker.Lock = schedulerLock
	go automationWorker.Start(ctx)

	counterReset := worker.NewDailyCounterReset(config.DB, logger)
	if err := counterReset.Start(); err != nil {
		logger.Fatalf("Failed to start daily counter reset: %v", err)
	}
	defer counterReset.Stop()

	// Create Fiber app
	app := fiber.New()
	app.Use(cors.New())

	// Setup routes
	routes.SetupRoutes(app, config.DB, automationWorker)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
