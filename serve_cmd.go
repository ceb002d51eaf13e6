package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bounty-arbitration-service/config"
	"bounty-arbitration-service/handlers"
	"bounty-arbitration-service/middleware"
	"bounty-arbitration-service/services"
	"bounty-arbitration-service/utils"
	"bounty-arbitration-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

// newApp builds the fiber app with the global middleware chain and all routes.
func newApp(cfg *config.Config, svc *services.ArbitrationService) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "bounty-arbitration",
		BodyLimit:    64 * 1024,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods: "GET,POST,OPTIONS,HEAD",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Contributor-ID, X-User-Roles",
		MaxAge:       86400,
	}))

	handlers.SetupBountyRoutes(app, svc)
	handlers.SetupCompetitionRoutes(app, svc)
	return app
}

// auditArchiveLag covers the gap between stamping an event and appending it.
const auditArchiveLag = time.Minute

func serve(cfg *config.Config) error {
	if cfg.ServiceToken == "" && !cfg.AllowUnauthenticated {
		return fmt.Errorf("ARBITRATION_SERVICE_TOKEN environment variable not set (set ALLOW_UNAUTHENTICATED=true for local runs)")
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	svc := newService(cfg, st)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, err := workers.NewScheduler()
	if err != nil {
		return err
	}
	if err := sched.AddLeaseReclaimJob(ctx, svc, cfg.ReclaimInterval); err != nil {
		return err
	}
	if cfg.AuditArchiveEnabled {
		r2, err := utils.NewR2Client(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret, cfg.R2.Bucket)
		if err != nil {
			return fmt.Errorf("failed to initialize R2 client: %w", err)
		}
		archiver := workers.NewAuditArchiver(st, r2, nil, time.Now().UTC(), auditArchiveLag)
		if err := sched.AddAuditArchiveJob(ctx, archiver, cfg.AuditArchiveInterval); err != nil {
			return err
		}
		defer func() {
			// runs after the server has stopped accepting writes
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := archiver.Flush(flushCtx); err != nil {
				log.Printf("❌ [AUDIT] Final archive failed: %v", err)
			}
		}()
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Printf("⚠️  [SCHEDULER] Shutdown error: %v", err)
		}
	}()

	app := newApp(cfg, svc)

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	log.Printf("✅ Server running on http://localhost:%s (store: %s)", cfg.Port, cfg.StoreDriver)
	log.Printf("✅ CORS configured for origins: %s", strings.Join(cfg.AllowedOrigins, ","))

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("⚠️  Server shutdown error: %v", err)
	}
	return nil
}
