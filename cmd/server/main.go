package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	recalc "github.com/recalc/backend"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func main() {
	cfg, err := recalc.ConfigFromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := recalc.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	repo := recalc.NewRepositoryManager(db)
	repo.MustValidate()

	tokens := recalc.NewTokenService([]byte(cfg.SigningKey), cfg.TokenLifetime, nil)
	auther := recalc.NewAuthenticator(repo, tokens, nil)
	claims := recalc.NewClaimService(repo, nil)

	mailer, err := recalc.NewSMTPMailer(cfg, nil)
	if err != nil {
		log.Fatalf("mailer: %v", err)
	}

	worker := recalc.NewNotificationWorker(repo, mailer, cfg.WorkerInterval, nil)
	go worker.Run(ctx)

	controller := recalc.NewController(cfg, repo, auther, claims, tokens)

	app := fiber.New(fiber.Config{
		AppName:      "re-calc",
		ErrorHandler: controller.ErrorHandler,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendOrigin,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
	}))

	controller.RegisterRoutes(app)

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
