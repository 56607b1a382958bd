package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/souqhub/souq-api/internal/config"
	"github.com/souqhub/souq-api/internal/handler"
	"github.com/souqhub/souq-api/internal/middleware"
	"github.com/souqhub/souq-api/internal/repository"
	"github.com/souqhub/souq-api/internal/service"
	"github.com/souqhub/souq-api/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	amqpCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ channel", "error", err)
		os.Exit(1)
	}
	defer amqpCh.Close()

	if err := worker.SetupRabbitMQ(amqpCh); err != nil {
		log.Error("setup RabbitMQ", "error", err)
		os.Exit(1)
	}
	log.Info("connected to RabbitMQ")

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	marketRepo := repository.NewMarketRepository(dbPool)
	catalogRepo := repository.NewCatalogRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool, marketRepo)
	reportRepo := repository.NewReportRepository(dbPool)

	// Services
	authSvc := service.NewAuthService(userRepo, marketRepo, cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	catalogSvc := service.NewCatalogService(catalogRepo, redisClient)
	marketSvc := service.NewMarketService(marketRepo)
	orderSvc := service.NewOrderService(orderRepo, userRepo, amqpCh)
	reportSvc := service.NewReportService(reportRepo, redisClient)

	// Handlers
	authH := handler.NewAuthHandler(authSvc, marketSvc, cfg.Auth.CookieName, cfg.Auth.CookieSecure, cfg.Auth.SessionTTL)
	userH := handler.NewUserHandler(authSvc)
	catalogH := handler.NewCatalogHandler(catalogSvc)
	marketH := handler.NewMarketHandler(marketSvc)
	orderH := handler.NewOrderHandler(orderSvc)
	reportH := handler.NewReportHandler(reportSvc)
	healthH := handler.NewHealthHandler(dbPool, redisClient, amqpConn)

	// Worker
	reportWorker := worker.NewReportWorker(amqpCh, reportSvc, redisClient, log)

	// Router
	authed := middleware.Authenticate(authSvc, cfg.Auth.CookieName, log)
	adminOnly := middleware.RequireAdmin(log)
	staffOnly := middleware.RequireStaff(log)

	router := gin.Default()
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/login", authH.Login)
		auth.DELETE("/login", authH.Logout)
		auth.GET("/me", authed, authH.Me)

		users := v1.Group("/users", authed, adminOnly)
		users.POST("", userH.Create)
		users.GET("", userH.List)
		users.DELETE("/:id", userH.Delete)

		categories := v1.Group("/categories", authed)
		categories.GET("", catalogH.ListCategories)
		categories.GET("/:id/items", catalogH.ActiveItems)
		categories.POST("", adminOnly, catalogH.CreateCategory)
		categories.PUT("/:id", adminOnly, catalogH.UpdateCategory)
		categories.DELETE("/:id", adminOnly, catalogH.DeleteCategory)

		items := v1.Group("/items", authed)
		items.GET("", catalogH.ListItems)
		items.POST("", adminOnly, catalogH.CreateItem)
		items.PUT("/:id", adminOnly, catalogH.UpdateItem)
		items.DELETE("/:id", adminOnly, catalogH.DeleteItem)

		markets := v1.Group("/markets", authed)
		markets.GET("", staffOnly, marketH.List)
		markets.POST("", staffOnly, marketH.Create)
		markets.GET("/:id", marketH.GetByID)
		markets.PUT("/:id", adminOnly, marketH.Update)
		markets.DELETE("/:id", adminOnly, marketH.Delete)
		markets.POST("/:id/balance", adminOnly, marketH.AdjustBalance)
		markets.GET("/:id/ledger", adminOnly, marketH.ListLedger)

		orders := v1.Group("/orders", authed)
		orders.POST("", orderH.Checkout)
		orders.GET("", orderH.List)
		orders.GET("/:id", orderH.GetByID)
		orders.PUT("/:id/status", adminOnly, orderH.UpdateStatus)

		reports := v1.Group("/reports", authed, adminOnly)
		reports.GET("/sales", reportH.Sales)
		reports.GET("/overview", reportH.Overview)
		reports.GET("/top-selling", reportH.TopSelling)
		reports.GET("/daily-items", reportH.DailyItems)
	}

	if err := reportWorker.Start(ctx); err != nil {
		log.Error("start report worker", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	reportWorker.Stop()
	time.Sleep(500 * time.Millisecond)
	cancel()
	log.Info("server stopped")
}
