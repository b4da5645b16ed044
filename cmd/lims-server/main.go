package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lims/lims/internal/config"
	"github.com/lims/lims/internal/domain/audit"
	"github.com/lims/lims/internal/domain/catalog"
	"github.com/lims/lims/internal/domain/instrument"
	"github.com/lims/lims/internal/domain/order"
	"github.com/lims/lims/internal/domain/qc"
	"github.com/lims/lims/internal/domain/result"
	"github.com/lims/lims/internal/domain/sequence"
	"github.com/lims/lims/internal/domain/specimen"
	"github.com/lims/lims/internal/domain/workflow"
	"github.com/lims/lims/internal/domain/workitem"
	"github.com/lims/lims/internal/platform/cache"
	"github.com/lims/lims/internal/platform/db"
	"github.com/lims/lims/internal/platform/metrics"
	"github.com/lims/lims/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lims-server",
		Short: "Laboratory order fulfillment and QC engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the LIMS API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: tenant_%s\n", name)
			if err := db.CreateTenantSchema(ctx, pool, name, ""); err != nil {
				return err
			}
			fmt.Println("Tenant created. Apply migrations with: lims-server migrate up --schema tenant_" + name)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	var gateCache cache.Cache
	if cfg.RedisURL != "" {
		gateCache, err = cache.NewRedis(ctx, cfg.RedisURL, "lims")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		logger.Info().Msg("connected to redis")
	} else {
		gateCache = cache.NewMemory()
		logger.Warn().Msg("REDIS_URL unset, using in-process qc gate cache")
	}
	defer gateCache.Close()

	m := metrics.New()

	// Repositories
	auditRepo := audit.NewEventRepoPG(pool)
	counterRepo := sequence.NewCounterRepoPG(pool)
	testRepo := catalog.NewTestRepoPG(pool)
	deptRepo := catalog.NewDepartmentRepoPG(pool)
	orderRepo := order.NewOrderRepoPG(pool)
	specimenRepo := specimen.NewSpecimenRepoPG(pool)
	itemRepo := workitem.NewWorkItemRepoPG(pool)
	resultRepo := result.NewResultRepoPG(pool)
	instrumentRepo := instrument.NewInstrumentRepoPG(pool)
	commLogRepo := instrument.NewCommLogRepoPG(pool)
	lotRepo := qc.NewLotRepoPG(pool)
	runRepo := qc.NewRunRepoPG(pool)
	actionRepo := qc.NewActionRepoPG(pool)

	// Services
	recorder := audit.NewRecorder(auditRepo)
	seqSvc := sequence.NewService(counterRepo)
	catalogSvc := catalog.NewService(testRepo, deptRepo)
	orderSvc := order.NewService(orderRepo, recorder)
	specimenSvc := specimen.NewService(specimenRepo, recorder)
	resultSvc := result.NewService(resultRepo, recorder)
	qcSvc := qc.NewService(lotRepo, runRepo, actionRepo, catalogSvc, gateCache,
		recorder, m, logger)

	client := instrument.NewClient(cfg.InstrumentSendTimeout, cfg.InstrumentHealthTimeout)
	instrumentSvc := instrument.NewService(instrumentRepo, commLogRepo, client, recorder)
	itemSvc := workitem.NewService(itemRepo, instrumentSvc, specimenSvc, qcSvc, recorder)
	gateway := instrument.NewGateway(instrumentRepo, commLogRepo, client, itemSvc,
		resultSvc, orderSvc, specimenSvc, catalogSvc, m, logger)
	flowSvc := workflow.NewService(pool, seqSvc, orderSvc, specimenSvc, itemSvc,
		catalogSvc, gateway, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.Actor())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID", "X-Actor"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", m.Handler())

	apiV1 := e.Group("/api/v1")
	apiV1.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))

	// Handlers
	catalog.NewHandler(catalogSvc).RegisterRoutes(apiV1)
	order.NewHandler(orderSvc).RegisterRoutes(apiV1)
	specimen.NewHandler(specimenSvc).RegisterRoutes(apiV1)
	workitem.NewHandler(itemSvc).RegisterRoutes(apiV1)
	result.NewHandler(resultSvc).RegisterRoutes(apiV1)
	instrument.NewHandler(instrumentSvc).RegisterRoutes(apiV1)
	qc.NewHandler(qcSvc).RegisterRoutes(apiV1)
	audit.NewHandler(recorder).RegisterRoutes(apiV1)
	workflow.NewHandler(flowSvc).RegisterRoutes(apiV1)

	// Background sweeps
	sweepCtx, stopSweeps := context.WithCancel(ctx)
	defer stopSweeps()
	sweeper := workflow.NewSweeper(pool, cfg.TenantList(), flowSvc, itemSvc,
		instrumentSvc, gateway, cfg.PollBatch, cfg.MaxRetries, cfg.RetryInterval,
		m, logger)
	go sweeper.RunPolling(sweepCtx, cfg.PollInterval)
	go sweeper.RunRetries(sweepCtx, cfg.RetryInterval)
	logger.Info().
		Dur("poll_interval", cfg.PollInterval).
		Dur("retry_interval", cfg.RetryInterval).
		Strs("tenants", cfg.TenantList()).
		Msg("background sweeps started")

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopSweeps()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
