package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/bed"
	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/dashboard"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/pharmacy"
	"github.com/hms/hms/internal/domain/prescription"
	"github.com/hms/hms/internal/domain/revisit"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/audit"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/cache"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/notification"
	"github.com/hms/hms/internal/platform/qrcode"
	"github.com/hms/hms/internal/platform/reporting"
	"github.com/hms/hms/internal/platform/websocket"
	"github.com/hms/hms/migrations"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "hms-server",
		Short:        "Hospital management API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(alertsCmd())
	rootCmd.AddCommand(auditCmd())
	return rootCmd
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run tenant schema migrations",
	}

	migrator := func(pool *pgxpool.Pool, dir string) *db.Migrator {
		if dir != "" {
			return db.NewDirMigrator(pool, dir)
		}
		return db.NewMigrator(pool, migrations.FS)
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			schema := db.SchemaName(tenantOrDefault(tenant, cfg))
			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			count, err := migrator(pool, dir).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("tenant", "", "Tenant whose schema is migrated (defaults to DEFAULT_TENANT)")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			schema := db.SchemaName(tenantOrDefault(tenant, cfg))
			statuses, err := migrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("tenant", "", "Tenant whose schema is inspected (defaults to DEFAULT_TENANT)")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantOrDefault(tenant string, cfg *config.Config) string {
	if tenant != "" {
		return tenant
	}
	return cfg.DefaultTenant
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage hospital tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create and migrate a tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if !db.ValidTenantID(name) {
				return fmt.Errorf("invalid tenant name %q", name)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, db.NewMigrator(pool, migrations.FS)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Tenant created.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	cmd.AddCommand(createCmd)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk import data",
	}

	stockCmd := &cobra.Command{
		Use:   "stock",
		Short: "Import medicine batches from a CSV or Excel sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			tenant, _ := cmd.Flags().GetString("tenant")
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			rows, err := pharmacy.ParseUpload(f, file, "", false)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			ctx, release, err := db.AcquireTenant(ctx, pool, tenantOrDefault(tenant, cfg))
			if err != nil {
				return err
			}
			defer release()

			svc := newServices(pool, cfg, cache.Noop{}, logger)
			summary, err := svc.pharmacy.NewImporter().Run(ctx, rows)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d rows (%d skipped, %d errors)\n",
				summary.Success, summary.Total, summary.Skipped, summary.Errors)
			for _, r := range summary.Results {
				if r.Status != "success" {
					fmt.Fprintf(cmd.OutOrStdout(), "  row %d: %s %s\n", r.Row, r.Status, r.Message)
				}
			}
			return nil
		},
	}
	stockCmd.Flags().String("file", "", "Path to a .csv or .xlsx stock sheet")
	stockCmd.Flags().String("tenant", "", "Tenant to import into (defaults to DEFAULT_TENANT)")
	cmd.AddCommand(stockCmd)
	return cmd
}

func alertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Send operational alerts",
	}

	stockCmd := &cobra.Command{
		Use:   "stock",
		Short: "Email the low-stock and expiring-batch report",
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetStringSlice("to")
			tenant, _ := cmd.Flags().GetString("tenant")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			if len(to) == 0 && !dryRun {
				return fmt.Errorf("--to is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.MailEnabled() && !dryRun {
				return fmt.Errorf("SMTP_HOST and SMTP_FROM must be set to send alerts")
			}
			logger := newLogger(cfg.Env)

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			ctx, release, err := db.AcquireTenant(ctx, pool, tenantOrDefault(tenant, cfg))
			if err != nil {
				return err
			}
			defer release()

			svc := newServices(pool, cfg, cache.Noop{}, logger)
			low, err := svc.pharmacy.LowStock(ctx)
			if err != nil {
				return err
			}
			expiring, err := svc.pharmacy.ExpiringBatches(ctx, cfg.ExpiryWarningDays)
			if err != nil {
				return err
			}
			alert := buildStockAlert(cfg.HospitalName, cfg.ExpiryWarningDays, time.Now(), low, expiring)
			if alert.Empty() {
				fmt.Fprintln(cmd.OutOrStdout(), "Stock is healthy, nothing to send.")
				return nil
			}
			if dryRun {
				body, err := notification.RenderStockAlert(alert)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), body)
				return nil
			}

			mailer := notification.NewMailer(notification.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUser,
				Password: cfg.SMTPPassword,
				From:     cfg.SMTPFrom,
			})
			if err := mailer.SendStockAlert(ctx, to, alert); err != nil {
				return err
			}
			logger.Info().Strs("to", to).Int("low", len(alert.LowStock)).Int("expiring", len(alert.Expiring)).
				Msg("stock alert sent")
			return nil
		},
	}
	stockCmd.Flags().StringSlice("to", nil, "Recipient addresses (comma-separated)")
	stockCmd.Flags().String("tenant", "", "Tenant to report on (defaults to DEFAULT_TENANT)")
	stockCmd.Flags().Bool("dry-run", false, "Print the report instead of sending it")
	cmd.AddCommand(stockCmd)
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit trail maintenance",
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete audit entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			days, _ := cmd.Flags().GetInt("older-than-days")
			if days < 1 {
				return fmt.Errorf("--older-than-days must be at least 1")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			tenant = tenantOrDefault(tenant, cfg)
			ctx, release, err := db.AcquireTenant(ctx, pool, tenant)
			if err != nil {
				return err
			}
			defer release()

			cutoff := time.Now().UTC().AddDate(0, 0, -days)
			n, err := audit.NewStore(pool).Purge(ctx, cutoff)
			if err != nil {
				return err
			}
			logger.Info().Str("tenant", tenant).Int64("deleted", n).Time("cutoff", cutoff).Msg("audit log purged")
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit entries recorded before %s\n", n, cutoff.Format(time.RFC3339))
			return nil
		},
	}
	purgeCmd.Flags().String("tenant", "", "Tenant to purge (defaults to DEFAULT_TENANT)")
	purgeCmd.Flags().Int("older-than-days", 365, "Retention period in days")
	cmd.AddCommand(purgeCmd)
	return cmd
}

func buildStockAlert(hospital string, days int, now time.Time, low []pharmacy.StockSummary, expiring []*pharmacy.StockBatch) notification.StockAlert {
	alert := notification.StockAlert{Hospital: hospital, GeneratedAt: now, WithinDays: days}
	for _, s := range low {
		alert.LowStock = append(alert.LowStock, notification.LowStockItem{
			Name:         s.Name,
			Quantity:     s.TotalQuantity,
			ReorderLevel: s.ReorderLevel,
		})
	}
	for _, b := range expiring {
		alert.Expiring = append(alert.Expiring, notification.ExpiringItem{
			Name:        b.MedicationName,
			BatchNumber: b.BatchNumber,
			ExpiryDate:  b.ExpiryDate,
			Quantity:    b.Quantity,
		})
	}
	return alert
}

// services holds one instance of every domain service.
type services struct {
	patients      *patient.Service
	beds          *bed.Service
	pharmacy      *pharmacy.Service
	billing       *billing.Service
	prescriptions *prescription.Service
	staff         *staff.Service
	schedules     *scheduling.Service
	revisits      *revisit.Service
	dashboard     *dashboard.Service
	live          *websocket.Hub
}

func newServices(pool *pgxpool.Pool, cfg *config.Config, c cache.Cache, logger zerolog.Logger) *services {
	tx := db.PgTxRunner{}
	s := &services{live: websocket.NewHub(logger.With().Str("component", "live").Logger())}

	s.patients = patient.NewService(patient.NewRepo(pool), cfg.UHIDPrefix)
	s.beds = bed.NewService(bed.NewBedRepo(pool), bed.NewAllocationRepo(pool), tx, logger.With().Str("component", "bed").Logger())
	s.beds.SetPublisher(s.live)

	s.pharmacy = pharmacy.NewService(pharmacy.NewMedicationRepo(pool), pharmacy.NewBatchRepo(pool),
		pharmacy.NewPurchaseRepo(pool), tx, logger.With().Str("component", "pharmacy").Logger(), cfg.ExpiryWarningDays)
	s.pharmacy.SetDefaultReorderLevel(cfg.LowStockThreshold)

	s.billing = billing.NewService(billing.NewRepo(pool), s.pharmacy, qrcode.New(cfg.QRServiceURL, cfg.QRImageSize), tx,
		billing.Issuer{Hospital: cfg.HospitalName, GSTIN: cfg.PharmacyGSTIN, UPIID: cfg.PharmacyUPIID},
		logger.With().Str("component", "billing").Logger())
	s.billing.SetPublisher(s.live)
	s.prescriptions = prescription.NewService(prescription.NewRepo(pool), s.pharmacy, s.billing, tx,
		logger.With().Str("component", "prescription").Logger())

	s.staff = staff.NewService(staff.NewRepo(pool))
	s.schedules = scheduling.NewService(scheduling.NewRepo(pool), s.staff, tx)
	s.revisits = revisit.NewService(revisit.NewRepo(pool), logger.With().Str("component", "revisit").Logger())
	s.revisits.SetPublisher(s.live)

	s.dashboard = dashboard.NewService(dashboard.Sources{
		Patients:      s.patients,
		Beds:          s.beds,
		Stock:         s.pharmacy,
		Prescriptions: s.prescriptions,
		Revisits:      s.revisits,
		Billing:       s.billing,
	}, c, cfg.DashboardCacheTTL, logger.With().Str("component", "dashboard").Logger())
	return s
}

func openCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Cache, func()) {
	if cfg.RedisURL == "" {
		return cache.Noop{}, func() {}
	}
	rc, err := cache.NewRedis(ctx, cfg.RedisURL, "hms")
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, dashboard caching disabled")
		return cache.Noop{}, func() {}
	}
	logger.Info().Msg("connected to redis")
	return rc, func() { rc.Close() }
}

// newServer builds the Echo instance with global middleware and every route.
func newServer(cfg *config.Config, pool *pgxpool.Pool, svc *services, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))
	e.Use(middleware.BodyLimit(1<<20, cfg.UploadMaxBytes))

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}
	e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))
	e.Use(middleware.Audit(logger, audit.NewStore(pool)))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	rateCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateCfg.BurstSize = cfg.RateLimitBurst
	}
	api := e.Group("/api/v1", middleware.RateLimit(rateCfg), middleware.RequestTimeout(30*time.Second))

	issuer := auth.NewIssuer(cfg.AuthIssuer, []byte(cfg.AuthSigningKey), cfg.AuthTokenTTL)

	patient.NewHandler(svc.patients).RegisterRoutes(api)
	bed.NewHandler(svc.beds).RegisterRoutes(api)
	pharmacy.NewHandler(svc.pharmacy).RegisterRoutes(api)
	billing.NewHandler(svc.billing).RegisterRoutes(api)
	prescription.NewHandler(svc.prescriptions).RegisterRoutes(api)
	staff.NewHandler(svc.staff, issuer).RegisterRoutes(api)
	scheduling.NewHandler(svc.schedules).RegisterRoutes(api)
	revisit.NewHandler(svc.revisits).RegisterRoutes(api)
	dashboard.NewHandler(svc.dashboard).RegisterRoutes(api)
	reporting.NewHandler(pool).RegisterRoutes(api)
	audit.NewHandler(audit.NewStore(pool)).RegisterRoutes(api)
	websocket.NewHandler(svc.live, cfg.CORSOrigins).RegisterRoutes(api)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	c, closeCache := openCache(ctx, cfg, logger)
	defer closeCache()

	e := newServer(cfg, pool, newServices(pool, cfg, c, logger), logger)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info().Str("signal", strings.ToUpper(sig.String())).Msg("shutting down server")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
