package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/config"
	"github.com/cmlabs-hris/studio-payroll/internal/domain/notification"
	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/cmlabs-hris/studio-payroll/internal/fixtures"
	appHTTP "github.com/cmlabs-hris/studio-payroll/internal/handler/http"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/cron"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/database"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/jwt"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/sse"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/storage"
	"github.com/cmlabs-hris/studio-payroll/internal/repository/memory"
	"github.com/cmlabs-hris/studio-payroll/internal/repository/postgresql"
	"github.com/cmlabs-hris/studio-payroll/internal/service/file"
	notificationService "github.com/cmlabs-hris/studio-payroll/internal/service/notification"
	payrollService "github.com/cmlabs-hris/studio-payroll/internal/service/payroll"
	"github.com/go-chi/httplog/v3"
)

const (
	appName    = "studio-payroll"
	appVersion = "v1.0.0"
)

// backend bundles the driver-specific repositories and collaborators
type backend struct {
	transactor       payroll.Transactor
	cycles           payroll.CycleRepository
	slips            payroll.SlipRepository
	outbox           payroll.OutboxRepository
	rates            payroll.DeductionRateRepository
	directory        payroll.Directory
	attendance       payroll.AttendanceFeed
	duties           payroll.DutyFeed
	ledger           payroll.LedgerPoster
	notificationRepo notification.Repository
	close            func()
}

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logFormat := httplog.SchemaECS.Concise(cfg.App.Env != "production")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       cfg.SlogLevel(),
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", appName),
		slog.String("version", appVersion),
		slog.String("env", cfg.App.Env),
	)
	slog.SetDefault(logger)

	loc, err := cfg.Payroll.Policy.Location()
	if err != nil {
		return err
	}
	lateCutoff, err := cfg.Payroll.Policy.LateCutoffOffset()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, loc, logger)
	if err != nil {
		return err
	}
	defer be.close()

	fileStorage, err := storage.NewLocalStorage(cfg.Storage.BasePath, cfg.Storage.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize local storage: %w", err)
	}
	fileService := file.NewFileService(fileStorage)

	hub := sse.NewHub()
	defer hub.Close()
	notifSvc := notificationService.NewNotificationService(be.notificationRepo, hub, notificationService.Config{
		BatchSize:     cfg.Notification.BatchSize,
		FlushInterval: cfg.Notification.FlushInterval,
		WorkerCount:   cfg.Notification.Workers,
		QueueSize:     cfg.Notification.QueueSize,
	}, logger)
	defer notifSvc.Stop()

	dispatcher := payrollService.NewDispatcher(
		be.outbox,
		notificationService.NewPayrollNotifier(notifSvc),
		be.ledger,
		payrollService.DispatcherConfig{
			MaxAttempts: cfg.Payroll.OutboxMaxAttempts,
			BatchSize:   cfg.Payroll.OutboxBatchSize,
		},
		logger,
	)

	policy := cfg.Payroll.Policy
	payrollSvc := payrollService.NewPayrollService(payrollService.Dependencies{
		Transactor:     be.transactor,
		Cycles:         be.cycles,
		Slips:          be.slips,
		Outbox:         be.outbox,
		Rates:          be.rates,
		Directory:      be.directory,
		AttendanceFeed: be.attendance,
		DutyFeed:       be.duties,
		ProofStore:     fileService,
		Dispatcher:     dispatcher,
		Authorizer:     payrollService.NewAuthorizer(policy.PrivilegedRoles, policy.PrivilegedPositions),
		Calculator: payrollService.NewCalculator(payrollService.CalculatorConfig{
			Location:           loc,
			LateCutoff:         lateCutoff,
			SocialSecurityRate: policy.SocialSecurity.Rate,
			SocialSecurityCap:  policy.SocialSecurity.Cap,
			WithholdingTaxRate: policy.WithholdingTaxRate,
		}),
	}, payrollService.Options{
		FeedTimeout: cfg.Payroll.FeedTimeout,
		DefaultRates: payroll.DeductionRates{
			LateRatePerOccurrence:       policy.DefaultRates.LateRatePerOccurrence,
			AbsentRatePerDay:            policy.DefaultRates.AbsentRatePerDay,
			MissedDutyRatePerOccurrence: policy.DefaultRates.MissedDutyRatePerOccurrence,
		},
		Location: loc,
		Logger:   logger,
	})

	scheduler := cron.NewScheduler(logger)
	cron.NewPayrollJobs(dispatcher, cfg.Payroll.OutboxRetryInterval).RegisterJobs(scheduler)
	scheduler.Start()
	defer scheduler.Stop()

	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	router := appHTTP.NewRouter(
		appHTTP.RouterConfig{
			Logger:      logger,
			LogLevel:    cfg.SlogLevel(),
			CORSOrigins: cfg.App.CORSOrigins,
			UploadsDir:  cfg.Storage.BasePath,
		},
		JWTService,
		appHTTP.NewPayrollHandler(payrollSvc),
		appHTTP.NewNotificationHandler(notifSvc, JWTService),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr, "storage_driver", cfg.App.StorageDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openBackend(ctx context.Context, cfg *config.Config, loc *time.Location, logger *slog.Logger) (*backend, error) {
	switch cfg.App.StorageDriver {
	case config.StorageDriverMemory:
		logger.Warn("using in-memory storage with the demo roster; data is lost on restart")
		store := memory.NewStore()
		year := time.Now().In(loc).Year()
		return &backend{
			transactor:       store,
			cycles:           memory.NewCycleRepository(store),
			slips:            memory.NewSlipRepository(store),
			outbox:           memory.NewOutboxRepository(store),
			rates:            memory.NewDeductionRateRepository(store),
			directory:        memory.NewDirectory(fixtures.GetDemoEmployees()...),
			attendance:       memory.NewAttendanceFeed(append(fixtures.GetDemoAttendance(year-1, loc), fixtures.GetDemoAttendance(year, loc)...)...),
			duties:           memory.NewDutyFeed(append(fixtures.GetDemoDuties(year-1, loc), fixtures.GetDemoDuties(year, loc)...)...),
			ledger:           memory.NewLedger(),
			notificationRepo: memory.NewNotificationRepository(),
			close:            func() {},
		}, nil

	default:
		db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL())
		if err != nil {
			return nil, fmt.Errorf("error connecting to database: %w", err)
		}
		if cfg.Database.RunMigrations {
			if err := database.Migrate(ctx, db, cfg.Database.MigrationsDir, logger); err != nil {
				db.Close()
				return nil, err
			}
		}
		return &backend{
			transactor:       postgresql.NewTransactor(db),
			cycles:           postgresql.NewCycleRepository(db),
			slips:            postgresql.NewSlipRepository(db),
			outbox:           postgresql.NewOutboxRepository(db),
			rates:            postgresql.NewDeductionRateRepository(db),
			directory:        postgresql.NewEmployeeDirectory(db),
			attendance:       postgresql.NewAttendanceFeed(db, loc),
			duties:           postgresql.NewDutyFeed(db, loc),
			ledger:           postgresql.NewLedgerPoster(db),
			notificationRepo: postgresql.NewNotificationRepository(db),
			close:            db.Close,
		}, nil
	}
}
