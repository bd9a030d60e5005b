package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/factory-console/internal"
	"github.com/frahmantamala/factory-console/internal/access"
	"github.com/frahmantamala/factory-console/internal/core/events"
	"github.com/frahmantamala/factory-console/internal/gatelog"
	"github.com/frahmantamala/factory-console/internal/identity"
	"github.com/frahmantamala/factory-console/internal/storage"
	"github.com/frahmantamala/factory-console/internal/transport/rest"
	"github.com/frahmantamala/factory-console/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config          *internal.Config
	SQLDB           *sqlx.DB
	Router          *chi.Mux
	Logger          *slog.Logger
	IdentityHandler *identity.Handler
	AccessHandler   *access.Handler
	GateHandler     *gatelog.Handler
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.SQLDB.DB, deps.IdentityHandler, deps.AccessHandler, deps.GateHandler, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.SQLDB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.InitWithOptions(config.Observability.Logging.Format, config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	if err := validateOpenAPISpec(); err != nil {
		return nil, fmt.Errorf("openapi spec invalid: %w", err)
	}

	gormDB, sqlDB, err := initDB(config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	store := storage.NewSQLStore(gormDB, lg)
	if !config.Storage.IsPostgres() {
		// SQLite deployments self-migrate; postgres runs goose instead.
		if err := store.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate storage schema: %w", err)
		}
	}

	bus := events.NewEventBus(lg)
	registerEventLog(bus, lg)

	tokens := identity.NewSessionTokenGenerator(config.Security.SessionSecret, config.Security.SessionTokenTTL)
	identityService := identity.NewService(store, tokens, bus, lg, config.Security.ApprovalTimeout)
	identityHandler := identity.NewHandler(identityService, tokens)

	accessHandler := access.NewHandler(identityService)

	gateService := gatelog.NewService(
		store,
		&directoryAdapter{users: identityService},
		bus,
		lg,
		config.GateLog.OverstayThreshold,
		config.GateLog.DefaultCountryCode,
	)
	gateHandler := gatelog.NewHandler(gateService)

	return &Dependencies{
		Config:          config,
		Logger:          lg,
		SQLDB:           sqlDB,
		Router:          chi.NewRouter(),
		IdentityHandler: identityHandler,
		AccessHandler:   accessHandler,
		GateHandler:     gateHandler,
	}, nil
}

// initDB opens the backing database. Postgres DSNs go through the pgx stdlib
// driver so the health check and goose share the same connection handling;
// everything else is treated as a SQLite file.
func initDB(cfg internal.StorageConfig) (*gorm.DB, *sqlx.DB, error) {
	gormConfig := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}

	if cfg.IsPostgres() {
		dbConn, err := sqlx.Connect("pgx", cfg.GetDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
		}
		dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
		dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
		if cfg.ConnMaxLifetime > 0 {
			dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}

		gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: dbConn.DB}), gormConfig)
		if err != nil {
			_ = dbConn.Close()
			return nil, nil, fmt.Errorf("failed to open gorm over pgx: %w", err)
		}
		return gormDB, dbConn, nil
	}

	gormDB, err := gorm.Open(sqlite.Open(cfg.GetDSN()), gormConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to unwrap sql db: %w", err)
	}
	return gormDB, sqlx.NewDb(sqlDB, "sqlite"), nil
}

// validateOpenAPISpec fails startup when the published contract does not
// parse, so drift is caught before the first request.
func validateOpenAPISpec() error {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile("./api/openapi.yml")
	if err != nil {
		return err
	}
	return doc.Validate(loader.Context)
}

// registerEventLog wires an audit subscriber for the domain events, giving
// operators a trace of gate movements and approval outcomes.
func registerEventLog(bus *events.EventBus, lg *slog.Logger) {
	audit := func(ctx context.Context, event events.Event) error {
		lg.Info("domain event",
			"event_type", event.EventType(),
			"event_id", event.EventID(),
			"payload", event.Payload())
		return nil
	}

	bus.Subscribe(events.EntryCreatedEvent, audit)
	bus.Subscribe(events.EntryExitedEvent, audit)
	bus.Subscribe(events.RequestResolvedEvent, audit)
	bus.Subscribe(events.AccessLockedEvent, audit)
}

// directoryAdapter exposes the identity service as the personnel lookup the
// gate log depends on.
type directoryAdapter struct {
	users *identity.Service
}

func (a *directoryAdapter) StaffByID(id string) (gatelog.StaffRecord, bool) {
	user, err := a.users.GetUser(id)
	if err != nil {
		return gatelog.StaffRecord{}, false
	}
	return toStaffRecord(user), true
}

func (a *directoryAdapter) FindStaffByName(fragment string) (gatelog.StaffRecord, bool) {
	user, ok := a.users.FindStaffByName(fragment)
	if !ok {
		return gatelog.StaffRecord{}, false
	}
	return toStaffRecord(user), true
}

func (a *directoryAdapter) UpdateVehicleNumber(userID, vehicleNumber string) error {
	return a.users.UpdateVehicleNumber(userID, vehicleNumber)
}

func toStaffRecord(u *identity.User) gatelog.StaffRecord {
	return gatelog.StaffRecord{
		ID:            u.ID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		PhoneNumber:   u.PhoneNumber,
		VehicleNumber: u.VehicleNumber,
	}
}
