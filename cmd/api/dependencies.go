package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/datagaffer/billing-api/internal/domain/billing"
	billinghandler "github.com/datagaffer/billing-api/internal/domain/billing/handler"
	profilerepo "github.com/datagaffer/billing-api/internal/domain/profiles"
	"github.com/datagaffer/billing-api/internal/types"
	"github.com/datagaffer/billing-api/pkg/config"
	"github.com/datagaffer/billing-api/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	ProfileRepo profilerepo.Repository

	// Services
	Provider   billing.PaymentProvider
	Catalog    *billing.PlanCatalog
	Reconciler *billing.Reconciler
	Issuer     *billing.SessionIssuer

	// Handlers
	BillingHandler *billinghandler.BillingHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	deps.ProfileRepo = profilerepo.NewPostgresProfileRepo(deps.DB.Pool, logger)

	deps.Provider = billing.NewStripeProvider(cfg.Stripe.SecretKey, logger)
	deps.Catalog = billing.NewPlanCatalog(map[types.PlanCode]string{
		types.PlanMonthly: cfg.Stripe.PriceMonthly,
		types.PlanYearly:  cfg.Stripe.PriceYearly,
	})
	deps.Reconciler = billing.NewReconciler(deps.ProfileRepo, deps.Provider, deps.Catalog, cfg.Stripe.WebhookSecret, logger)
	deps.Issuer = billing.NewSessionIssuer(deps.ProfileRepo, deps.Provider, deps.Catalog, cfg.Stripe.SiteURL, cfg.Stripe.TrialDays, logger)

	deps.BillingHandler = billinghandler.NewBillingHandler(deps.Reconciler, deps.Issuer, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// Close releases long-lived resources.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
