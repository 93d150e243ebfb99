package di

import (
	"fmt"
	"time"

	"github.com/prohmpiriya/studio-booking/internal/gateway"
	"github.com/prohmpiriya/studio-booking/internal/handler"
	"github.com/prohmpiriya/studio-booking/internal/repository"
	"github.com/prohmpiriya/studio-booking/internal/service"
	"github.com/prohmpiriya/studio-booking/pkg/clock"
	"github.com/prohmpiriya/studio-booking/pkg/database"
	"github.com/prohmpiriya/studio-booking/pkg/redis"
)

// Repositories groups the storage ports used by the services
type Repositories struct {
	Tx       repository.Transactor
	Classes  repository.ClassInstanceRepository
	Bookings repository.BookingRepository
	Ledger   repository.CreditLedgerRepository
	Coupons  repository.CouponRepository
	Outbox   repository.OutboxRepository
	Staff    repository.StaffRepository
}

// NewPostgresRepositories builds every repository on one connection pool
func NewPostgresRepositories(db *database.PostgresDB) *Repositories {
	pool := db.Pool()
	return &Repositories{
		Tx:       repository.NewPostgresTransactor(pool),
		Classes:  repository.NewPostgresClassInstanceRepository(pool),
		Bookings: repository.NewPostgresBookingRepository(pool),
		Ledger:   repository.NewPostgresCreditLedgerRepository(pool),
		Coupons:  repository.NewPostgresCouponRepository(pool),
		Outbox:   repository.NewPostgresOutboxRepository(pool),
		Staff:    repository.NewPostgresStaffRepository(pool),
	}
}

// NewMemoryRepositories backs every repository with one in-memory store
func NewMemoryRepositories(store *repository.MemoryStore) *Repositories {
	return &Repositories{
		Tx:       store,
		Classes:  store,
		Bookings: store.Bookings(),
		Ledger:   store,
		Coupons:  store,
		Outbox:   store,
		Staff:    store,
	}
}

// Container holds all dependencies for the booking engine
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	Repos   *Repositories
	Gateway gateway.DiscountGateway

	// Services
	Credits        service.CreditEngine
	Waitlist       service.WaitlistManager
	Admission      service.AdmissionGate
	Cancellation   service.CancellationCoordinator
	BookingService service.BookingService
	CouponService  service.CouponService

	// Handlers
	HealthHandler  *handler.HealthHandler
	BookingHandler *handler.BookingHandler
	ClassHandler   *handler.ClassHandler
	CouponHandler  *handler.CouponHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	ServiceName      string
	DB               *database.PostgresDB
	Redis            *redis.Client
	Repos            *Repositories
	GatewayType      string
	Gateway          *gateway.GatewayConfig
	Clock            clock.Clock
	OperationTimeout time.Duration
	StaffRole        string
}

// NewContainer creates a new dependency injection container.
// Repos defaults to Postgres repositories on DB.
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	repos := cfg.Repos
	if repos == nil {
		if cfg.DB == nil {
			return nil, fmt.Errorf("either repositories or a database is required")
		}
		repos = NewPostgresRepositories(cfg.DB)
	}

	gw, err := gateway.NewDiscountGateway(cfg.GatewayType, cfg.Gateway)
	if err != nil {
		return nil, fmt.Errorf("failed to create discount gateway: %w", err)
	}

	c := &Container{
		DB:      cfg.DB,
		Redis:   cfg.Redis,
		Repos:   repos,
		Gateway: gw,
	}

	// Initialize services
	c.Credits = service.NewCreditEngine(repos.Ledger, cfg.Clock)
	c.Waitlist = service.NewWaitlistManager(
		repos.Tx, repos.Classes, repos.Bookings, repos.Outbox,
		c.Credits, cfg.Clock, cfg.OperationTimeout,
	)
	c.Admission = service.NewAdmissionGate(
		repos.Tx, repos.Classes, repos.Bookings,
		c.Credits, c.Waitlist, cfg.Clock, cfg.OperationTimeout,
	)
	c.Cancellation = service.NewCancellationCoordinator(
		repos.Tx, repos.Classes, repos.Bookings, repos.Outbox, repos.Staff,
		c.Credits, c.Waitlist, cfg.Clock,
		&service.CancellationConfig{OperationTimeout: cfg.OperationTimeout, StaffRole: cfg.StaffRole},
	)
	c.BookingService = service.NewBookingService(service.BookingServiceDeps{
		Tx:           repos.Tx,
		Classes:      repos.Classes,
		Bookings:     repos.Bookings,
		Staff:        repos.Staff,
		Admission:    c.Admission,
		Cancellation: c.Cancellation,
		Waitlist:     c.Waitlist,
		Credits:      c.Credits,
		Clock:        cfg.Clock,
	}, &service.BookingServiceConfig{OperationTimeout: cfg.OperationTimeout, StaffRole: cfg.StaffRole})
	c.CouponService = service.NewCouponService(
		repos.Tx, repos.Coupons, repos.Ledger, repos.Staff, gw, cfg.Clock,
		&service.CouponServiceConfig{OperationTimeout: cfg.OperationTimeout, StaffRole: cfg.StaffRole},
	)

	// Initialize handlers
	checks := map[string]handler.HealthChecker{}
	if c.DB != nil {
		checks["postgres"] = c.DB
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis
	}
	c.HealthHandler = handler.NewHealthHandler(cfg.ServiceName, checks)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService)
	c.ClassHandler = handler.NewClassHandler(c.BookingService)
	c.CouponHandler = handler.NewCouponHandler(c.CouponService)

	return c, nil
}
