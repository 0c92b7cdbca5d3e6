// Package sync is the record synchronization bounded context. It owns
// batch intake, idempotent upsert, ad-hoc reconciliation, and the
// post-commit side-effect dispatch.
package sync

import (
	"fieldsync_backend/internal/config"
	"fieldsync_backend/internal/events"
	apphttp "fieldsync_backend/internal/http"
	"fieldsync_backend/internal/sync/handler"
	"fieldsync_backend/internal/sync/repository"
	"fieldsync_backend/internal/sync/service"
	"fieldsync_backend/platform/lease"
	"fieldsync_backend/platform/logger"
	"fieldsync_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the sync bounded context module implementing http.Module.
type Module struct {
	handler     *handler.Handler
	hasEnqueuer bool
	coordinator *service.Coordinator
	repo        *repository.Repository
}

// NewModule creates and initializes the sync module with all its
// dependencies. The stitcher and escalator are the post-commit hooks;
// either may be nil in processes that do not run side effects.
func NewModule(
	cfg *config.Config,
	pool *pgxpool.Pool,
	locker lease.Locker,
	stitcher service.PathStitcher,
	escalator service.CrisisEscalator,
	enqueuer handler.Enqueuer,
	bus events.Bus,
	val *validator.Validator,
	log *logger.Logger,
) (*Module, error) {
	registry, err := service.NewRegistry()
	if err != nil {
		return nil, err
	}
	normalizer, err := service.NewNormalizer()
	if err != nil {
		return nil, err
	}

	repo := repository.New(pool)
	engine := service.NewUpsertEngine(normalizer, log)
	reconciler := service.NewAdhocReconciler(locker, normalizer, bus, log, cfg.LeaseTTL, cfg.LeaseWait)
	effects := service.NewEffectDispatcher(stitcher, escalator, bus, log)
	coordinator := service.NewCoordinator(repo, registry, engine, reconciler, effects, log)

	return &Module{
		handler:     handler.New(coordinator, enqueuer, val, log),
		hasEnqueuer: enqueuer != nil,
		coordinator: coordinator,
		repo:        repo,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "sync"
}

// Coordinator returns the batch coordinator for the worker process.
func (m *Module) Coordinator() *service.Coordinator {
	return m.coordinator
}

// Repository returns the repository for direct access if needed.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts sync routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.POST("/sync/batches", m.handler.ProcessBatch)
	if m.hasEnqueuer {
		ctx.Protected.POST("/sync/batches/async", m.handler.EnqueueBatch)
	}
}
