// Package engine is the device's synchronization and scheduling engine. A
// single owner goroutine serializes every read and write of the local cache
// and every scheduler call; remote I/O runs elsewhere and its results are
// posted back onto the owner goroutine before they touch any state.
package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vytor/lexisync/internal/cache"
	"github.com/vytor/lexisync/internal/errors"
	"github.com/vytor/lexisync/internal/identity"
	"github.com/vytor/lexisync/internal/jobs"
	"github.com/vytor/lexisync/internal/logger"
	"github.com/vytor/lexisync/internal/models"
	"github.com/vytor/lexisync/internal/reconcile"
	"github.com/vytor/lexisync/internal/session"
)

// ErrStopped is returned by operations submitted after Stop.
var ErrStopped = &errors.AppError{Code: errors.ErrCodeInternal, Message: "engine is stopped", Status: 503}

// Deps are the collaborators an Engine drives.
type Deps struct {
	Cache      *cache.Cache
	Identities *identity.Store
	Reconciler *reconcile.Reconciler
	Queue      jobs.SyncQueue
}

type Options struct {
	Now     func() time.Time
	Rand    *rand.Rand
	Session session.Config
}

type Engine struct {
	cache    *cache.Cache
	ids      *identity.Store
	rec      *reconcile.Reconciler
	queue    jobs.SyncQueue
	builder  *session.Builder
	validate *validator.Validate
	now      func() time.Time
	log      *logger.Logger

	ops       chan func()
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	bg        context.Context
	cancel    context.CancelFunc

	// Owned by the loop goroutine.
	identity  models.Identity
	pending   map[string]int
	deleting  map[string]bool
	subOwner  string
	subGen    int
	subCancel context.CancelFunc
	pushSeq   uint64
}

func New(deps Deps, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Session.Size == 0 {
		opts.Session = session.DefaultConfig()
	}
	return &Engine{
		cache:    deps.Cache,
		ids:      deps.Identities,
		rec:      deps.Reconciler,
		queue:    deps.Queue,
		builder:  session.NewBuilder(opts.Session, opts.Rand),
		validate: validator.New(),
		now:      opts.Now,
		log:      logger.Default().WithPrefix("engine"),
		ops:      make(chan func(), 64),
		done:     make(chan struct{}),
		pending:  make(map[string]int),
		deleting: make(map[string]bool),
	}
}

// Start loads the local cache and identity and starts the owner loop. A
// permanent identity also gets its change subscription and a background
// reconciliation pass.
func (e *Engine) Start(ctx context.Context) error {
	var startErr error
	e.startOnce.Do(func() {
		startErr = e.start(ctx)
	})
	return startErr
}

func (e *Engine) start(ctx context.Context) error {
	log := logger.FromContext(ctx).WithPrefix("engine")

	if err := e.cache.Load(ctx); err != nil {
		log.WithError(err).Error("failed to load local cache")
		return err
	}

	id, err := e.ids.Load(ctx)
	if err != nil {
		log.WithError(err).Warn("stored identity unusable, starting anonymous")
		id = models.Identity{}
	}
	if id.IsZero() {
		id = identity.NewAnonymous(e.now())
		if err := e.ids.Save(ctx, id); err != nil {
			log.WithError(err).Warn("continuing with unsaved anonymous identity")
		}
		log.Info("created anonymous identity %s", id.ID)
	}
	e.identity = id

	e.bg, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.wg.Add(1)
	go e.run()

	log.Info("engine started: identity=%s permanent=%t entries=%d", id.ID, id.Permanent, e.cache.Len())
	if id.Permanent {
		owner := id.ID
		e.post(func() { e.startSubscription(owner) })
		go func() {
			if _, err := e.runPass(e.bg, owner, "startup"); err != nil {
				e.log.WithError(err).Debug("startup pass not applied")
			}
		}()
	}
	return nil
}

// Stop ends the subscription and the owner loop. Operations submitted later
// fail with ErrStopped.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		close(e.done)
		e.wg.Wait()
		e.cache.Close()
		e.log.Info("engine stopped")
	})
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.ops:
			fn()
		case <-e.done:
			if e.subCancel != nil {
				e.subCancel()
			}
			return
		}
	}
}

// do runs fn on the owner goroutine and waits for it. When ctx ends after
// fn was queued, fn may still run.
func (e *Engine) do(ctx context.Context, fn func()) error {
	result := make(chan struct{})
	select {
	case e.ops <- func() { fn(); close(result) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
	select {
	case <-result:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// post schedules fn on the owner goroutine without waiting. It is dropped
// once the engine stopped.
func (e *Engine) post(fn func()) {
	select {
	case e.ops <- fn:
	case <-e.done:
	}
}
