package appindex

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"
)

// Service owns the primary and query indexes of installed apps.
// It rebuilds the primary index on platform changes, enriches it from the
// remote catalog and answers matching and lookup requests.
type Service struct {
	platform Platform
	catalog  Catalog // nil disables catalog enrichment
	kv       KV
	logger   *slog.Logger

	workers          int
	lookupTimeout    time.Duration
	catalogTimeout   time.Duration
	patternCacheSize int
	experiences      ExperienceKeys
	onRebuild        func(RebuildResult)
	onQueryIndex     func(QueryIndex)

	pool     *ants.Pool
	patterns *lru.Cache[string, *regexp.Regexp]

	primary atomic.Pointer[PrimaryIndex]
	queries atomic.Pointer[QueryIndex]

	mu         sync.Mutex
	generation uint64
	complete   bool
	pending    []pendingLookup
	closed     bool
	running    sync.WaitGroup

	stats counters
}

// New creates an installed apps index over the given collaborators.
// catalog may be nil, in which case the query index is only ever loaded from kv.
func New(platform Platform, catalog Catalog, kv KV, opts ...Option) (*Service, error) {
	if platform == nil {
		return nil, ErrPlatformRequired
	}
	if kv == nil {
		return nil, ErrStoreRequired
	}

	s := &Service{
		platform:         platform,
		catalog:          catalog,
		kv:               kv,
		logger:           slog.Default(),
		workers:          defaultWorkers,
		lookupTimeout:    defaultLookupTimeout,
		catalogTimeout:   defaultCatalogTimeout,
		patternCacheSize: defaultPatternCache,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup pool: %w", err)
	}
	s.pool = pool

	patterns, err := lru.New[string, *regexp.Regexp](s.patternCacheSize)
	if err != nil {
		pool.Release()
		return nil, fmt.Errorf("failed to create pattern cache: %w", err)
	}
	s.patterns = patterns

	return s, nil
}

// Init loads the persisted query index and builds the primary index concurrently.
// A failed rebuild does not cut the load short.
func (s *Service) Init(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		s.loadQueryIndex(ctx)
		return nil
	})
	g.Go(func() error {
		_, err := s.Rebuild(ctx)
		return err
	})
	return g.Wait()
}

// Run rebuilds the primary index for every platform event until ctx is done
// or events is closed. Rebuilds may overlap; the latest one wins.
func (s *Service) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.logger.Debug("platform change", "kind", ev.Kind, "path", ev.Path)
			if !s.track() {
				return ErrClosed
			}
			go func() {
				defer s.running.Done()
				if _, err := s.Rebuild(ctx); err != nil {
					s.logger.Warn("rebuild failed", "err", err)
				}
			}()
		}
	}
}

// track registers an event-driven rebuild with Close unless the service is closed
func (s *Service) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.running.Add(1)
	return true
}

// Apps returns the records of the published primary index in enumeration order
func (s *Service) Apps() []AppRecord {
	return s.primary.Load().All()
}

// Slugs returns the non-empty catalog slugs of installed apps
func (s *Service) Slugs() []string {
	var slugs []string
	for _, r := range s.Apps() {
		if r.Slug != "" {
			slugs = append(slugs, r.Slug)
		}
	}
	return slugs
}

// QueryIndex returns the current query index; callers must not modify it
func (s *Service) QueryIndex() QueryIndex {
	if q := s.queries.Load(); q != nil {
		return *q
	}
	return nil
}

// Close stops accepting work, answers queued lookups as absent and
// waits for event-driven rebuilds to finish.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, p := range pending {
		p.cb(AppRecord{}, false)
	}

	s.running.Wait()
	s.pool.Release()
	return nil
}

// callWithTimeout runs fn bounded by d. A collaborator that ignores its
// context cannot stall the caller past the deadline; its goroutine is left
// running and counted in abandoned until fn returns.
func callWithTimeout[T any](ctx context.Context, d time.Duration, abandoned *atomic.Int64, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	var settled atomic.Bool
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
		if !settled.CompareAndSwap(false, true) {
			abandoned.Add(-1)
		}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		if settled.CompareAndSwap(false, true) {
			abandoned.Add(1)
			var zero T
			return zero, ctx.Err()
		}
		r := <-done
		return r.v, r.err
	}
}
