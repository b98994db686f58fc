package appindex

import (
	"log/slog"
	"time"
)

const (
	defaultWorkers        = 4
	defaultLookupTimeout  = 5 * time.Second
	defaultCatalogTimeout = 10 * time.Second
	defaultPatternCache   = 256
)

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithWorkers sets how many per-app lookups run at once.
func WithWorkers(n int) Option {
	return func(s *Service) error {
		if n < 1 {
			n = 1
		}
		s.workers = n
		return nil
	}
}

// WithLookupTimeout bounds each per-app info lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(s *Service) error {
		if d > 0 {
			s.lookupTimeout = d
		}
		return nil
	}
}

// WithCatalogTimeout bounds the remote batch request.
func WithCatalogTimeout(d time.Duration) Option {
	return func(s *Service) error {
		if d > 0 {
			s.catalogTimeout = d
		}
		return nil
	}
}

// WithPatternCache sets how many compiled name patterns are kept.
func WithPatternCache(size int) Option {
	return func(s *Service) error {
		if size > 0 {
			s.patternCacheSize = size
		}
		return nil
	}
}

// WithExperienceKeys sets the experience id to query key table.
func WithExperienceKeys(keys ExperienceKeys) Option {
	return func(s *Service) error {
		s.experiences = keys
		return nil
	}
}

// WithRebuildHook is called once at the end of every Rebuild.
func WithRebuildHook(fn func(RebuildResult)) Option {
	return func(s *Service) error {
		s.onRebuild = fn
		return nil
	}
}

// WithQueryIndexHook is called after each successful catalog batch replaced the query index.
func WithQueryIndexHook(fn func(QueryIndex)) Option {
	return func(s *Service) error {
		s.onQueryIndex = fn
		return nil
	}
}
