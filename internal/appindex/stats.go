package appindex

import "sync/atomic"

type counters struct {
	rebuilds        atomic.Uint64
	lookupFailures  atomic.Uint64
	staleEntries    atomic.Uint64
	catalogFailures atomic.Uint64
	persistFailures atomic.Uint64
	abandoned       atomic.Int64
}

// Stats is a snapshot of index state and of the silently degraded paths
type Stats struct {
	Apps            int
	Terms           int
	Complete        bool
	Generation      uint64
	Rebuilds        uint64
	LookupFailures  uint64 // Per-app lookups that failed or timed out
	StaleEntries    uint64 // Catalog entries with no installed app
	CatalogFailures uint64
	PersistFailures uint64
	Abandoned       int64 // Timed-out collaborator calls that have not returned yet
}

// Stats returns the current counters
func (s *Service) Stats() Stats {
	s.mu.Lock()
	complete, gen := s.complete, s.generation
	s.mu.Unlock()

	return Stats{
		Apps:            s.primary.Load().Count(),
		Terms:           len(s.QueryIndex()),
		Complete:        complete,
		Generation:      gen,
		Rebuilds:        s.stats.rebuilds.Load(),
		LookupFailures:  s.stats.lookupFailures.Load(),
		StaleEntries:    s.stats.staleEntries.Load(),
		CatalogFailures: s.stats.catalogFailures.Load(),
		PersistFailures: s.stats.persistFailures.Load(),
		Abandoned:       s.stats.abandoned.Load(),
	}
}
