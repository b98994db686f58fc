package appindex

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// RebuildResult describes one finished Rebuild call
type RebuildResult struct {
	Generation uint64 // Rebuild sequence number
	Apps       int    // Records in the built index
	Failed     int    // Per-app lookups that failed or timed out
	Stale      bool   // A newer rebuild started first; this index was discarded
	Err        error  // Set when the rebuild could not run or enumeration failed
}

// Rebuild enumerates installed apps and builds a fresh primary index.
// Each rebuild fills its own index and publishes it only if no newer rebuild
// has started meanwhile. Publishing marks the index complete, replays queued
// lookups in arrival order and then requests the catalog batch.
// The rebuild hook sees every call, failed ones included.
func (s *Service) Rebuild(ctx context.Context) (RebuildResult, error) {
	gen, err := s.beginRebuild()
	if err != nil {
		s.notifyRebuild(RebuildResult{Err: err})
		return RebuildResult{Err: err}, err
	}
	s.stats.rebuilds.Add(1)

	handles, err := s.platform.ListInstalledApps(ctx)
	if err != nil {
		s.logger.Warn("failed to enumerate installed apps, keeping previous index", "generation", gen, "err", err)
		s.abortRebuild(gen)
		res := RebuildResult{Generation: gen, Err: fmt.Errorf("failed to enumerate installed apps: %w", err)}
		s.notifyRebuild(res)
		return res, res.Err
	}

	idx, failed := s.lookupAll(ctx, gen, handles)
	res := RebuildResult{Generation: gen, Apps: idx.Count(), Failed: failed}

	pending, published := s.publish(gen, idx)
	if !published {
		res.Stale = true
		s.logger.Debug("discarding stale rebuild", "generation", gen)
		s.notifyRebuild(res)
		return res, nil
	}
	s.logger.Info("app index complete", "generation", gen, "apps", res.Apps, "failed", failed)

	for _, p := range pending {
		r, ok := idx.Get(p.id)
		p.cb(r, ok)
	}
	s.notifyRebuild(res)

	if err := s.requestBatch(ctx, handles); err != nil {
		s.logger.Warn("catalog batch failed", "err", err)
	}
	return res, nil
}

func (s *Service) beginRebuild() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.generation++
	s.complete = false
	return s.generation, nil
}

// lookupAll resolves every handle on the worker pool and joins on all of them.
// An empty handle list yields an empty index immediately.
func (s *Service) lookupAll(ctx context.Context, gen uint64, handles []AppHandle) (*PrimaryIndex, int) {
	records := make([]AppRecord, len(handles))
	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)

	for i, h := range handles {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			r, err := callWithTimeout(ctx, s.lookupTimeout, &s.stats.abandoned, func(ctx context.Context) (AppRecord, error) {
				return s.platform.AppInfo(ctx, h)
			})
			if err != nil {
				failed.Add(1)
				s.stats.lookupFailures.Add(1)
				s.logger.Warn("app info lookup failed", "generation", gen, "path", h.Path, "err", err)
				return
			}
			if r.ID == "" {
				id, _, _ := Resolve(h)
				r.ID = string(id)
			}
			records[i] = r
		}
		if err := s.pool.Submit(task); err != nil {
			wg.Done()
			failed.Add(1)
			s.stats.lookupFailures.Add(1)
			s.logger.Warn("failed to schedule app info lookup", "path", h.Path, "err", err)
		}
	}
	wg.Wait()

	return NewPrimaryIndex(records), int(failed.Load())
}

// publish installs idx if gen is still the newest rebuild and hands back the
// lookups queued while it was building.
func (s *Service) publish(gen uint64, idx *PrimaryIndex) ([]pendingLookup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.closed {
		return nil, false
	}
	s.primary.Store(idx)
	s.complete = true
	pending := s.pending
	s.pending = nil
	return pending, true
}

// abortRebuild restores the previous index as complete so queued lookups
// are answered from it instead of waiting for another event.
func (s *Service) abortRebuild(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.closed {
		s.mu.Unlock()
		return
	}
	s.complete = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	idx := s.primary.Load()
	for _, p := range pending {
		r, ok := idx.Get(p.id)
		p.cb(r, ok)
	}
}

func (s *Service) notifyRebuild(res RebuildResult) {
	if s.onRebuild != nil {
		s.onRebuild(res)
	}
}
