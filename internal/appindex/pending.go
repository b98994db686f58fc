package appindex

import "context"

type pendingLookup struct {
	id string
	cb func(AppRecord, bool)
}

// AppByID calls cb with the record for id. Once the primary index is complete
// cb runs synchronously; before that the lookup is queued and replayed, in
// arrival order, when the current rebuild publishes. A missing id is reported
// as (AppRecord{}, false). After Close, cb receives the absent signal.
func (s *Service) AppByID(id string, cb func(AppRecord, bool)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cb(AppRecord{}, false)
		return
	}
	if !s.complete {
		s.pending = append(s.pending, pendingLookup{id: id, cb: cb})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	r, ok := s.primary.Load().Get(id)
	cb(r, ok)
}

// WaitAppByID blocks until AppByID answers or ctx is done
func (s *Service) WaitAppByID(ctx context.Context, id string) (AppRecord, bool, error) {
	type answer struct {
		r  AppRecord
		ok bool
	}
	done := make(chan answer, 1)
	s.AppByID(id, func(r AppRecord, ok bool) {
		done <- answer{r, ok}
	})

	select {
	case a := <-done:
		return a.r, a.ok, nil
	case <-ctx.Done():
		return AppRecord{}, false, ctx.Err()
	}
}

// Complete reports whether the primary index has settled
func (s *Service) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}
