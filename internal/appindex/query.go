package appindex

import (
	"context"
	"fmt"
	"slices"
)

// RequestBatch asks the catalog for tags and experiences of every installed
// app and replaces the query index with the answer.
func (s *Service) RequestBatch(ctx context.Context) error {
	handles, err := s.platform.ListInstalledApps(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate installed apps: %w", err)
	}
	return s.requestBatch(ctx, handles)
}

func (s *Service) requestBatch(ctx context.Context, handles []AppHandle) error {
	if s.catalog == nil {
		return nil
	}

	guids, links := resolveAll(handles)
	resp, err := callWithTimeout(ctx, s.catalogTimeout, &s.stats.abandoned, func(ctx context.Context) (map[string]CatalogEntry, error) {
		return s.catalog.AppsInfo(ctx, guids)
	})
	if err != nil {
		s.stats.catalogFailures.Add(1)
		return fmt.Errorf("catalog request for %d apps: %w", len(guids), err)
	}

	s.ingest(ctx, resp, links)
	return nil
}

// Ingest builds a fresh query index from a catalog response whose guids need
// no translation beyond their own cleaned form.
func (s *Service) Ingest(ctx context.Context, resp map[string]CatalogEntry) {
	s.ingest(ctx, resp, nil)
}

// ingest correlates each catalog entry with the primary index, records its
// slug and indexes its tags and experiences. Entries for apps that are no
// longer installed are skipped. The identity map is not used afterwards.
func (s *Service) ingest(ctx context.Context, resp map[string]CatalogEntry, links identityMap) {
	idx := s.primary.Load()
	terms := make(QueryIndex)
	slugs := make(map[string]string)

	keys := make([]string, 0, len(resp))
	for k := range resp {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		entry := resp[k]
		guid := entry.GUID
		if guid == "" {
			guid = k
		}
		id, ok := links.correlate(guid, idx)
		if !ok {
			s.stats.staleEntries.Add(1)
			s.logger.Debug("skipping catalog entry for unknown app", "guid", guid)
			continue
		}

		slugs[id] = entry.NativeID
		for _, term := range normalizedTerms(entry.Tags, entry.Experiences) {
			terms.add(term, id)
		}
	}

	if idx != nil && len(slugs) > 0 && !s.primary.CompareAndSwap(idx, idx.withSlugs(slugs)) {
		s.logger.Debug("primary index replaced during catalog batch, slugs dropped")
	}
	s.queries.Store(&terms)
	s.persistQueryIndex(ctx, terms)
	s.logger.Info("query index updated", "terms", len(terms), "entries", len(resp))

	if s.onQueryIndex != nil {
		s.onQueryIndex(terms)
	}
}

// normalizedTerms normalizes tags and experiences, dropping empties and repeats
func normalizedTerms(tags, experiences []string) []string {
	seen := make(map[string]struct{}, len(tags)+len(experiences))
	out := make([]string, 0, len(tags)+len(experiences))
	for _, t := range slices.Concat(tags, experiences) {
		if t == "" {
			continue
		}
		t = NormalizeQuery(t)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
