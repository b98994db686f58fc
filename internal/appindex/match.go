package appindex

import "regexp"

// MatchingApps returns the installed apps matching q, each at most once.
// An app matches when a word of its name starts with the query, or when the
// query is exactly one of its catalog tags or experiences. Ids in the query
// index that are no longer installed are ignored.
func (s *Service) MatchingApps(q Query) []AppRecord {
	query := s.experiences.effectiveQuery(q)
	if query == "" {
		return []AppRecord{}
	}
	norm := NormalizeQuery(query)

	idx := s.primary.Load()
	if idx == nil {
		return []AppRecord{}
	}

	var matched []AppRecord
	if pattern, err := s.namePattern(norm); err != nil {
		s.logger.Warn("invalid name pattern", "query", norm, "err", err)
	} else {
		for _, r := range idx.All() {
			if r.Name != "" && pattern.MatchString(r.Name) {
				matched = append(matched, r)
			}
		}
	}

	if terms := s.queries.Load(); terms != nil {
		for _, id := range terms.Lookup(norm) {
			if r, ok := idx.Get(id); ok {
				matched = append(matched, r)
			}
		}
	}

	return uniqueByID(matched)
}

// namePattern compiles the word-prefix pattern for a normalized query
func (s *Service) namePattern(norm string) (*regexp.Regexp, error) {
	if re, ok := s.patterns.Get(norm); ok {
		return re, nil
	}
	re, err := regexp.Compile(`(?i)\b` + norm)
	if err != nil {
		return nil, err
	}
	s.patterns.Add(norm, re)
	return re, nil
}

// uniqueByID keeps the first record of every id
func uniqueByID(records []AppRecord) []AppRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]AppRecord, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
