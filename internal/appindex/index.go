package appindex

// PrimaryIndex maps identities to app records.
// A published index is never mutated; enrichment produces a clone.
type PrimaryIndex struct {
	entries map[string]AppRecord
	order   []string // Enumeration order of ids
}

// NewPrimaryIndex creates an index from records, keeping the first record per id
func NewPrimaryIndex(records []AppRecord) *PrimaryIndex {
	idx := &PrimaryIndex{
		entries: make(map[string]AppRecord, len(records)),
		order:   make([]string, 0, len(records)),
	}
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		if _, ok := idx.entries[r.ID]; ok {
			continue
		}
		idx.entries[r.ID] = r
		idx.order = append(idx.order, r.ID)
	}
	return idx
}

// Get retrieves a record by id
func (idx *PrimaryIndex) Get(id string) (AppRecord, bool) {
	if idx == nil {
		return AppRecord{}, false
	}
	r, ok := idx.entries[id]
	return r, ok
}

// Has reports whether id is indexed
func (idx *PrimaryIndex) Has(id string) bool {
	_, ok := idx.Get(id)
	return ok
}

// All returns records in enumeration order
func (idx *PrimaryIndex) All() []AppRecord {
	if idx == nil {
		return nil
	}
	result := make([]AppRecord, 0, len(idx.order))
	for _, id := range idx.order {
		result = append(result, idx.entries[id])
	}
	return result
}

// Count returns the number of records
func (idx *PrimaryIndex) Count() int {
	if idx == nil {
		return 0
	}
	return len(idx.order)
}

// withSlugs returns a copy with the given slugs applied
func (idx *PrimaryIndex) withSlugs(slugs map[string]string) *PrimaryIndex {
	clone := &PrimaryIndex{
		entries: make(map[string]AppRecord, len(idx.entries)),
		order:   idx.order,
	}
	for id, r := range idx.entries {
		if slug, ok := slugs[id]; ok {
			r.Slug = slug
		}
		clone.entries[id] = r
	}
	return clone
}

// QueryIndex maps a normalized term to the identities tagged with it
type QueryIndex map[string][]string

// Lookup returns the identities for an already-normalized term
func (q QueryIndex) Lookup(term string) []string {
	return q[term]
}

func (q QueryIndex) add(term, id string) {
	q[term] = append(q[term], id)
}
