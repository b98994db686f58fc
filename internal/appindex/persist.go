package appindex

import (
	"context"
	"encoding/json"
	"fmt"
)

// QueryIndexKey is the storage key of the persisted query index
const QueryIndexKey = "InstalledAppsService-query-index"

const queryIndexVersion = 1

type persistedQueryIndex struct {
	Version int        `json:"version"`
	Terms   QueryIndex `json:"terms"`
}

// EncodeQueryIndex serializes a query index with its format version
func EncodeQueryIndex(q QueryIndex) ([]byte, error) {
	if q == nil {
		q = QueryIndex{}
	}
	return json.Marshal(persistedQueryIndex{Version: queryIndexVersion, Terms: q})
}

// DecodeQueryIndex parses a payload written by EncodeQueryIndex
func DecodeQueryIndex(data []byte) (QueryIndex, error) {
	var p persistedQueryIndex
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode query index: %w", err)
	}
	if p.Version != queryIndexVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, p.Version)
	}
	if p.Terms == nil {
		p.Terms = QueryIndex{}
	}
	return p.Terms, nil
}

// loadQueryIndex installs the persisted query index unless a fresher one already exists.
// A missing or unreadable payload leaves the index absent until the next catalog batch.
func (s *Service) loadQueryIndex(ctx context.Context) {
	data, found, err := s.kv.Get(ctx, QueryIndexKey)
	if err != nil {
		s.logger.Warn("failed to read persisted query index", "err", err)
		return
	}
	if !found {
		s.logger.Info("no persisted query index, waiting for catalog batch")
		return
	}
	q, err := DecodeQueryIndex(data)
	if err != nil {
		s.logger.Warn("ignoring persisted query index", "err", err)
		return
	}
	if s.queries.CompareAndSwap(nil, &q) {
		s.logger.Debug("loaded persisted query index", "terms", len(q))
	}
}

// persistQueryIndex writes the query index; failures are logged and counted only.
func (s *Service) persistQueryIndex(ctx context.Context, q QueryIndex) {
	data, err := EncodeQueryIndex(q)
	if err == nil {
		err = s.kv.Set(ctx, QueryIndexKey, data)
	}
	if err != nil {
		s.stats.persistFailures.Add(1)
		s.logger.Warn("failed to persist query index", "err", err)
	}
}
