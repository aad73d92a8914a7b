package session

import (
	"context"

	"coffeeleaf/internal/history"
	"coffeeleaf/internal/identity"
)

func newScanList() []history.ScanRecord { return []history.ScanRecord{} }

// ScanHistory returns the namespace's scans, newest first.
func (s *Store) ScanHistory(ctx context.Context, ns identity.Namespace) ([]history.ScanRecord, error) {
	return load(ctx, s, ns.Key(baseScanHistory), newScanList)
}

// SaveScanHistory replaces the whole list.
func (s *Store) SaveScanHistory(ctx context.Context, ns identity.Namespace, records []history.ScanRecord) error {
	if records == nil {
		records = newScanList()
	}
	key := ns.Key(baseScanHistory)
	unlock := s.locks.lock(key)
	defer unlock()
	return s.save(ctx, key, records)
}

// AddScan prepends rec and drops the oldest entries beyond the limit.
func (s *Store) AddScan(ctx context.Context, ns identity.Namespace, rec history.ScanRecord) ([]history.ScanRecord, error) {
	return update(ctx, s, ns.Key(baseScanHistory), newScanList, func(cur []history.ScanRecord) ([]history.ScanRecord, error) {
		next := make([]history.ScanRecord, 0, len(cur)+1)
		next = append(next, rec)
		next = append(next, cur...)
		if len(next) > s.scanLimit {
			next = next[:s.scanLimit]
		}
		return next, nil
	})
}

// RemoveScan drops every record with the given id. An unknown id leaves the
// list as it was.
func (s *Store) RemoveScan(ctx context.Context, ns identity.Namespace, id string) ([]history.ScanRecord, error) {
	return update(ctx, s, ns.Key(baseScanHistory), newScanList, func(cur []history.ScanRecord) ([]history.ScanRecord, error) {
		next := make([]history.ScanRecord, 0, len(cur))
		for _, r := range cur {
			if r.ID != id {
				next = append(next, r)
			}
		}
		return next, nil
	})
}

func (s *Store) ClearScanHistory(ctx context.Context, ns identity.Namespace) error {
	key := ns.Key(baseScanHistory)
	unlock := s.locks.lock(key)
	defer unlock()
	return s.remove(ctx, key)
}
