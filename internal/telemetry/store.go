package telemetry

import (
	"sync"

	"obdscan/internal/models"
)

// Store holds the current DTC set and parameter set. It is the single
// source of truth the session reads from and the updater writes to.
//
// The DTC set keeps insertion order and unique codes. The parameter set is
// fixed when the store is created: SetParameters only updates labels that
// already exist.
type Store struct {
	mu     sync.RWMutex
	codes  []models.DTCEntry
	index  map[string]struct{}
	params []models.VehicleParameter
}

func NewStore(codes []models.DTCEntry, params []models.VehicleParameter) *Store {
	s := &Store{
		params: copyParameters(params),
	}
	s.SetCodes(codes)
	return s
}

// Codes returns a copy of the DTC set in insertion order.
func (s *Store) Codes() []models.DTCEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DTCEntry, len(s.codes))
	copy(out, s.codes)
	return out
}

// SetCodes replaces the DTC set. Duplicate codes keep their first occurrence.
func (s *Store) SetCodes(codes []models.DTCEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = make([]models.DTCEntry, 0, len(codes))
	s.index = make(map[string]struct{}, len(codes))
	for _, c := range codes {
		s.add(c)
	}
}

func (s *Store) add(c models.DTCEntry) {
	if _, ok := s.index[c.Code]; ok {
		return
	}
	s.index[c.Code] = struct{}{}
	s.codes = append(s.codes, c)
}

// ClearCodes empties the DTC set.
func (s *Store) ClearCodes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = []models.DTCEntry{}
	s.index = map[string]struct{}{}
}

// Parameters returns a copy of the parameter set.
func (s *Store) Parameters() []models.VehicleParameter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyParameters(s.params)
}

// SetParameters applies updated readings by label. Unknown labels are
// ignored and nothing is removed.
func (s *Store) SetParameters(updated []models.VehicleParameter) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied := 0
	for _, u := range updated {
		for i := range s.params {
			if s.params[i].Label != u.Label {
				continue
			}
			s.params[i].Value = u.Value
			s.params[i].Percentage = clonePct(u.Percentage)
			applied++
			break
		}
	}
	return applied
}

// Snapshot returns both sets under a single read lock.
func (s *Store) Snapshot() ([]models.DTCEntry, []models.VehicleParameter) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := make([]models.DTCEntry, len(s.codes))
	copy(codes, s.codes)
	return codes, copyParameters(s.params)
}

func copyParameters(in []models.VehicleParameter) []models.VehicleParameter {
	out := make([]models.VehicleParameter, len(in))
	for i, p := range in {
		out[i] = p
		out[i].Percentage = clonePct(p.Percentage)
	}
	return out
}

func clonePct(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
