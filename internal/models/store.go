package models

import (
	"sort"
)

// StoreVersion is the current persisted layout version.
const StoreVersion = 1

// Store is the persisted calendar state: activities per period plus every
// coupon ever claimed. It is loaded at run start and saved once at run end.
type Store struct {
	Version int                      `json:"version"`
	Periods map[string]*PeriodRecord `json:"periods"`
	Coupons []Coupon                 `json:"coupons"`
}

// PeriodRecord holds the activities known for one period, sorted by ID.
type PeriodRecord struct {
	Activities []Activity `json:"activities"`
}

// NewStore returns an empty store ready for a first run.
func NewStore() *Store {
	return &Store{
		Version: StoreVersion,
		Periods: make(map[string]*PeriodRecord),
		Coupons: []Coupon{},
	}
}

// Normalize fills nil collections and restores the ID ordering invariant.
// It is applied after loading so hand-edited files still serialize stably.
func (s *Store) Normalize() {
	if s.Version == 0 {
		s.Version = StoreVersion
	}
	if s.Periods == nil {
		s.Periods = make(map[string]*PeriodRecord)
	}
	if s.Coupons == nil {
		s.Coupons = []Coupon{}
	}
	for key, rec := range s.Periods {
		if rec == nil {
			rec = &PeriodRecord{}
			s.Periods[key] = rec
		}
		if rec.Activities == nil {
			rec.Activities = []Activity{}
		}
		SortActivities(rec.Activities)
	}
}

// HasPeriod reports whether the period has been refreshed at least once.
func (s *Store) HasPeriod(p Period) bool {
	_, ok := s.Periods[p.String()]
	return ok
}

// Period returns the record for p, creating it when absent.
func (s *Store) Period(p Period) *PeriodRecord {
	key := p.String()
	rec, ok := s.Periods[key]
	if !ok || rec == nil {
		rec = &PeriodRecord{Activities: []Activity{}}
		s.Periods[key] = rec
	}
	return rec
}

// Activities returns a copy of the activities stored for p in ID order.
func (s *Store) Activities(p Period) []Activity {
	rec, ok := s.Periods[p.String()]
	if !ok || rec == nil {
		return nil
	}
	out := make([]Activity, len(rec.Activities))
	copy(out, rec.Activities)
	return out
}

// FindActivity locates an activity by ID across all periods.
func (s *Store) FindActivity(id string) (*Activity, bool) {
	keys := make([]string, 0, len(s.Periods))
	for key := range s.Periods {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		rec := s.Periods[key]
		if rec == nil {
			continue
		}
		for i := range rec.Activities {
			if rec.Activities[i].ID == id {
				return &rec.Activities[i], true
			}
		}
	}
	return nil, false
}

// UpsertCoupon inserts c or replaces the stored coupon with the same ID in place.
func (s *Store) UpsertCoupon(c Coupon) (inserted bool) {
	for i := range s.Coupons {
		if s.Coupons[i].CouponID == c.CouponID {
			s.Coupons[i] = c
			return false
		}
	}
	s.Coupons = append(s.Coupons, c)
	return true
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	out := &Store{
		Version: s.Version,
		Periods: make(map[string]*PeriodRecord, len(s.Periods)),
		Coupons: make([]Coupon, len(s.Coupons)),
	}
	copy(out.Coupons, s.Coupons)
	for key, rec := range s.Periods {
		if rec == nil {
			out.Periods[key] = nil
			continue
		}
		acts := make([]Activity, len(rec.Activities))
		for i, a := range rec.Activities {
			if a.LastAttemptAt != nil {
				ts := *a.LastAttemptAt
				a.LastAttemptAt = &ts
			}
			acts[i] = a
		}
		out.Periods[key] = &PeriodRecord{Activities: acts}
	}
	return out
}

// SortActivities orders activities by ascending ID.
func SortActivities(acts []Activity) {
	sort.SliceStable(acts, func(i, j int) bool {
		return acts[i].ID < acts[j].ID
	})
}
