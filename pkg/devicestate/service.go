// Per-device meter state for the lifetime of the process.
// Entries are created lazily on first use and never removed. Access is
// serialized per device id; distinct devices proceed in parallel.
package devicestate

import (
	"sync"
	"time"

	"github.com/delento/iot-data-processor/pkg/types"
)

// Store maps device ids to their state. The store-level mutex only guards
// the map; each entry carries its own lock.
type Store struct {
	mu      sync.RWMutex
	devices map[string]*deviceState
}

func NewStore() *Store {
	return &Store{devices: make(map[string]*deviceState)}
}

// get returns the entry for deviceID, creating a zero-initialized one.
// Creation is implicit and idempotent.
func (s *Store) get(deviceID string) *deviceState {
	s.mu.RLock()
	st, ok := s.devices[deviceID]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.devices[deviceID]; ok {
		return st
	}
	st = &deviceState{lastReadingTime: time.Unix(0, 0).UTC()}
	s.devices[deviceID] = st
	return st
}

// Get returns a copy of the device's current state. A device never seen
// before reads as baseline 0 with no identity; that is not an error.
func (s *Store) Get(deviceID string) Snapshot {
	st := s.get(deviceID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return snapshotLocked(deviceID, st)
}

// SetIdentity replaces the device identity wholesale. Cumulative volume
// is untouched.
func (s *Store) SetIdentity(deviceID string, ident types.DeviceIdentity) {
	st := s.get(deviceID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.identity = &ident
}

// SetAbsoluteReading unconditionally overwrites the cumulative volume and
// last-reading timestamp. An absolute reading is authoritative and
// resynchronizes any drift accumulated by delta processing.
func (s *Store) SetAbsoluteReading(deviceID string, volume float64, ts time.Time) {
	st := s.get(deviceID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cumulativeVolume = volume
	st.lastReadingTime = ts
}

// AddDelta atomically adds delta to the cumulative volume and returns the
// new value. The last-reading timestamp advances to ts when ts is later
// than the stored one.
func (s *Store) AddDelta(deviceID string, delta float64, ts time.Time) float64 {
	st := s.get(deviceID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cumulativeVolume += delta
	if ts.After(st.lastReadingTime) {
		st.lastReadingTime = ts
	}
	return st.cumulativeVolume
}

// All returns snapshots of every known device, for checkpointing.
func (s *Store) All() []Snapshot {
	s.mu.RLock()
	ids := make([]string, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		snaps = append(snaps, s.Get(id))
	}
	return snaps
}

// Restore preloads state from a durable checkpoint. Intended for process
// start, before any message is processed.
func (s *Store) Restore(snaps []Snapshot) {
	for _, snap := range snaps {
		st := s.get(snap.DeviceID)
		st.mu.Lock()
		st.cumulativeVolume = snap.CumulativeVolume
		st.lastReadingTime = snap.LastReadingTime
		if snap.Identity != nil {
			ident := *snap.Identity
			st.identity = &ident
		}
		st.mu.Unlock()
	}
}

func snapshotLocked(deviceID string, st *deviceState) Snapshot {
	snap := Snapshot{
		DeviceID:         deviceID,
		CumulativeVolume: st.cumulativeVolume,
		LastReadingTime:  st.lastReadingTime,
	}
	if st.identity != nil {
		ident := *st.identity
		snap.Identity = &ident
	}
	return snap
}
