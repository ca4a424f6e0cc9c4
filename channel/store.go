package channel

import (
	"errors"

	"github.com/bdube/pmu/util"
)

// MaxID is the largest permissible channel id; the store is a fixed
// [MaxID+1]Channel arena indexed directly by id (spec §4.1 capacity)
const MaxID = 1023

var (
	// ErrDupID is returned by Register when the id is already occupied
	ErrDupID = errors.New("channel: duplicate id")
	// ErrOutOfRange is returned by Register when id > MaxID
	ErrOutOfRange = errors.New("channel: id out of range")
	// ErrNotFound is returned when an id has no registered channel
	ErrNotFound = errors.New("channel: not found")
	// ErrNotOutput is returned by SetValue against a non-output channel
	ErrNotOutput = errors.New("channel: set_value target is not an output")
	// ErrDisabled is returned by SetValue against a disabled output channel
	ErrDisabled = errors.New("channel: output is disabled")
)

// Store is the central registry and current-value table. It owns exactly one
// writer's worth of state per spec §5 ("single owning object passed
// explicitly to each subsystem's operations"); the zero value is usable.
type Store struct {
	slots      [MaxID + 1]Channel
	occupied   [MaxID + 1]bool
	nameIndex  map[string]uint16
	nextVirtID uint16
}

// NewStore allocates a ready-to-use Store
func NewStore() *Store {
	return &Store{nameIndex: make(map[string]uint16)}
}

// Register inserts a channel descriptor into the table. It fails if the id
// is out of range or already occupied.
func (s *Store) Register(c Channel) error {
	if int(c.ID) > MaxID {
		return ErrOutOfRange
	}
	if err := validateDescriptor(c); err != nil {
		return err
	}
	if s.occupied[c.ID] {
		return ErrDupID
	}
	if s.nameIndex == nil {
		s.nameIndex = make(map[string]uint16)
	}
	s.slots[c.ID] = c
	s.occupied[c.ID] = true
	if c.Name != "" {
		s.nameIndex[c.Name] = c.ID
	}
	return nil
}

// Unregister removes a channel from the table
func (s *Store) Unregister(id uint16) error {
	if int(id) > MaxID || !s.occupied[id] {
		return ErrNotFound
	}
	name := s.slots[id].Name
	s.occupied[id] = false
	s.slots[id] = Channel{}
	delete(s.nameIndex, name)
	return nil
}

// GetValue returns the current value of id, or 0 for an unknown id -- this is
// deliberate, serving as a constant-zero fallback for dangling references.
func (s *Store) GetValue(id uint16) int32 {
	if int(id) > MaxID || !s.occupied[id] {
		return 0
	}
	c := &s.slots[id]
	v := c.Value
	if c.Direction == Output && c.Flags.Has(Inverted) {
		v = c.MaxValue - v
	}
	return v
}

// SetValue writes v to an output channel, clamping to [min,max] and applying
// inversion. Writes to input or disabled channels are rejected without
// panicking or mutating state (spec §3.1 invariants, §7 "runtime local"
// errors).
func (s *Store) SetValue(id uint16, v int32) error {
	if int(id) > MaxID || !s.occupied[id] {
		return ErrNotFound
	}
	c := &s.slots[id]
	if !c.Class.IsOutput() {
		return ErrNotOutput
	}
	if !c.Flags.Has(Enabled) {
		return ErrDisabled
	}
	if c.Flags.Has(Inverted) {
		v = c.MaxValue - v
	}
	c.Value = util.ClampInt32(v, c.MinValue, c.MaxValue)
	return nil
}

// ForceValue writes v to a channel bypassing the output/enabled checks of
// SetValue. It is used by the sampling layer and actuation feedback path,
// the only writers of input/system channels and of feedback sub-channels.
func (s *Store) ForceValue(id uint16, v int32) error {
	if int(id) > MaxID || !s.occupied[id] {
		return ErrNotFound
	}
	c := &s.slots[id]
	if c.Class.IsOutput() {
		c.Value = util.ClampInt32(v, c.MinValue, c.MaxValue)
	} else {
		c.Value = v
	}
	return nil
}

// GetInfo returns a copy of the full descriptor for id, if registered
func (s *Store) GetInfo(id uint16) (Channel, bool) {
	if int(id) > MaxID || !s.occupied[id] {
		return Channel{}, false
	}
	return s.slots[id], true
}

// SetInfo overwrites the full descriptor for an already-registered id,
// preserving Value. Used by the loader to patch metadata after bootstrap.
func (s *Store) SetInfo(id uint16, c Channel) error {
	if int(id) > MaxID || !s.occupied[id] {
		return ErrNotFound
	}
	oldName := s.slots[id].Name
	v := s.slots[id].Value
	c.ID = id
	c.Value = v
	s.slots[id] = c
	if oldName != "" && oldName != c.Name {
		delete(s.nameIndex, oldName)
	}
	if c.Name != "" {
		s.nameIndex[c.Name] = id
	}
	return nil
}

// FindByName does a name lookup via the pre-built id index (spec §4.1: "a
// pre-built id->index map may be used if the id space becomes sparse" --
// here it indexes the sparser name space instead of id, since id is already
// a direct array index)
func (s *Store) FindByName(name string) (Channel, bool) {
	id, ok := s.nameIndex[name]
	if !ok {
		return Channel{}, false
	}
	return s.slots[id], true
}

// SetEnabled flips the Enabled flag for id
func (s *Store) SetEnabled(id uint16, enabled bool) error {
	if int(id) > MaxID || !s.occupied[id] {
		return ErrNotFound
	}
	c := &s.slots[id]
	c.Flags = c.Flags.Set(Enabled, enabled)
	return nil
}

// SetFlag sets or clears an arbitrary flag bit on id
func (s *Store) SetFlag(id uint16, mask Flags, on bool) error {
	if int(id) > MaxID || !s.occupied[id] {
		return ErrNotFound
	}
	c := &s.slots[id]
	c.Flags = c.Flags.Set(mask, on)
	return nil
}

// All returns a freshly allocated slice of every registered channel, sorted
// by id. Intended for telemetry snapshots, not the hot path.
func (s *Store) All() []Channel {
	out := make([]Channel, 0, MaxID+1)
	for id := 0; id <= MaxID; id++ {
		if s.occupied[id] {
			out = append(out, s.slots[id])
		}
	}
	return out
}

// NextVirtualID returns a monotonically increasing id starting at threshold,
// skipping any ids already occupied, for the loader to hand out to
// user-created virtual channels (spec §4.1 "Id generation").
func (s *Store) NextVirtualID(threshold uint16) (uint16, error) {
	if s.nextVirtID < threshold {
		s.nextVirtID = threshold
	}
	for s.nextVirtID <= MaxID {
		if !s.occupied[s.nextVirtID] {
			id := s.nextVirtID
			s.nextVirtID++
			return id, nil
		}
		s.nextVirtID++
	}
	return 0, ErrOutOfRange
}
