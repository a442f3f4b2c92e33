package colony

// slot holds one arena entry. gen starts at 1 so no live id is ever 0.
type slot struct {
	gen   uint32
	alive bool
	ant   Ant
}

// Arena stores ants in a dense slice addressed by id. Freed slots go on a
// free list and are reused with a bumped generation, so indices stay
// stable for the lifetime of an ant and stale ids never resolve.
type Arena struct {
	slots []slot
	free  []int
	live  int
}

// Insert stores a and returns its new id.
func (ar *Arena) Insert(a Ant) AntID {
	var i int
	if n := len(ar.free); n > 0 {
		i = ar.free[n-1]
		ar.free = ar.free[:n-1]
	} else {
		ar.slots = append(ar.slots, slot{gen: 1})
		i = len(ar.slots) - 1
	}
	s := &ar.slots[i]
	a.ID = makeID(i, s.gen)
	s.ant = a
	s.alive = true
	ar.live++
	return a.ID
}

// Remove frees the ant's slot. It reports false for stale or unknown ids.
func (ar *Arena) Remove(id AntID) bool {
	s := ar.lookup(id)
	if s == nil {
		return false
	}
	s.alive = false
	s.ant = Ant{}
	s.gen++
	ar.free = append(ar.free, id.Slot())
	ar.live--
	return true
}

// Get returns the live ant with id.
func (ar *Arena) Get(id AntID) (*Ant, bool) {
	s := ar.lookup(id)
	if s == nil {
		return nil, false
	}
	return &s.ant, true
}

func (ar *Arena) lookup(id AntID) *slot {
	i := id.Slot()
	if i < 0 || i >= len(ar.slots) {
		return nil
	}
	s := &ar.slots[i]
	if !s.alive || s.gen != id.Gen() {
		return nil
	}
	return s
}

// At returns the ant in slot i if it is live.
func (ar *Arena) At(i int) (*Ant, bool) {
	if i < 0 || i >= len(ar.slots) || !ar.slots[i].alive {
		return nil, false
	}
	return &ar.slots[i].ant, true
}

// Len returns the number of live ants.
func (ar *Arena) Len() int { return ar.live }

// Slots returns the number of slots, live or free.
func (ar *Arena) Slots() int { return len(ar.slots) }

// SlotState is the persisted form of one arena slot.
type SlotState struct {
	Gen   uint32 `json:"gen"`
	Alive bool   `json:"alive"`
	Ant   Ant    `json:"ant"`
}

// export returns the slots and free list for saving.
func (ar *Arena) export() ([]SlotState, []int) {
	out := make([]SlotState, len(ar.slots))
	for i, s := range ar.slots {
		out[i] = SlotState{Gen: s.gen, Alive: s.alive, Ant: s.ant}
	}
	return out, append([]int(nil), ar.free...)
}

// restore rebuilds the arena from saved slots and free list.
func (ar *Arena) restore(slots []SlotState, free []int) {
	ar.slots = make([]slot, len(slots))
	ar.live = 0
	for i, s := range slots {
		ar.slots[i] = slot{gen: s.Gen, alive: s.Alive, ant: s.Ant}
		if s.Alive {
			ar.slots[i].ant.ID = makeID(i, s.Gen)
			ar.live++
		}
	}
	ar.free = append([]int(nil), free...)
}
