package canvas

// Store is the canonical element set for one room: a mapping from
// element id to Element that preserves insertion order, because
// insertion order is render z-order.
//
// The Store itself is not synchronized. Each instance is owned either
// by a client session loop or by a server room that wraps access in
// its own lock; there are never two concurrent writers.
type Store struct {
	order    []string
	elements map[string]*Element
}

func NewStore() *Store {
	return &Store{
		elements: make(map[string]*Element),
	}
}

// Add inserts a locally created element, stamping authorship and both
// timestamps. Returns false without touching the store if the id is
// already present; producers generate collision-free ids, so a hit
// here is a duplicate delivery, not an error.
func (s *Store) Add(e Element, createdBy string, ts int64) bool {
	if _, ok := s.elements[e.ID]; ok {
		return false
	}
	e = e.Clone()
	e.CreatedBy = createdBy
	e.CreatedAt = ts
	e.UpdatedAt = ts
	s.insert(&e)
	return true
}

// ApplyAdded inserts a remote element as-is. Idempotent under
// at-least-once delivery: a duplicate id is a no-op.
func (s *Store) ApplyAdded(e Element) bool {
	if _, ok := s.elements[e.ID]; ok {
		return false
	}
	e = e.Clone()
	s.insert(&e)
	return true
}

func (s *Store) insert(e *Element) {
	s.order = append(s.order, e.ID)
	s.elements[e.ID] = e
}

// Update merges a partial patch into an existing element and sets
// UpdatedAt to ts. No-op when the id is absent (concurrently deleted)
// or when ts is older than the element's current UpdatedAt; the stale
// patch loses wholesale.
func (s *Store) Update(id string, p Patch, ts int64) bool {
	e, ok := s.elements[id]
	if !ok {
		return false
	}
	if ts < e.UpdatedAt {
		return false
	}
	p.Apply(e)
	e.UpdatedAt = ts
	return true
}

// Remove deletes unconditionally; removing an absent id is a no-op.
func (s *Store) Remove(id string) bool {
	if _, ok := s.elements[id]; !ok {
		return false
	}
	delete(s.elements, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Store) Get(id string) (Element, bool) {
	e, ok := s.elements[id]
	if !ok {
		return Element{}, false
	}
	return e.Clone(), true
}

func (s *Store) Has(id string) bool {
	_, ok := s.elements[id]
	return ok
}

func (s *Store) Len() int {
	return len(s.elements)
}

// Snapshot returns a deep copy of the element set in z-order. The
// copy is safe to hold across later mutations.
func (s *Store) Snapshot() []Element {
	out := make([]Element, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.elements[id].Clone())
	}
	return out
}

// Replace swaps in a whole new element set, discarding the current
// one. Used when an authoritative state arrives: undo/redo broadcast,
// join seeding, resync after reconnect.
func (s *Store) Replace(elements []Element) {
	s.order = s.order[:0]
	s.elements = make(map[string]*Element, len(elements))
	for _, e := range elements {
		if _, ok := s.elements[e.ID]; ok {
			continue
		}
		c := e.Clone()
		s.insert(&c)
	}
}

func (s *Store) Clear() {
	s.order = nil
	s.elements = make(map[string]*Element)
}
