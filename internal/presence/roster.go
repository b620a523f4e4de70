// Package presence tracks who is in a room: the participant roster,
// each participant's ephemeral cursor, and the local cursor throttle.
package presence

// Profile is the display identity supplied by the identity provider.
type Profile struct {
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type Participant struct {
	ID      string  `json:"id"`
	Profile Profile `json:"profile"`
}

// Roster is the single source of truth for who is present. Cursor and
// active-path state for a user not in the roster must be dropped.
// Insertion order is kept for stable participant lists.
type Roster struct {
	order   []string
	members map[string]Participant
}

func NewRoster() *Roster {
	return &Roster{
		members: make(map[string]Participant),
	}
}

// Add inserts a participant; re-joining updates the profile in place.
func (r *Roster) Add(p Participant) bool {
	if _, ok := r.members[p.ID]; ok {
		r.members[p.ID] = p
		return false
	}
	r.order = append(r.order, p.ID)
	r.members[p.ID] = p
	return true
}

func (r *Roster) Remove(userID string) bool {
	if _, ok := r.members[userID]; !ok {
		return false
	}
	delete(r.members, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Roster) Has(userID string) bool {
	_, ok := r.members[userID]
	return ok
}

func (r *Roster) Get(userID string) (Participant, bool) {
	p, ok := r.members[userID]
	return p, ok
}

func (r *Roster) Len() int {
	return len(r.members)
}

// List returns participants in join order.
func (r *Roster) List() []Participant {
	out := make([]Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.members[id])
	}
	return out
}

// Replace installs a full roster, used on resync.
func (r *Roster) Replace(participants []Participant) {
	r.order = r.order[:0]
	r.members = make(map[string]Participant, len(participants))
	for _, p := range participants {
		if _, ok := r.members[p.ID]; ok {
			continue
		}
		r.order = append(r.order, p.ID)
		r.members[p.ID] = p
	}
}
