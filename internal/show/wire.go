package show

import (
	"encoding/json"
	"fmt"
	"sort"
)

// JSON cannot natively carry maps with non-string semantics or sets, so the
// wire form of every associative container is an array of [key, value]
// pairs and every set is an array of elements. Keys and elements are sorted
// so that serialisation is deterministic and projections are
// ordering-stable for transport.

// UserMap maps user ids to users. Wire form: [[id, user], ...].
type UserMap map[UserID]*User

// MarshalJSON encodes the map as sorted [key, value] pairs.
func (m UserMap) MarshalJSON() ([]byte, error) {
	ids := make([]UserID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	pairs := make([][2]any, 0, len(ids))
	for _, id := range ids {
		pairs = append(pairs, [2]any{id, m[id]})
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON decodes [key, value] pairs back into a native map.
func (m *UserMap) UnmarshalJSON(data []byte) error {
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("show: user map wire form: %w", err)
	}
	out := make(UserMap, len(pairs))
	for _, p := range pairs {
		var id UserID
		if err := json.Unmarshal(p[0], &id); err != nil {
			return fmt.Errorf("show: user map key: %w", err)
		}
		u := &User{}
		if err := json.Unmarshal(p[1], u); err != nil {
			return fmt.Errorf("show: user map value: %w", err)
		}
		out[id] = u
	}
	*m = out
	return nil
}

// TreeMap maps user ids to personal trees. Wire form: [[id, tree], ...].
type TreeMap map[UserID]*PersonalTree

// MarshalJSON encodes the map as sorted [key, value] pairs.
func (m TreeMap) MarshalJSON() ([]byte, error) {
	ids := make([]UserID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	pairs := make([][2]any, 0, len(ids))
	for _, id := range ids {
		pairs = append(pairs, [2]any{id, m[id]})
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON decodes [key, value] pairs back into a native map.
func (m *TreeMap) UnmarshalJSON(data []byte) error {
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("show: tree map wire form: %w", err)
	}
	out := make(TreeMap, len(pairs))
	for _, p := range pairs {
		var id UserID
		if err := json.Unmarshal(p[0], &id); err != nil {
			return fmt.Errorf("show: tree map key: %w", err)
		}
		t := &PersonalTree{}
		if err := json.Unmarshal(p[1], t); err != nil {
			return fmt.Errorf("show: tree map value: %w", err)
		}
		out[id] = t
	}
	*m = out
	return nil
}

// UserSet is a set of user ids. Wire form: a sorted array of elements.
type UserSet map[UserID]struct{}

// Add inserts id. Idempotent.
func (s UserSet) Add(id UserID) { s[id] = struct{}{} }

// Has reports membership.
func (s UserSet) Has(id UserID) bool {
	_, ok := s[id]
	return ok
}

// Members returns the elements in sorted order.
func (s UserSet) Members() []UserID {
	out := make([]UserID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the set as a sorted element array.
func (s UserSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Members())
}

// UnmarshalJSON decodes an element array back into a native set.
func (s *UserSet) UnmarshalJSON(data []byte) error {
	var ids []UserID
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("show: user set wire form: %w", err)
	}
	out := make(UserSet, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	*s = out
	return nil
}

// Serialise encodes a state to its canonical JSON wire form.
func Serialise(st *State) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("show: serialise state: %w", err)
	}
	return data, nil
}

// Deserialise decodes a state from its JSON wire form.
func Deserialise(data []byte) (*State, error) {
	st := &State{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("show: deserialise state: %w", err)
	}
	if st.Users == nil {
		st.Users = UserMap{}
	}
	if st.Trees == nil {
		st.Trees = TreeMap{}
	}
	for _, f := range st.Factions {
		if f.CoupVotes == nil {
			f.CoupVotes = UserSet{}
		}
	}
	return st, nil
}
