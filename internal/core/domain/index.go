// Package domain defines the core domain models for TabVault.
package domain

// IndexEntry is one session's slot in the session index.
type IndexEntry struct {
	ID        string `json:"id"`
	UpdatedAt int64  `json:"updated_at"`
}

// SessionIndex is the ordered list of persisted sessions, most recently
// updated first. It is stored whole under a fixed metadata key and is the
// sole input to eviction: a session exists iff its entry does.
type SessionIndex struct {
	Entries []IndexEntry `json:"entries"`
}

// Len returns the number of indexed sessions.
func (ix *SessionIndex) Len() int {
	return len(ix.Entries)
}

// Contains reports whether the index holds an entry for id.
func (ix *SessionIndex) Contains(id string) bool {
	for _, e := range ix.Entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Bump moves id to the front with the given timestamp, inserting it if
// absent. The front entry is always the most recently updated session.
func (ix *SessionIndex) Bump(id string, updatedAt int64) {
	entries := make([]IndexEntry, 0, len(ix.Entries)+1)
	entries = append(entries, IndexEntry{ID: id, UpdatedAt: updatedAt})
	for _, e := range ix.Entries {
		if e.ID != id {
			entries = append(entries, e)
		}
	}
	ix.Entries = entries
}

// Remove deletes the entry for id, reporting whether it was present.
func (ix *SessionIndex) Remove(id string) bool {
	for i, e := range ix.Entries {
		if e.ID == id {
			ix.Entries = append(ix.Entries[:i], ix.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// IDs returns the session IDs in index order.
func (ix *SessionIndex) IDs() []string {
	ids := make([]string, len(ix.Entries))
	for i, e := range ix.Entries {
		ids[i] = e.ID
	}
	return ids
}

// Overflow returns the IDs beyond the first max entries: the eviction
// victims, least recently updated last.
func (ix *SessionIndex) Overflow(max int) []string {
	if max < 0 {
		max = 0
	}
	if len(ix.Entries) <= max {
		return nil
	}
	victims := make([]string, 0, len(ix.Entries)-max)
	for _, e := range ix.Entries[max:] {
		victims = append(victims, e.ID)
	}
	return victims
}

// Clone creates a deep copy of the index.
func (ix *SessionIndex) Clone() *SessionIndex {
	clone := &SessionIndex{Entries: make([]IndexEntry, len(ix.Entries))}
	copy(clone.Entries, ix.Entries)
	return clone
}
