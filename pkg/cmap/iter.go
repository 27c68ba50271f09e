package cmap

// Range iterates over all key-value pairs. The callback returns false
// to stop iteration. Locks are taken shard by shard, so the view is not
// a consistent snapshot.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, sh := range m.shards {
		sh.mu.RLock()
		for k, v := range sh.items {
			if !fn(k, v) {
				sh.mu.RUnlock()
				return
			}
		}
		sh.mu.RUnlock()
	}
}

// Keys returns all keys in unspecified order.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.Count())
	m.Range(func(key K, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// GetOrSet returns the existing value for a key, or stores and returns
// the given value if absent. The second return reports whether the key
// already existed.
func (m *Map[K, V]) GetOrSet(key K, value V) (V, bool) {
	sh := m.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if existing, ok := sh.items[key]; ok {
		return existing, true
	}
	sh.items[key] = value
	return value, false
}

// Pop removes a key and returns its value, with false when the key did
// not exist.
func (m *Map[K, V]) Pop(key K) (V, bool) {
	sh := m.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	val, ok := sh.items[key]
	if ok {
		delete(sh.items, key)
	}
	return val, ok
}
