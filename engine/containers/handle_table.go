package containers

// HandleTable hands out opaque non-zero identifiers for owned values.
// Identifiers are never reused, so a stale handle cannot alias a newer object.
type HandleTable[T any] struct {
	next  uint64
	items map[uint64]T
}

func NewHandleTable[T any]() *HandleTable[T] {
	return &HandleTable[T]{
		items: make(map[uint64]T),
	}
}

// Acquire stores the owner and returns its new identifier.
func (ht *HandleTable[T]) Acquire(owner T) uint64 {
	ht.next++
	ht.items[ht.next] = owner
	return ht.next
}

func (ht *HandleTable[T]) Get(id uint64) (T, bool) {
	v, ok := ht.items[id]
	return v, ok
}

// Release removes the identifier and returns what it held. Releasing an
// unknown identifier (or zero) is a no-op.
func (ht *HandleTable[T]) Release(id uint64) (T, bool) {
	v, ok := ht.items[id]
	if ok {
		delete(ht.items, id)
	}
	return v, ok
}

func (ht *HandleTable[T]) Len() int {
	return len(ht.items)
}

// Each visits the live entries in no particular order.
func (ht *HandleTable[T]) Each(fn func(id uint64, v T)) {
	for id, v := range ht.items {
		fn(id, v)
	}
}
