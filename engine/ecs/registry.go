package ecs

import (
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/spaghettifunk/prism/engine/containers"
	"github.com/spaghettifunk/prism/engine/core"
)

var (
	ErrEntityNotFound     = errors.New("entity not found")
	ErrUnregisteredType   = errors.New("component type not registered")
	ErrDuplicateComponent = errors.New("entity already has a component of this type")
)

type EntityID uint64

// Updater is implemented by components that advance every frame.
type Updater interface {
	Update(delta float64)
}

// Destroyer is implemented by components that release something when their
// entity is destroyed.
type Destroyer interface {
	OnDestroy()
}

type Entity struct {
	ID         EntityID
	components map[TypeID]any
}

func (e *Entity) Has(id TypeID) bool {
	_, ok := e.components[id]
	return ok
}

func (e *Entity) ComponentCount() int {
	return len(e.components)
}

// pool keeps the components of one type contiguous for system iteration.
type pool struct {
	owners []EntityID
	items  []any
	index  map[EntityID]int
}

func (p *pool) add(id EntityID, c any) {
	p.index[id] = len(p.items)
	p.owners = append(p.owners, id)
	p.items = append(p.items, c)
}

func (p *pool) remove(id EntityID) {
	i, ok := p.index[id]
	if !ok {
		return
	}
	last := len(p.items) - 1
	if i != last {
		p.items[i] = p.items[last]
		p.owners[i] = p.owners[last]
		p.index[p.owners[i]] = i
	}
	p.items[last] = nil
	p.items = p.items[:last]
	p.owners = p.owners[:last]
	delete(p.index, id)
}

// Registry owns the entities of one world. It is not safe for concurrent use.
type Registry struct {
	types    *TypeRegistry
	entities *containers.HandleTable[*Entity]
	pools    map[TypeID]*pool
}

func NewRegistry(types *TypeRegistry) *Registry {
	return &Registry{
		types:    types,
		entities: containers.NewHandleTable[*Entity](),
		pools:    make(map[TypeID]*pool),
	}
}

func (r *Registry) Types() *TypeRegistry {
	return r.types
}

// CreateEntity returns a new entity ID. IDs start at 1 and are never reused.
func (r *Registry) CreateEntity() EntityID {
	e := &Entity{components: make(map[TypeID]any)}
	e.ID = EntityID(r.entities.Acquire(e))
	return e.ID
}

func (r *Registry) GetEntityByID(id EntityID) (*Entity, bool) {
	return r.entities.Get(uint64(id))
}

func (r *Registry) Len() int {
	return r.entities.Len()
}

// DestroyEntity removes the entity and evicts its components from their pools.
// Components implementing Destroyer are notified in type ID order.
func (r *Registry) DestroyEntity(id EntityID) error {
	e, ok := r.entities.Release(uint64(id))
	if !ok {
		return fmt.Errorf("destroy entity %d: %w", id, ErrEntityNotFound)
	}
	for _, tid := range sortedTypes(e.components) {
		if d, ok := e.components[tid].(Destroyer); ok {
			d.OnDestroy()
		}
		if p := r.pools[tid]; p != nil {
			p.remove(id)
		}
	}
	core.LogDebug("entity %d destroyed (%d components)", id, len(e.components))
	return nil
}

// Update calls Update on every component implementing Updater, pool by pool
// in type ID order.
func (r *Registry) Update(delta float64) {
	ids := make([]TypeID, 0, len(r.pools))
	for tid := range r.pools {
		ids = append(ids, tid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, tid := range ids {
		for _, c := range r.pools[tid].items {
			if u, ok := c.(Updater); ok {
				u.Update(delta)
			}
		}
	}
}

func (r *Registry) pool(tid TypeID) *pool {
	p, ok := r.pools[tid]
	if !ok {
		p = &pool{index: make(map[EntityID]int)}
		r.pools[tid] = p
	}
	return p
}

// AddComponent attaches a zero T to the entity and returns it for the caller
// to fill in.
func AddComponent[T any](r *Registry, id EntityID) (*T, error) {
	tid, ok := TypeOf[T](r.types)
	if !ok {
		var zero T
		return nil, fmt.Errorf("add %T: %w", zero, ErrUnregisteredType)
	}
	e, ok := r.GetEntityByID(id)
	if !ok {
		return nil, fmt.Errorf("add component to entity %d: %w", id, ErrEntityNotFound)
	}
	if e.Has(tid) {
		return nil, fmt.Errorf("entity %d: %w", id, ErrDuplicateComponent)
	}
	c := new(T)
	e.components[tid] = c
	r.pool(tid).add(id, c)
	return c, nil
}

func GetComponent[T any](r *Registry, id EntityID) (*T, bool) {
	tid, ok := TypeOf[T](r.types)
	if !ok {
		return nil, false
	}
	e, ok := r.GetEntityByID(id)
	if !ok {
		return nil, false
	}
	c, ok := e.components[tid]
	if !ok {
		return nil, false
	}
	return c.(*T), true
}

// RemoveComponent detaches T from the entity. OnDestroy is not called.
func RemoveComponent[T any](r *Registry, id EntityID) error {
	tid, ok := TypeOf[T](r.types)
	if !ok {
		var zero T
		return fmt.Errorf("remove %T: %w", zero, ErrUnregisteredType)
	}
	e, ok := r.GetEntityByID(id)
	if !ok {
		return fmt.Errorf("remove component from entity %d: %w", id, ErrEntityNotFound)
	}
	delete(e.components, tid)
	if p := r.pools[tid]; p != nil {
		p.remove(id)
	}
	return nil
}

// Pool iterates every T together with its owning entity. The pool must not
// be modified during iteration.
func Pool[T any](r *Registry) iter.Seq2[EntityID, *T] {
	return func(yield func(EntityID, *T) bool) {
		tid, ok := TypeOf[T](r.types)
		if !ok {
			return
		}
		p := r.pools[tid]
		if p == nil {
			return
		}
		for i, c := range p.items {
			if !yield(p.owners[i], c.(*T)) {
				return
			}
		}
	}
}

func sortedTypes(m map[TypeID]any) []TypeID {
	ids := make([]TypeID, 0, len(m))
	for tid := range m {
		ids = append(ids, tid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
