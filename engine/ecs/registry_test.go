package ecs_test

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/prism/engine/ecs"
)

type Transform struct {
	X, Y, Z float32
	Scale   float32
	hidden  bool
}

type Spin struct {
	Speed float64
	Angle float64
}

func (s *Spin) Update(delta float64) {
	s.Angle += s.Speed * delta
}

type Handle struct {
	released *int
}

func (h *Handle) OnDestroy() {
	*h.released++
}

func newRegistry() (*ecs.Registry, *ecs.TypeRegistry) {
	types := ecs.NewTypeRegistry()
	ecs.Register[Transform](types)
	ecs.Register[Spin](types)
	ecs.Register[Handle](types)
	return ecs.NewRegistry(types), types
}

func TestTypeRegistry(t *testing.T) {
	types := ecs.NewTypeRegistry()
	a := ecs.Register[Transform](types)
	b := ecs.Register[Spin](types)
	if a != 1 || b != 2 {
		t.Fatalf("ids = %d, %d; want 1, 2", a, b)
	}
	if again := ecs.Register[Transform](types); again != a {
		t.Errorf("re-register returned %d, want %d", again, a)
	}
	if _, ok := ecs.TypeOf[Handle](types); ok {
		t.Error("Handle should not be registered")
	}

	rep, ok := types.Representation(a)
	if !ok {
		t.Fatal("representation missing")
	}
	if rep.Name != "Transform" {
		t.Errorf("name = %q", rep.Name)
	}
	want := map[string]int{"X": 1, "Y": 2, "Z": 3, "Scale": 4}
	if len(rep.Fields) != len(want) {
		t.Fatalf("fields = %v", rep.Fields)
	}
	for name, id := range want {
		if rep.Fields[name] != id {
			t.Errorf("field %s = %d, want %d", name, rep.Fields[name], id)
		}
	}
	if _, ok := types.Representation(0); ok {
		t.Error("type 0 must not resolve")
	}
}

func TestRegisterNonStructPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	ecs.Register[int](ecs.NewTypeRegistry())
}

func TestEntityIDsIncrease(t *testing.T) {
	r, _ := newRegistry()
	var last ecs.EntityID
	for i := 0; i < 10; i++ {
		id := r.CreateEntity()
		if id <= last {
			t.Fatalf("id %d after %d", id, last)
		}
		last = id
		if i == 4 {
			if err := r.DestroyEntity(id); err != nil {
				t.Fatal(err)
			}
		}
	}
	if r.CreateEntity() != 11 {
		t.Error("ids must not be reused")
	}
	if r.Len() != 10 {
		t.Errorf("Len = %d, want 10", r.Len())
	}
}

func TestComponents(t *testing.T) {
	r, _ := newRegistry()
	id := r.CreateEntity()

	tr, err := ecs.AddComponent[Transform](r, id)
	if err != nil {
		t.Fatal(err)
	}
	tr.Scale = 2

	got, ok := ecs.GetComponent[Transform](r, id)
	if !ok || got.Scale != 2 {
		t.Fatalf("GetComponent = %+v, %v", got, ok)
	}
	if _, err := ecs.AddComponent[Transform](r, id); !errors.Is(err, ecs.ErrDuplicateComponent) {
		t.Errorf("expected ErrDuplicateComponent, got %v", err)
	}
	if _, err := ecs.AddComponent[struct{ A int }](r, id); !errors.Is(err, ecs.ErrUnregisteredType) {
		t.Errorf("expected ErrUnregisteredType, got %v", err)
	}
	if _, err := ecs.AddComponent[Spin](r, 99); !errors.Is(err, ecs.ErrEntityNotFound) {
		t.Errorf("expected ErrEntityNotFound, got %v", err)
	}
	if _, ok := ecs.GetComponent[Spin](r, id); ok {
		t.Error("entity has no Spin")
	}

	if err := ecs.RemoveComponent[Transform](r, id); err != nil {
		t.Fatal(err)
	}
	if _, ok := ecs.GetComponent[Transform](r, id); ok {
		t.Error("Transform should be removed")
	}
}

func TestDestroyEvictsFromPools(t *testing.T) {
	r, _ := newRegistry()
	released := 0
	var ids []ecs.EntityID
	for i := 0; i < 3; i++ {
		id := r.CreateEntity()
		ids = append(ids, id)
		s, _ := ecs.AddComponent[Spin](r, id)
		s.Speed = float64(i + 1)
		h, _ := ecs.AddComponent[Handle](r, id)
		h.released = &released
	}

	if err := r.DestroyEntity(ids[0]); err != nil {
		t.Fatal(err)
	}
	if released != 1 {
		t.Errorf("OnDestroy called %d times, want 1", released)
	}
	if _, ok := r.GetEntityByID(ids[0]); ok {
		t.Error("destroyed entity still found")
	}
	if err := r.DestroyEntity(ids[0]); !errors.Is(err, ecs.ErrEntityNotFound) {
		t.Errorf("second destroy: %v", err)
	}

	seen := map[ecs.EntityID]float64{}
	for id, s := range ecs.Pool[Spin](r) {
		seen[id] = s.Speed
	}
	if len(seen) != 2 || seen[ids[1]] != 2 || seen[ids[2]] != 3 {
		t.Fatalf("pool after destroy = %v", seen)
	}
}

func TestUpdate(t *testing.T) {
	r, _ := newRegistry()
	id := r.CreateEntity()
	s, _ := ecs.AddComponent[Spin](r, id)
	s.Speed = 90
	ecs.AddComponent[Transform](r, id)

	r.Update(0.5)
	r.Update(0.5)
	if s.Angle != 90 {
		t.Errorf("Angle = %v, want 90", s.Angle)
	}
}

func TestPoolStopsEarly(t *testing.T) {
	r, _ := newRegistry()
	for i := 0; i < 5; i++ {
		ecs.AddComponent[Transform](r, r.CreateEntity())
	}
	n := 0
	for range ecs.Pool[Transform](r) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iterated %d, want 2", n)
	}
	for range ecs.Pool[Spin](r) {
		t.Fatal("empty pool yielded")
	}
}

func BenchmarkPoolIteration(b *testing.B) {
	r, _ := newRegistry()
	for i := 0; i < 1000; i++ {
		ecs.AddComponent[Spin](r, r.CreateEntity())
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Update(1.0 / 60)
	}
}
