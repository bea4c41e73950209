package ecs

import (
	"fmt"
	"reflect"
)

// TypeID identifies a registered component type. IDs are dense and start at 1;
// 0 means unregistered.
type TypeID uint32

// Representation describes a registered component: its struct name and an ID
// for each exported field, in declaration order starting at 1.
type Representation struct {
	ID     TypeID
	Name   string
	Fields map[string]int
	Type   reflect.Type
}

// TypeRegistry maps Go types to component type IDs. It is built once at
// process start, before any Registry uses it, and is read-only afterwards.
type TypeRegistry struct {
	byType map[reflect.Type]TypeID
	reps   []Representation
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byType: make(map[reflect.Type]TypeID),
	}
}

// Register adds T to the registry and returns its ID. Registering the same
// type twice returns the existing ID. T must be a struct type.
func Register[T any](reg *TypeRegistry) TypeID {
	t := reflect.TypeFor[T]()
	if id, ok := reg.byType[t]; ok {
		return id
	}
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("ecs: component type %s is not a struct", t))
	}

	rep := Representation{
		ID:     TypeID(len(reg.reps) + 1),
		Name:   t.Name(),
		Fields: make(map[string]int),
		Type:   t,
	}
	for _, f := range reflect.VisibleFields(t) {
		if f.IsExported() && !f.Anonymous {
			rep.Fields[f.Name] = len(rep.Fields) + 1
		}
	}
	reg.byType[t] = rep.ID
	reg.reps = append(reg.reps, rep)
	return rep.ID
}

// TypeOf returns the ID of T, or false if T was never registered.
func TypeOf[T any](reg *TypeRegistry) (TypeID, bool) {
	id, ok := reg.byType[reflect.TypeFor[T]()]
	return id, ok
}

func (reg *TypeRegistry) Representation(id TypeID) (Representation, bool) {
	if id == 0 || int(id) > len(reg.reps) {
		return Representation{}, false
	}
	return reg.reps[id-1], true
}

func (reg *TypeRegistry) Len() int {
	return len(reg.reps)
}
