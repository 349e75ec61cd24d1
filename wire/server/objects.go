package server

import "github.com/gogpu/wgcore/wire"

// maxKnownID bounds the ids a client may allocate.
const maxKnownID = 1 << 20

// known is one slot of a knownObjects table. An allocated slot that is not
// valid holds an error object: its creation failed and commands on it are
// dropped after the error was reported.
type known[T any] struct {
	obj       T
	serial    uint32
	valid     bool
	allocated bool
}

// knownObjects maps client ids of one object type to native objects.
type knownObjects[T any] struct {
	typ     wire.ObjectType
	entries []known[T]
}

func newKnownObjects[T any](typ wire.ObjectType) knownObjects[T] {
	return knownObjects[T]{typ: typ, entries: make([]known[T], 1)}
}

// allocate claims the slot for h. The returned pointer is valid until the
// next allocate.
func (k *knownObjects[T]) allocate(h wire.ObjectHandle) (*known[T], error) {
	if h.ID == 0 || h.ID >= maxKnownID {
		return nil, wire.ProtocolError("%v id %d out of range", k.typ, h.ID)
	}
	if int(h.ID) >= len(k.entries) {
		k.entries = append(k.entries, make([]known[T], int(h.ID)+1-len(k.entries))...)
	}
	e := &k.entries[h.ID]
	if e.allocated {
		return nil, wire.ProtocolError("%v id %d is already live", k.typ, h.ID)
	}
	*e = known[T]{serial: h.Serial, allocated: true}
	return e, nil
}

// get returns the live slot for id.
func (k *knownObjects[T]) get(id uint32) (*known[T], error) {
	if id == 0 || int(id) >= len(k.entries) || !k.entries[id].allocated {
		return nil, wire.ProtocolError("unknown %v id %d", k.typ, id)
	}
	return &k.entries[id], nil
}

// free releases the slot for id and returns what it held.
func (k *knownObjects[T]) free(id uint32) (known[T], error) {
	e, err := k.get(id)
	if err != nil {
		return known[T]{}, err
	}
	old := *e
	*e = known[T]{}
	return old, nil
}

// handle returns the wire handle of the live slot id.
func (k *knownObjects[T]) handle(id uint32) wire.ObjectHandle {
	return wire.ObjectHandle{ID: id, Serial: k.entries[id].serial}
}

// each calls fn for every live slot.
func (k *knownObjects[T]) each(fn func(id uint32, e *known[T])) {
	for id := range k.entries {
		if k.entries[id].allocated {
			fn(uint32(id), &k.entries[id])
		}
	}
}

// live returns the number of live slots.
func (k *knownObjects[T]) live() int {
	n := 0
	for i := range k.entries {
		if k.entries[i].allocated {
			n++
		}
	}
	return n
}
