package atom

import (
	"strings"
	"unsafe"
)

// stringBox is the heap allocation a string atom points to. We box
// the string instead of storing its runtime header directly in the
// Word so that the atom stays a single pointer-sized value, matching
// every other handle-form atomizer.
type stringBox struct {
	s string
}

type stringAtomizer struct {
	magic Magic
}

// NewString returns an Atomizer[string]. Every Alloc clones the input
// (via strings.Clone, the same defensive copy balios's storeKey takes)
// so the atom's lifetime is independent of the caller's string, then
// boxes it — strings are never embeddable since their runtime
// representation is two words, not one.
func NewString(magic Magic) Atomizer[string] {
	return stringAtomizer{magic: magic}
}

func (s stringAtomizer) Alloc(v string) Word {
	box := &stringBox{s: strings.Clone(v)}
	w := Word(uintptr(unsafe.Pointer(box)))
	handleRegistry.Store(w, box)
	return w
}

func (s stringAtomizer) Load(a Word) string {
	return (*stringBox)(unsafe.Pointer(a)).s
}

// Dealloc drops the registry's reference to the box, the same
// GC-visible release handle.Dealloc performs.
func (s stringAtomizer) Dealloc(a Word) {
	handleRegistry.Delete(a)
}

func (s stringAtomizer) Magic() Magic { return s.magic }
