// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package xunsafe provides a more convenient interface for performing unsafe
// operations than Go's built-in package unsafe.
package xunsafe

import (
	"sync"
	"unsafe"

	"buf.build/go/kheap/internal/xunsafe/layout"
)

// NoCopy is a type that go vet will complain about having been moved.
//
// It does so by containing a (zero-length) array of [sync.Mutex], which vet's
// copylocks check treats as a lock.
type NoCopy [0]sync.Mutex

// Int is any integer type.
type Int = layout.Int

// Cast casts one pointer type to another.
func Cast[To, From any](p *From) *To {
	return (*To)(unsafe.Pointer(p))
}

// ByteAdd adds the given unscaled offset to p.
//
// It also throws in a cast for free.
//
// checkptr does not like the intermediate value this produces when the
// offset is negative, even though the result lands back inside the original
// allocation.
//
//go:nocheckptr
func ByteAdd[To any, P ~*E, E any, I Int](p P, n I) *To {
	return (*To)(unsafe.Pointer(uintptr(unsafe.Pointer(p)) + uintptr(n)))
}

// ByteLoad loads a value of the given type at the given byte offset.
func ByteLoad[To any, P ~*E, E any, I Int](p P, n I) To {
	return *ByteAdd[To](p, n)
}

// ByteStore stores a value of the given type at the given byte offset.
func ByteStore[To any, P ~*E, E any, I Int](p P, n I, v To) {
	*ByteAdd[To](p, n) = v
}

// Clear zeros n elements at p.
func Clear[P ~*E, E any, I Int](p P, n I) {
	clear(unsafe.Slice(p, n))
}
