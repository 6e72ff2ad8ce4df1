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

package kheap

import (
	"unsafe"

	"buf.build/go/kheap/internal/debug"
	"buf.build/go/kheap/internal/xunsafe"
	"buf.build/go/kheap/internal/xunsafe/layout"
)

// wordSize is the granularity of everything the allocator hands out: span
// lengths are multiples of it and span bases are aligned to it.
const wordSize = int(unsafe.Sizeof(uintptr(0)))

// Heap is a first-fit allocator over a single contiguous region.
//
// A Heap must not be copied after first use, and calls on it must be
// externally synchronized. See the package documentation.
type Heap struct {
	_ xunsafe.NoCopy

	base xunsafe.Addr[byte]
	size int

	// The free list, threaded through the spans themselves in strictly
	// ascending address order. Zero means none.
	head, tail xunsafe.Addr[chunk]

	// Pins a slice-backed region for the GC. Nil for NewRange regions.
	region []byte
}

// New creates a heap that manages region.
//
// The usable range is region rounded inward to pointer alignment. Panics if
// fewer than a free chunk header's worth of bytes remain; anything the heap
// could not satisfy a single allocation from is a programmer error.
func New(region []byte) *Heap {
	h := NewRange(unsafe.Pointer(unsafe.SliceData(region)), len(region))
	h.region = region
	return h
}

// NewRange is like [New], for memory that does not come from a slice: an
// mmap'd segment, a device mapping, or memory carved out by a linker script.
//
// The caller is responsible for keeping the region valid for the lifetime of
// the heap.
func NewRange(base unsafe.Pointer, size int) *Heap {
	b := xunsafe.AddrOf((*byte)(base))
	pad := b.Padding(wordSize)
	b = b.ByteAdd(pad)
	size = layout.RoundDown(size-pad, wordSize)
	if size < chunkSize {
		panic("kheap: region too small")
	}

	h := &Heap{base: b, size: size}
	h.insertFree(makeChunk(xunsafe.Addr[chunk](b), size))

	h.log("init", "%v+%#x", h.base, h.size)
	h.check()
	return h
}

// Base returns the address of the first managed byte.
func (h *Heap) Base() uintptr { return uintptr(h.base) }

// Size returns the number of managed bytes.
func (h *Heap) Size() int { return h.size }

func (h *Heap) log(op, format string, args ...any) {
	debug.Log([]any{"%p %v+%#x", h, h.base, h.size}, op, format, args...)
}
