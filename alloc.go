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

// header is the record placed immediately in front of every live allocation.
//
// base and size name the span that was carved off the free list, not the
// user pointer: alignment padding can put the user pointer an arbitrary
// distance past base, and Free has to return the whole span.
type header struct {
	magic uint32
	base  xunsafe.Addr[byte]
	size  int
}

const headerSize = int(unsafe.Sizeof(header{}))

// heapMagic tags every live allocation: 'HEAP'.
const heapMagic = 0x48454150

// MinAlign is the effective minimum for nonzero alignment requests. An
// Alloc alignment below it is promoted up to it.
const MinAlign = 16

// Alloc returns a pointer to size bytes carved out of the heap, or nil if no
// free span is large enough.
//
// align must be zero or a power of two; zero means no guarantee beyond the
// natural word alignment, and any other value is promoted to at least
// [MinAlign]. A negative size, like a bad alignment, returns nil. A zero
// size returns a valid, non-nil pointer.
func (h *Heap) Alloc(size, align int) *byte {
	if size < 0 || align < 0 || (align != 0 && !layout.IsPow2(align)) {
		return nil
	}

	// The span must fit the allocation header in front of the user bytes,
	// and must be able to hold a free chunk header once it is released.
	size += headerSize
	if size < 0 {
		// Normalization overflowed; no span can be this large.
		return nil
	}
	size = max(size, chunkSize)
	size = layout.RoundUp(size, wordSize)

	if align > 0 {
		align = max(align, MinAlign)
		// Worst-case fit: rounding the user pointer up can consume at most
		// this much of the span.
		size += align
	}

	if size < 0 {
		// Normalization overflowed; no span can be this large.
		return nil
	}

	for ca := h.head; ca != 0; {
		k := ca.AssertValid()
		debug.Assert(k.len%wordSize == 0, "chunk %v length %#x not word aligned", ca, k.len)

		if k.len < size {
			ca = k.next
			continue
		}

		next := k.next
		h.unlink(k)

		eff := k.len
		if k.len > size+chunkSize {
			// More than a chunk header's worth left past the allocation:
			// split it off as a chunk of its own and put it back where k
			// sat.
			rest := makeChunk(ca.ByteAdd(size), k.len-size)
			if next != 0 {
				h.insertBefore(next.AssertValid(), rest)
			} else {
				h.pushTail(rest)
			}
			eff = size
		}
		// Otherwise the slack, at most one chunk header's worth, stays
		// with the allocation; eff records it for Free.

		span := xunsafe.Addr[byte](ca)
		user := span.ByteAdd(headerSize)
		if align > 0 {
			user = user.RoundUpTo(align)
		}

		hdr := xunsafe.ByteAdd[header](user.AssertValid(), -headerSize)
		hdr.magic = heapMagic
		hdr.base = span
		hdr.size = eff

		h.log("alloc", "%v+%#x -> %v", span, eff, user)
		h.check()
		return user.AssertValid()
	}

	h.log("alloc", "%#x: no chunk large enough", size)
	return nil
}
