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
	"buf.build/go/kheap/internal/debug"
	"buf.build/go/kheap/internal/xunsafe"
)

// check walks the free list and asserts its structural invariants: strictly
// ascending addresses, no physically adjacent chunks, word-aligned lengths
// no smaller than a header, everything in bounds, and intact linkage.
//
// Runs after every mutation in debug builds; compiles to nothing otherwise.
func (h *Heap) check() {
	if !debug.Enabled {
		return
	}

	end := xunsafe.Addr[chunk](h.base.ByteAdd(h.size))
	var prev *chunk
	for ca := h.head; ca != 0; {
		c := ca.AssertValid()

		debug.Assert(c.len%wordSize == 0, "chunk %v length %#x not word aligned", ca, c.len)
		debug.Assert(c.len >= chunkSize, "chunk %v length %#x smaller than its header", ca, c.len)
		debug.Assert(ca >= xunsafe.Addr[chunk](h.base) && c.end() <= end,
			"chunk %v+%#x outside of %v+%#x", ca, c.len, h.base, h.size)

		if prev == nil {
			debug.Assert(c.prev == 0, "head %v has a predecessor: %v", ca, h.freeList())
		} else {
			debug.Assert(c.prev == prev.addr(), "broken back link at %v: %v", ca, h.freeList())
			debug.Assert(prev.end() <= ca, "chunk %v overlaps its predecessor: %v", ca, h.freeList())
			debug.Assert(prev.end() != ca, "unmerged neighbors at %v: %v", ca, h.freeList())
		}

		prev = c
		ca = c.next
	}

	if prev == nil {
		debug.Assert(h.tail == 0, "tail %v set on an empty list", h.tail)
	} else {
		debug.Assert(h.tail == prev.addr(), "tail %v does not terminate the list: %v", h.tail, h.freeList())
	}
}
