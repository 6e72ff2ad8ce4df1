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
)

// chunk is the header overlaid on the first bytes of every free span.
//
// The linkage is intrusive: the list node lives inside the free memory it
// tracks. Fields are raw addresses rather than pointers so that no write
// barriers fire when headers are stamped into the region.
type chunk struct {
	prev, next xunsafe.Addr[chunk]

	// Length of the whole span, this header included. Always a multiple of
	// wordSize and at least chunkSize.
	len int
}

const chunkSize = int(unsafe.Sizeof(chunk{}))

func (c *chunk) addr() xunsafe.Addr[chunk] { return xunsafe.AddrOf(c) }
func (c *chunk) end() xunsafe.Addr[chunk]  { return c.addr().ByteAdd(c.len) }

// makeChunk stamps a fresh chunk header over n bytes at p. Linkage is left
// for the list insertion to set.
func makeChunk(p xunsafe.Addr[chunk], n int) *chunk {
	debug.Assert(n%wordSize == 0, "chunk %v length %#x not word aligned", p, n)
	debug.Assert(n >= chunkSize, "chunk %v length %#x smaller than its header", p, n)

	c := p.AssertValid()
	c.len = n
	return c
}

// insertFree inserts a detached chunk into the free list, consuming it by
// merging with physically adjacent neighbors where possible. Returns the
// chunk c became part of.
func (h *Heap) insertFree(c *chunk) *chunk {
	h.log("insert", "%v+%#x", c.addr(), c.len)

	// Walk to the first chunk past c; c slots in right before it.
	var next *chunk
	for na := h.head; na != 0; {
		n := na.AssertValid()
		if c.addr() < na {
			debug.Assert(c.end() <= na, "chunk %v+%#x overlaps %v", c.addr(), c.len, na)
			next = n
			break
		}
		na = n.next
	}

	if next != nil {
		h.insertBefore(next, c)
	} else {
		h.pushTail(c)
	}

	// Merge with the previous chunk: extend it over c and drop c.
	if pa := c.prev; pa != 0 {
		p := pa.AssertValid()
		if p.end() == c.addr() {
			p.len += c.len
			h.unlink(c)
			c = p
		}
	}

	// Merge with the next chunk: extend c over it and drop it.
	if na := c.next; na != 0 {
		n := na.AssertValid()
		if c.end() == na {
			c.len += n.len
			h.unlink(n)
		}
	}

	return c
}

// insertBefore links c immediately before next, which must be on the list.
func (h *Heap) insertBefore(next, c *chunk) {
	c.next = next.addr()
	c.prev = next.prev
	next.prev = c.addr()
	if c.prev != 0 {
		c.prev.AssertValid().next = c.addr()
	} else {
		h.head = c.addr()
	}
}

// pushTail links c at the end of the list.
func (h *Heap) pushTail(c *chunk) {
	c.next = 0
	c.prev = h.tail
	if h.tail != 0 {
		h.tail.AssertValid().next = c.addr()
	} else {
		h.head = c.addr()
	}
	h.tail = c.addr()
}

// unlink removes c from the list and detaches its linkage.
func (h *Heap) unlink(c *chunk) {
	if c.prev != 0 {
		c.prev.AssertValid().next = c.next
	} else {
		h.head = c.next
	}
	if c.next != 0 {
		c.next.AssertValid().prev = c.prev
	} else {
		h.tail = c.prev
	}
	c.prev, c.next = 0, 0
}
