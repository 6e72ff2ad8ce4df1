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

// Free returns a block obtained from [Heap.Alloc] to the heap. Passing nil
// is a no-op.
//
// The whole span the block was carved from goes back on the free list and
// merges with any adjacent free neighbors. Freeing a pointer that did not
// come from Alloc on this heap, or freeing one twice, is undefined; debug
// builds panic on it when the header no longer checks out.
func (h *Heap) Free(p *byte) {
	if p == nil {
		return
	}

	hdr := xunsafe.ByteAdd[header](p, -headerSize)
	debug.Assert(hdr.magic == heapMagic,
		"bad magic %#x at %v: corrupted heap or double free", hdr.magic, xunsafe.AddrOf(p))

	h.log("free", "%v -> %v+%#x", xunsafe.AddrOf(p), hdr.base, hdr.size)
	h.insertFree(makeChunk(xunsafe.Addr[chunk](hdr.base), hdr.size))
	h.check()
}
