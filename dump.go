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
	"fmt"
	"io"
	"strings"

	"buf.build/go/kheap/internal/debug"
)

// Dump writes the heap's bounds and its free list to w, one chunk per line.
// Diagnostic only; state is untouched.
func (h *Heap) Dump(w io.Writer) {
	fmt.Fprintf(w, "heap: base %v, len %#x\n", h.base, h.size)
	fmt.Fprintf(w, "  free list:\n")
	for ca := h.head; ca != 0; {
		c := ca.AssertValid()
		fmt.Fprintf(w, "    base %v, end %v, len %#x\n", ca, c.end(), c.len)
		ca = c.next
	}
}

// String implements [fmt.Stringer] by rendering [Heap.Dump].
func (h *Heap) String() string {
	var b strings.Builder
	h.Dump(&b)
	return strings.TrimSuffix(b.String(), "\n")
}

// freeList lazily renders the free list on one line, for assertion messages
// and debug logs.
func (h *Heap) freeList() debug.Formatter {
	return func(s fmt.State) {
		for ca := h.head; ca != 0; {
			c := ca.AssertValid()
			fmt.Fprintf(s, " %v+%#x", ca, c.len)
			ca = c.next
		}
	}
}
