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

// Stats is a point-in-time summary of a heap's bookkeeping. Every byte of
// the region is either free or part of a live span, so Free+Live == Region
// always holds.
type Stats struct {
	Region     int // managed bytes
	Free       int // bytes on the free list, chunk headers included
	Live       int // bytes in live spans, headers and padding included
	FreeChunks int // entries on the free list
}

// Stats walks the free list and summarizes it. Like every other operation,
// it must be externally synchronized against concurrent heap calls.
func (h *Heap) Stats() Stats {
	s := Stats{Region: h.size}
	for ca := h.head; ca != 0; {
		c := ca.AssertValid()
		s.Free += c.len
		s.FreeChunks++
		ca = c.next
	}
	s.Live = s.Region - s.Free
	return s
}
