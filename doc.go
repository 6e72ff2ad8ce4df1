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

// Package kheap implements a first-fit, coalescing, free-list allocator over
// a single contiguous region of memory.
//
// A [Heap] manages every byte of a region handed to it once, at
// construction, and never grows or relocates it. Free spans are kept on an
// address-ordered doubly linked list whose nodes live inside the spans
// themselves; freeing a block eagerly merges it with physically adjacent
// neighbors, so no two free spans are ever left side by side. Each live block
// carries a small header behind the returned pointer that records the span
// it was carved from, which is how [Heap.Free] recovers the full span no
// matter how much alignment padding sits between the two.
//
// This is the allocator design used by small kernels for their early heap:
// the region is typically the gap between the end of the loaded image and
// the end of usable RAM. In Go the region is simply whatever memory the
// caller hands to [New] or [NewRange] — a byte slice, an mmap'd segment, or
// a device mapping.
//
// # Concurrency
//
// A Heap is not internally synchronized. Callers must ensure that calls on
// the same Heap are mutually excluded; wrapping every call in a mutex is the
// straightforward way to get that.
//
// # Debugging
//
// Building with the debug tag turns on structural verification of the free
// list after every operation, plus tracing of every allocator call. Misuse
// that the release build leaves undefined — double frees, freeing foreign
// pointers, out-of-bounds writes that smash a header — panics instead.
package kheap
