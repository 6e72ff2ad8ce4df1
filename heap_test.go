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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buf.build/go/kheap/internal/debug"
	"buf.build/go/kheap/internal/xunsafe"
	"buf.build/go/kheap/internal/xunsafe/layout"
)

// region returns an n-byte, word-aligned buffer for a heap to manage, so
// that tests which reason about exact byte counts are not thrown off by the
// inward rounding in NewRange.
func region(n int) []byte {
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice(xunsafe.Cast[byte](&words[0]), n)
}

type freeSpan struct {
	addr xunsafe.Addr[chunk]
	len  int
}

// chunks snapshots the free list.
func chunks(h *Heap) []freeSpan {
	var out []freeSpan
	for ca := h.head; ca != 0; {
		c := ca.AssertValid()
		out = append(out, freeSpan{ca, c.len})
		ca = c.next
	}
	return out
}

// spanSize reads the span length recorded behind a live pointer.
func spanSize(p *byte) int {
	return xunsafe.ByteAdd[header](p, -headerSize).size
}

// checkList verifies the free list's structural invariants: strictly
// ascending, never adjacent, word-aligned lengths of at least a header,
// everything in bounds, linkage intact.
func checkList(t *testing.T, h *Heap) {
	t.Helper()

	base := xunsafe.Addr[chunk](h.base)
	end := base.ByteAdd(h.size)

	var prev *chunk
	for ca := h.head; ca != 0; {
		c := ca.AssertValid()

		require.Zero(t, c.len%wordSize, "chunk %v length %#x not word aligned", ca, c.len)
		require.GreaterOrEqual(t, c.len, chunkSize, "chunk %v shorter than its header", ca)
		require.True(t, ca >= base && c.end() <= end, "chunk %v+%#x out of bounds", ca, c.len)

		if prev == nil {
			require.Zero(t, c.prev, "head %v has a predecessor", ca)
		} else {
			require.Equal(t, prev.addr(), c.prev, "broken back link at %v", ca)
			require.LessOrEqual(t, prev.end(), ca, "chunk %v overlaps its predecessor", ca)
			require.NotEqual(t, prev.end(), ca, "unmerged neighbors at %v", ca)
		}

		prev = c
		ca = c.next
	}

	if prev == nil {
		require.Zero(t, h.tail)
	} else {
		require.Equal(t, prev.addr(), h.tail)
	}
}

func TestInit(t *testing.T) {
	t.Parallel()

	h := New(region(1 << 20))
	require.Equal(t, 1<<20, h.Size())
	require.Zero(t, h.Base()%uintptr(wordSize))

	fl := chunks(h)
	require.Len(t, fl, 1)
	assert.Equal(t, xunsafe.Addr[chunk](h.base), fl[0].addr)
	assert.Equal(t, h.Size(), fl[0].len)
	checkList(t, h)
}

func TestInitUnaligned(t *testing.T) {
	t.Parallel()

	// A plain byte slice makes no alignment promises; the heap has to round
	// the region inward on its own.
	h := New(make([]byte, 4097))
	assert.Zero(t, h.Base()%uintptr(wordSize))
	assert.Zero(t, h.Size()%wordSize)
	assert.LessOrEqual(t, h.Size(), 4097)

	fl := chunks(h)
	require.Len(t, fl, 1)
	assert.Equal(t, h.Size(), fl[0].len)
}

func TestInitTooSmall(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { New(region(8)) })
}

func TestSimpleSequence(t *testing.T) {
	t.Parallel()
	defer debug.WithTesting(t)()

	h := New(region(1 << 20))

	sizes := []int{8, 32, 7, 0, 98713, 16}
	ptrs := make([]*byte, len(sizes))
	for i, n := range sizes {
		ptrs[i] = h.Alloc(n, 0)
		require.NotNil(t, ptrs[i], "alloc %d (%d bytes)", i, n)
		checkList(t, h)
	}

	// Every byte of the region is either free or inside a live span.
	live := 0
	for _, p := range ptrs {
		live += spanSize(p)
	}
	s := h.Stats()
	assert.Equal(t, h.Size(), s.Free+live)
	assert.Equal(t, live, s.Live)

	for _, i := range []int{5, 1, 3, 0, 4, 2} {
		h.Free(ptrs[i])
		checkList(t, h)
	}

	fl := chunks(h)
	require.Len(t, fl, 1)
	assert.Equal(t, xunsafe.Addr[chunk](h.base), fl[0].addr)
	assert.Equal(t, h.Size(), fl[0].len)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	h := New(region(1 << 16))
	p := h.Alloc(100, 0)
	require.NotNil(t, p)
	h.Free(p)

	fl := chunks(h)
	require.Len(t, fl, 1)
	assert.Equal(t, h.Size(), fl[0].len)
}

func TestFreeNil(t *testing.T) {
	t.Parallel()

	h := New(region(1 << 16))
	before := h.Stats()
	h.Free(nil)
	assert.Equal(t, before, h.Stats())
}

func TestBadArguments(t *testing.T) {
	t.Parallel()

	h := New(region(1 << 16))
	assert.Nil(t, h.Alloc(8, 3))
	assert.Nil(t, h.Alloc(8, 24))
	assert.Nil(t, h.Alloc(8, -8))
	assert.Nil(t, h.Alloc(-1, 0))

	// Failed calls leave the heap untouched.
	fl := chunks(h)
	require.Len(t, fl, 1)
	assert.Equal(t, h.Size(), fl[0].len)
}

func TestZeroSize(t *testing.T) {
	t.Parallel()

	h := New(region(1 << 16))
	p := h.Alloc(0, 0)
	require.NotNil(t, p)
	assert.GreaterOrEqual(t, spanSize(p), chunkSize)

	h.Free(p)
	require.Len(t, chunks(h), 1)
}

func TestAlignment(t *testing.T) {
	t.Parallel()

	h := New(region(1 << 20))
	for _, a := range []int{1, 2, 4, 8, 16, 32, 64, 128} {
		p := h.Alloc(64, a)
		require.NotNil(t, p, "align %d", a)
		assert.Zero(t, int(xunsafe.AddrOf(p))%max(a, MinAlign), "align %d", a)

		// The user pointer, its header, and the requested bytes all fit
		// inside the recorded span.
		hdr := xunsafe.ByteAdd[header](p, -headerSize)
		user := xunsafe.AddrOf(p)
		assert.GreaterOrEqual(t, user.ByteSub(hdr.base), headerSize)
		assert.LessOrEqual(t, user.ByteSub(hdr.base)+64, hdr.size)

		h.Free(p)
		require.Len(t, chunks(h), 1, "align %d", a)
	}
}

func TestAlignmentBoundary(t *testing.T) {
	t.Parallel()

	h := New(region(1 << 16))
	p := h.Alloc(1, 128)
	require.NotNil(t, p)
	assert.Zero(t, int(xunsafe.AddrOf(p))%128)

	h.Free(p)
	fl := chunks(h)
	require.Len(t, fl, 1)
	assert.Equal(t, h.Size(), fl[0].len)
}

func TestSplit(t *testing.T) {
	t.Parallel()

	h := New(region(1024))
	p := h.Alloc(64, 0)
	require.NotNil(t, p)

	// 64 + headerSize rounds to a span smaller than the region by more than
	// a chunk header, so the remainder must come back as a free chunk.
	fl := chunks(h)
	require.Len(t, fl, 1)
	assert.Equal(t, 1024-spanSize(p), fl[0].len)
	assert.Equal(t, xunsafe.Addr[chunk](h.base).ByteAdd(spanSize(p)), fl[0].addr)

	h.Free(p)
	require.Len(t, chunks(h), 1)
}

func TestSplitVersusConsume(t *testing.T) {
	t.Parallel()

	// The normalized span for a 64-byte request is 64+headerSize. Sizing the
	// region so the leftover is exactly one chunk header means the leftover
	// is not split off (Alloc splits only when more than a chunk header
	// remains), and must stay attached to the allocation.
	span := 64 + headerSize
	h := New(region(span + chunkSize))

	p := h.Alloc(64, 0)
	require.NotNil(t, p)
	assert.Empty(t, chunks(h))
	assert.Equal(t, span+chunkSize, spanSize(p))

	assert.Nil(t, h.Alloc(1, 0))

	h.Free(p)
	fl := chunks(h)
	require.Len(t, fl, 1)
	assert.Equal(t, h.Size(), fl[0].len)
}

func TestFreeOrderIndependence(t *testing.T) {
	t.Parallel()

	sizes := []int{40, 100, 7, 512}
	for _, perm := range permutations(len(sizes)) {
		h := New(region(8 << 10))

		ptrs := make([]*byte, len(sizes))
		for i, n := range sizes {
			ptrs[i] = h.Alloc(n, 0)
			require.NotNil(t, ptrs[i])
		}

		for _, i := range perm {
			h.Free(ptrs[i])
			checkList(t, h)
		}

		fl := chunks(h)
		require.Len(t, fl, 1, "free order %v", perm)
		assert.Equal(t, h.Size(), fl[0].len, "free order %v", perm)
	}
}

func TestExhaustion(t *testing.T) {
	t.Parallel()

	h := New(region(4096))

	var ptrs []*byte
	for {
		p := h.Alloc(1, 0)
		if p == nil {
			break
		}
		ptrs = append(ptrs, p)
	}
	require.NotEmpty(t, ptrs)

	// Nothing big enough remains for even a one-byte allocation.
	for _, fl := range chunks(h) {
		assert.Less(t, fl.len, layout.RoundUp(max(1+headerSize, chunkSize), wordSize))
	}

	for i := len(ptrs) - 1; i >= 0; i-- {
		h.Free(ptrs[i])
	}

	fl := chunks(h)
	require.Len(t, fl, 1)
	assert.Equal(t, h.Size(), fl[0].len)
}

func TestDump(t *testing.T) {
	t.Parallel()

	h := New(region(256))
	s := h.String()
	assert.Contains(t, s, "free list")
	assert.Contains(t, s, "len 0x100")
}

// permutations returns every ordering of [0, n).
func permutations(n int) [][]int {
	var out [][]int
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}

	var rec func(k int)
	rec = func(k int) {
		if k == n {
			out = append(out, append([]int(nil), perm...))
			return
		}
		for i := k; i < n; i++ {
			perm[k], perm[i] = perm[i], perm[k]
			rec(k + 1)
			perm[k], perm[i] = perm[i], perm[k]
		}
	}
	rec(0)
	return out
}
