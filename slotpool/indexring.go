// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package slotpool

import (
	"unsafe"

	"code.hybscloud.com/atomix"

	"code.hybscloud.com/fabric/wait"
)

// indexRingHeader is a cache-line-padded capacity/head/tail layout
// (spsc.go), adapted from a private Go-slice-backed ring to a
// header-plus-entries layout that can live inside a shared byte arena and
// be described by a layout descriptor. The Lamport discipline —
// producer caches the consumer's index, consumer caches the producer's —
// is unchanged; those cached indices live in indexRing, not in the
// shared header.
type indexRingHeader struct {
	_        [64]byte
	capacity atomix.Uint32
	_        [60]byte
	head     atomix.Uint32 // producer writes here (Release)
	_        [60]byte
	tail     atomix.Uint32 // consumer writes here (Release)
	_        [60]byte
}

const indexRingHeaderSize = int(64 + 4 + 60 + 4 + 60 + 4 + 60)

// indexRing is a fixed-capacity SPSC queue of 32-bit indices.
type indexRing struct {
	hdr        *indexRingHeader
	entries    []uint32
	mask       uint32
	cachedHead uint32 // consumer's cached view of producer's head
	cachedTail uint32 // producer's cached view of consumer's tail
}

func bindIndexRing(buf []byte, capacity uint32) *indexRing {
	hdr := (*indexRingHeader)(unsafe.Pointer(unsafe.SliceData(buf)))
	entries := unsafe.Slice((*uint32)(unsafe.Pointer(unsafe.SliceData(buf[indexRingHeaderSize:]))), capacity)
	return &indexRing{hdr: hdr, entries: entries, mask: capacity - 1}
}

func indexRingByteSize(capacity uint32) int {
	return indexRingHeaderSize + int(capacity)*4
}

// push attempts to enqueue idx (producer side). Mirrors SPSC.Enqueue.
func (r *indexRing) push(idx uint32) bool {
	tail := r.hdr.head.LoadRelaxed() // "head" here is the producer index
	if tail-r.cachedTail > r.mask {
		r.cachedTail = r.hdr.tail.LoadAcquire()
		if tail-r.cachedTail > r.mask {
			return false
		}
	}
	r.entries[tail&r.mask] = idx
	r.hdr.head.StoreRelease(tail + 1)
	wait.WakeAll(&r.hdr.head)
	return true
}

// pop attempts to dequeue an index (consumer side). Mirrors SPSC.Dequeue.
func (r *indexRing) pop() (uint32, bool) {
	head := r.hdr.tail.LoadRelaxed() // "tail" here is the consumer index
	if head >= r.cachedHead {
		r.cachedHead = r.hdr.head.LoadAcquire()
		if head >= r.cachedHead {
			return 0, false
		}
	}
	idx := r.entries[head&r.mask]
	r.hdr.tail.StoreRelease(head + 1)
	wait.WakeAll(&r.hdr.tail)
	return idx, true
}

// fillSequential initializes the ring with 0, 1, ..., n-1 and sets the
// producer index to n, used once at slot-pool construction for the free
// ring.
func (r *indexRing) fillSequential(n uint32) {
	for i := uint32(0); i < n; i++ {
		r.entries[i&r.mask] = i
	}
	r.hdr.head.StoreRelaxed(n)
	r.hdr.tail.StoreRelaxed(0)
}

func (r *indexRing) waitForHeadChange() { wait.WaitForChange(&r.hdr.head) }
func (r *indexRing) waitForTailChange() { wait.WaitForChange(&r.hdr.tail) }
