// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package slotpool decouples bulk payload lifetime from message ordering:
// N fixed-size, 64-byte-aligned slots plus a pair of SPSC index rings
// (free, ready) that hand slot ownership back and forth between producer
// and consumer. No slot is ever implicitly reused.
package slotpool

import (
	"errors"
	"fmt"
	"math/bits"
	"unsafe"

	"code.hybscloud.com/atomix"

	"code.hybscloud.com/fabric/region"
)

// SlotAlignment is the fixed alignment of every slot's byte offset,
// matching the rest of the fabric's cache-line pad convention.
const SlotAlignment = 64

// ErrInvalidCapacity is returned when a Config's slot_count or slot_size
// fails the pool's minimum/alignment constraints.
var ErrInvalidCapacity = errors.New("slotpool: invalid capacity")

// poolHeader records the pool's shape so a peer can reconstruct a
// SlotPool from raw bytes via FromLayout without being told Config
// out of band.
type poolHeader struct {
	_         [64]byte
	slotCount atomix.Uint32
	slotSize  atomix.Uint32
	_         [56]byte
}

const poolHeaderSize = int(64 + 4 + 4 + 56)

// Push reports the outcome of PushReady.
type Push int

const (
	// PushOk indicates the index was published to the ready ring.
	PushOk Push = iota
	// PushWouldBlock indicates the ready ring is full; rare, since its
	// capacity equals the slot count.
	PushWouldBlock
)

// Config specifies a slot pool's shape.
type Config struct {
	SlotCount uint32
	SlotSize  int
}

// SlotPool owns the slots region plus the free and ready index rings.
type SlotPool struct {
	region *region.Region
	hdr    *poolHeader
	slots  []byte
	free   *indexRing
	ready  *indexRing
	cfg    Config
}

// shape computes the normalized slot size, ring capacity, and the byte
// extents of the slots/free-ring/ready-ring regions for cfg. Shared by
// New, FromLayout, and ByteSize so the layout math only lives in one
// place.
func shape(cfg Config) (slotSize int, ringCapacity uint32, slotsLen, ringLen int) {
	ringCapacity = uint32(1) << bits.Len32(cfg.SlotCount-1)
	if ringCapacity < cfg.SlotCount {
		ringCapacity <<= 1
	}
	slotSize = alignUp(cfg.SlotSize, SlotAlignment)
	slotsLen = int(cfg.SlotCount) * slotSize
	ringLen = indexRingByteSize(ringCapacity)
	return
}

func validate(cfg Config) error {
	if cfg.SlotCount < 2 || cfg.SlotCount&(cfg.SlotCount-1) != 0 {
		return fmt.Errorf("%w: slot_count must be a power of two >= 2", ErrInvalidCapacity)
	}
	if cfg.SlotSize <= 0 {
		return fmt.Errorf("%w: slot_size must be positive", ErrInvalidCapacity)
	}
	return nil
}

// ByteSize returns the total byte length New(cfg) would allocate
// (header + slots + both index rings), for layout export ahead of
// construction.
func ByteSize(cfg Config) (int, error) {
	if err := validate(cfg); err != nil {
		return 0, err
	}
	_, _, slotsLen, ringLen := shape(cfg)
	return poolHeaderSize + slotsLen + 2*ringLen, nil
}

// New allocates a slot pool per cfg: the free ring starts pre-filled
// with every index, the ready ring starts empty. Slot bytes themselves
// are producer-owned and always overwritten before a consumer reads
// them, but the backing region is zeroed at allocation time since the
// pool header and index rings require a zero initial state.
func New(cfg Config) (*SlotPool, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	slotSize, ringCapacity, slotsLen, ringLen := shape(cfg)

	total := poolHeaderSize + slotsLen + 2*ringLen
	r, err := region.New(total, SlotAlignment, region.Zeroed)
	if err != nil {
		return nil, fmt.Errorf("slotpool: %w", err)
	}

	p := bind(r, Config{SlotCount: cfg.SlotCount, SlotSize: slotSize})
	p.hdr.slotCount.StoreRelaxed(cfg.SlotCount)
	p.hdr.slotSize.StoreRelaxed(uint32(slotSize))

	p.free.hdr.capacity.StoreRelaxed(ringCapacity)
	p.ready.hdr.capacity.StoreRelaxed(ringCapacity)
	p.free.fillSequential(cfg.SlotCount)

	return p, nil
}

// FromLayout reconstructs a slot pool over caller-owned shared bytes
// without allocating or re-initializing state, reading slot_count and
// slot_size back from the header New wrote.
func FromLayout(buf []byte) (*SlotPool, error) {
	if len(buf) < poolHeaderSize {
		return nil, fmt.Errorf("%w: buffer too small for header", ErrInvalidCapacity)
	}
	hdr := (*poolHeader)(unsafe.Pointer(unsafe.SliceData(buf)))
	cfg := Config{
		SlotCount: hdr.slotCount.LoadAcquire(),
		SlotSize:  int(hdr.slotSize.LoadAcquire()),
	}
	r, err := region.Bind(buf, SlotAlignment)
	if err != nil {
		return nil, err
	}
	return bind(r, cfg), nil
}

func bind(r *region.Region, cfg Config) *SlotPool {
	_, ringCapacity, slotsLen, ringLen := shape(cfg)
	hdr := (*poolHeader)(unsafe.Pointer(unsafe.SliceData(r.Bytes())))
	slots := r.Slice(poolHeaderSize, slotsLen)
	freeBuf := r.Slice(poolHeaderSize+slotsLen, ringLen)
	readyBuf := r.Slice(poolHeaderSize+slotsLen+ringLen, ringLen)
	free := bindIndexRing(freeBuf, ringCapacity)
	ready := bindIndexRing(readyBuf, ringCapacity)
	return &SlotPool{region: r, hdr: hdr, slots: slots, free: free, ready: ready, cfg: cfg}
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// Bytes returns the pool's full backing region, for layout export.
func (p *SlotPool) Bytes() []byte { return p.region.Bytes() }

// HeaderSize returns the fixed pool-header size in bytes (distinct from
// the index rings' own headers), for layout export.
func HeaderSize() int { return poolHeaderSize }

// TryAcquireFree pops the free ring (producer side). Returns ok=false
// when no free slot is available.
func (p *SlotPool) TryAcquireFree() (idx uint32, ok bool) {
	return p.free.pop()
}

// SlotBytes returns the byte range for the given slot index.
func (p *SlotPool) SlotBytes(idx uint32) []byte {
	start := int(idx) * p.cfg.SlotSize
	return p.slots[start : start+p.cfg.SlotSize : start+p.cfg.SlotSize]
}

// PushReady publishes idx to the ready ring once the producer has
// finished writing its slot.
func (p *SlotPool) PushReady(idx uint32) Push {
	if p.ready.push(idx) {
		return PushOk
	}
	return PushWouldBlock
}

// PopReady pops the ready ring (consumer side). The caller must call
// ReleaseFree once done reading the slot.
func (p *SlotPool) PopReady() (idx uint32, ok bool) {
	return p.ready.pop()
}

// ReleaseFree returns idx to the free ring. Releasing an index that is
// already free is a programming error.
func (p *SlotPool) ReleaseFree(idx uint32) {
	if !p.free.push(idx) {
		panic("slotpool: free ring unexpectedly full on release")
	}
}

// WaitForFreeSlot parks until a slot is released back to the free ring
// (its head changes), used by producers that prefer to sleep instead of
// spin while TryAcquireFree returns none.
func (p *SlotPool) WaitForFreeSlot() { p.free.waitForHeadChange() }

// WaitForReadyDrain parks until the ready ring's tail (consumer side)
// changes, used by producers backed off on PushWouldBlock.
func (p *SlotPool) WaitForReadyDrain() { p.ready.waitForTailChange() }

// SlotCount returns the configured number of slots.
func (p *SlotPool) SlotCount() uint32 { return p.cfg.SlotCount }

// SlotSize returns the (alignment-rounded) size of each slot in bytes.
func (p *SlotPool) SlotSize() int { return p.cfg.SlotSize }

// Close releases the underlying region.
func (p *SlotPool) Close() error { return p.region.Close() }
