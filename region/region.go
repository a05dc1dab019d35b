// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package region allocates the aligned, contiguous byte arenas that every
// transport primitive is built on top of.
//
// Native builds prefer an anonymous OS mapping (page aligned, never backed
// by a file, never touching the allocator once mapped). When the mapping
// cannot satisfy the requested alignment, Region falls back to an aligned
// heap allocation.
package region

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Init selects how a freshly allocated Region's bytes are initialized.
type Init int

const (
	// Zeroed zeroes the entire region. Headers and index rings require this:
	// their zero value is a valid empty state.
	Zeroed Init = iota
	// Uninitialized leaves the bytes as returned by the backing allocator.
	// Producers of raw slot bytes always overwrite before anyone reads.
	Uninitialized
)

// ErrInvalidAlignment is returned when alignment is zero or not a power of two.
var ErrInvalidAlignment = errors.New("fabric/region: alignment must be a power of two")

// ErrAllocationFailed is returned when both the mmap and heap-fallback paths fail.
var ErrAllocationFailed = errors.New("fabric/region: allocation failed")

// Region owns a contiguous byte arena, optionally backed by an anonymous
// OS mapping.
type Region struct {
	buf     []byte
	mapped  []byte // non-nil when backed by unix.Mmap; must be munmap'd
	align   int
	bound   bool // true when Bind wraps caller-owned bytes; Close is a no-op
}

// New allocates a region of len bytes aligned to align (a power of two, >= 8).
func New(length int, align int, init Init) (*Region, error) {
	if align <= 0 || align&(align-1) != 0 {
		return nil, ErrInvalidAlignment
	}
	if length < 0 {
		return nil, fmt.Errorf("%w: negative length", ErrAllocationFailed)
	}

	if mapped, ok := mmapBacked(length, align, init); ok {
		return &Region{buf: mapped, mapped: mapped, align: align}, nil
	}

	return heapBacked(length, align, init)
}

// Bind wraps a caller-owned byte slice as a Region view without allocating.
// Used by the layout package to reconstruct primitives over shared memory
// a peer already mapped.
func Bind(buf []byte, align int) (*Region, error) {
	if align <= 0 || align&(align-1) != 0 {
		return nil, ErrInvalidAlignment
	}
	return &Region{buf: buf, align: align, bound: true}, nil
}

func mmapBacked(length, align int, init Init) ([]byte, bool) {
	if length == 0 {
		return nil, false
	}
	mapped, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, false
	}
	base := uintptrOf(mapped)
	if base%uintptr(align) != 0 {
		_ = unix.Munmap(mapped)
		return nil, false
	}
	if init == Zeroed {
		clear(mapped)
	}
	return mapped, true
}

func heapBacked(length, align int, init Init) (*Region, error) {
	// Over-allocate by align bytes so an aligned window always exists,
	// then slice down to the requested length from the aligned offset.
	raw := make([]byte, length+align)
	base := uintptrOf(raw)
	offset := (align - int(base%uintptr(align))) % align
	buf := raw[offset : offset+length : offset+length]
	if init == Uninitialized {
		// make() already zeroes; nothing further required. The distinction
		// only matters for the mmap path, where the kernel may hand back
		// previously-mapped zero pages regardless.
	}
	return &Region{buf: buf, align: align}, nil
}

// Len returns the number of bytes managed by the region.
func (r *Region) Len() int { return len(r.buf) }

// Alignment returns the alignment the region was allocated with.
func (r *Region) Alignment() int { return r.align }

// Bytes returns the full backing slice.
func (r *Region) Bytes() []byte { return r.buf }

// Slice returns a sub-view [off, off+length) of the region.
func (r *Region) Slice(off, length int) []byte {
	return r.buf[off : off+length : off+length]
}

// Close releases the backing mapping, if any. Closing a Region produced by
// Bind is a no-op: the caller that owns the underlying bytes owns the
// mapping's lifetime.
func (r *Region) Close() error {
	if r.bound || r.mapped == nil {
		return nil
	}
	err := unix.Munmap(r.mapped)
	r.mapped = nil
	return err
}
