// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mailbox implements the single-slot, coalescing SPSC channel:
// the consumer always observes the latest write, older writes are
// silently superseded and counted as coalesced.
package mailbox

import (
	"errors"
	"fmt"
	"unsafe"

	"code.hybscloud.com/atomix"

	"code.hybscloud.com/fabric/region"
)

// ErrInvalidCapacity is returned when a requested payload capacity is
// non-positive.
var ErrInvalidCapacity = errors.New("mailbox: invalid capacity")

// Envelope is the 8-byte metadata attached to the mailbox's latest value.
type Envelope struct {
	Tag   uint8
	Ver   uint8
	Flags uint16
}

// Outcome reports what a Send did.
type Outcome int

const (
	// Accepted indicates no prior unread value was overwritten.
	Accepted Outcome = iota
	// Coalesced indicates a prior unread value was overwritten.
	Coalesced
)

type header struct {
	_              [64]byte
	payloadCap     atomix.Uint32
	_              [60]byte
	writeSeq       atomix.Uint32 // producer-owned, release-incremented
	_              [60]byte
	readSeq        atomix.Uint32 // consumer-owned, release-stored
	_              [60]byte
	payloadLen     atomix.Uint32 // release-stored by producer before writeSeq
	packedEnvelope atomix.Uint32 // tag<<24 | ver<<16 | flags
	_              [56]byte
}

const headerSize = int(64 + 4 + 60 + 4 + 60 + 4 + 60 + 4 + 4 + 56)

// Mailbox is a single-slot coalescing SPSC channel.
type Mailbox struct {
	region *region.Region
	hdr    *header
	data   []byte
	cap    uint32
}

// New allocates a mailbox with the given payload capacity.
func New(payloadCapacity int) (*Mailbox, error) {
	if payloadCapacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	r, err := region.New(headerSize+payloadCapacity, 8, region.Zeroed)
	if err != nil {
		return nil, fmt.Errorf("mailbox: %w", err)
	}
	m := bind(r, uint32(payloadCapacity))
	m.hdr.payloadCap.StoreRelaxed(uint32(payloadCapacity))
	return m, nil
}

// FromLayout reconstructs a mailbox over caller-owned shared bytes.
func FromLayout(buf []byte) (*Mailbox, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: buffer too small for header", ErrInvalidCapacity)
	}
	r, err := region.Bind(buf, 8)
	if err != nil {
		return nil, err
	}
	hdr := (*header)(unsafe.Pointer(unsafe.SliceData(r.Bytes())))
	cap32 := hdr.payloadCap.LoadAcquire()
	return bind(r, cap32), nil
}

func bind(r *region.Region, cap32 uint32) *Mailbox {
	hdr := (*header)(unsafe.Pointer(unsafe.SliceData(r.Bytes())))
	data := r.Slice(headerSize, int(cap32))
	return &Mailbox{region: r, hdr: hdr, data: data, cap: cap32}
}

func packEnvelope(env Envelope) uint32 {
	return uint32(env.Tag)<<24 | uint32(env.Ver)<<16 | uint32(env.Flags)
}

func unpackEnvelope(packed uint32) Envelope {
	return Envelope{
		Tag:   uint8(packed >> 24),
		Ver:   uint8(packed >> 16),
		Flags: uint16(packed),
	}
}

// TrySend writes payload as the mailbox's new latest value. Never blocks
// and never drops: an unread prior value is simply overwritten and
// reported Coalesced.
func (m *Mailbox) TrySend(env Envelope, payload []byte) (Outcome, error) {
	if uint32(len(payload)) > m.cap {
		return 0, fmt.Errorf("mailbox: payload length %d exceeds capacity %d", len(payload), m.cap)
	}
	copy(m.data, payload)
	m.hdr.payloadLen.StoreRelease(uint32(len(payload)))
	m.hdr.packedEnvelope.StoreRelease(packEnvelope(env))

	writeSeq := m.hdr.writeSeq.LoadRelaxed() + 1
	m.hdr.writeSeq.StoreRelease(writeSeq)

	readSeq := m.hdr.readSeq.LoadAcquire()
	if writeSeq-readSeq > 1 {
		return Coalesced, nil
	}
	return Accepted, nil
}

// TakeLatest returns the most recent unread value, if any. The returned
// slice is a borrowed view, valid only until the next TrySend.
func (m *Mailbox) TakeLatest() (env Envelope, payload []byte, ok bool) {
	writeSeq := m.hdr.writeSeq.LoadAcquire()
	readSeq := m.hdr.readSeq.LoadRelaxed()
	if writeSeq == readSeq {
		return Envelope{}, nil, false
	}
	length := m.hdr.payloadLen.LoadAcquire()
	env = unpackEnvelope(m.hdr.packedEnvelope.LoadAcquire())
	m.hdr.readSeq.StoreRelease(writeSeq)
	return env, m.data[:length:length], true
}

// Capacity returns the payload capacity in bytes.
func (m *Mailbox) Capacity() int { return int(m.cap) }

// Bytes returns the mailbox's full backing region (header + data), for
// layout export.
func (m *Mailbox) Bytes() []byte { return m.region.Bytes() }

// HeaderSize returns the fixed header size in bytes, for layout export.
func HeaderSize() int { return headerSize }

// Close releases the underlying region.
func (m *Mailbox) Close() error { return m.region.Close() }
