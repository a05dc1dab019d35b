// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package msgring implements the variable-length, single-producer
// single-consumer message ring: the fabric's workhorse for streaming
// records (commands, reports, events) through a fixed byte arena with
// sentinel-based wraparound.
package msgring

import (
	"encoding/binary"
	"errors"
	"fmt"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"

	"code.hybscloud.com/fabric/region"
	"code.hybscloud.com/fabric/wait"
)

const (
	// wrapSentinel is the reserved total_len value marking a wrap of the
	// data region; it is never a legal record length.
	wrapSentinel = 0xFFFF_FFFF

	envelopeSize = 8 // total_len(4) + tag(1) + ver(1) + flags(2)

	minCapacity = 64
	maxCapacity = 0xFFFF_FFFE

	headerAlign = 8
)

// ErrInvalidCapacity is returned when a requested capacity violates the
// ring's minimum/alignment constraints.
var ErrInvalidCapacity = errors.New("msgring: invalid capacity")

// ErrCorrupt reports a fatal invariant violation observed by a peek: a
// non-sentinel length out of range. This is always a producer bug, never
// silently skipped.
var ErrCorrupt = errors.New("msgring: corrupt record")

// Envelope is the 8-byte metadata every record carries.
type Envelope struct {
	Tag   uint8
	Ver   uint8
	Flags uint16
}

// header is a cache-line-padded atomic field layout
// (spsc.go's head/tail pair), generalized from a private Go slice index
// to byte offsets inside a shared data region.
type header struct {
	_        [64]byte
	capacity atomix.Uint32
	magic    atomix.Uint32
	_        [56]byte
	head     atomix.Uint32 // producer writes here (Release)
	_        [60]byte
	tail     atomix.Uint32 // consumer writes here (Release)
	_        [60]byte
}

const headerSize = int(64 + 4 + 4 + 56 + 4 + 60 + 4 + 60)

// MsgRing is a variable-length SPSC record stream.
type MsgRing struct {
	region *region.Region
	hdr    *header
	data   []byte
	cap    uint32

	defaultEnv Envelope

	// pendingOffset/pendingLen track an outstanding, uncommitted grant.
	// Non-zero pendingLen means Commit has not yet been called.
	pendingOffset uint32
	pendingLen    uint32
	granted       bool
}

// New allocates a new message ring with the given data-region capacity
// (rounded up to 8, bounded to [64, u32::MAX-1]) and a default envelope
// used when a grant's envelope is never overridden.
func New(capacity int, magic uint32, defaultEnv Envelope) (*MsgRing, error) {
	cap32, err := normalizeCapacity(capacity)
	if err != nil {
		return nil, err
	}

	r, err := region.New(headerSize+int(cap32), headerAlign, region.Zeroed)
	if err != nil {
		return nil, fmt.Errorf("msgring: %w", err)
	}
	ring := bind(r, cap32, defaultEnv)
	ring.hdr.capacity.StoreRelaxed(cap32)
	ring.hdr.magic.StoreRelaxed(magic)
	return ring, nil
}

// FromLayout reconstructs a ring over caller-owned shared bytes without
// allocating or re-initializing state, per the layout descriptor's "from
// layout" contract.
func FromLayout(buf []byte, defaultEnv Envelope) (*MsgRing, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: buffer too small for header", ErrInvalidCapacity)
	}
	r, err := region.Bind(buf, headerAlign)
	if err != nil {
		return nil, err
	}
	hdr := (*header)(ptrOf(r.Bytes()))
	cap32 := hdr.capacity.LoadAcquire()
	ring := bind(r, cap32, defaultEnv)
	return ring, nil
}

func bind(r *region.Region, cap32 uint32, defaultEnv Envelope) *MsgRing {
	hdr := (*header)(ptrOf(r.Bytes()))
	data := r.Slice(headerSize, int(cap32))
	return &MsgRing{
		region:     r,
		hdr:        hdr,
		data:       data,
		cap:        cap32,
		defaultEnv: defaultEnv,
	}
}

func normalizeCapacity(capacity int) (uint32, error) {
	if capacity <= 0 {
		return 0, ErrInvalidCapacity
	}
	c := alignUp(uint32(capacity), headerAlign)
	if c < minCapacity {
		c = minCapacity
	}
	if c > maxCapacity {
		return 0, ErrInvalidCapacity
	}
	return c, nil
}

func alignUp(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}

// Grant is a reservation returned by TryReserve. It must be committed
// before being discarded; an uncommitted grant is a bug (the ring head
// stays put and the next reservation overwrites the same bytes).
type Grant struct {
	ring    *MsgRing
	offset  uint32
	cap     int
	env     Envelope
	written int
}

// TryReserve reserves space for a record with the given payload length.
// Returns ErrWouldBlock (via iox) when there is no room.
func (m *MsgRing) TryReserve(payloadLen int) (*Grant, error) {
	if m.granted {
		return nil, errors.New("msgring: previous grant not committed")
	}
	total := envelopeSize + payloadLen
	if uint32(total) >= m.cap {
		return nil, iox.ErrWouldBlock
	}
	record := alignUp(uint32(total), headerAlign)

	head := m.hdr.head.LoadRelaxed()
	tail := m.hdr.tail.LoadAcquire()

	var offset uint32
	switch {
	case head >= tail:
		if m.cap-head >= record {
			offset = head
			newHead := head + record
			if newHead == m.cap {
				newHead = 0
			}
			if newHead == tail {
				return nil, iox.ErrWouldBlock
			}
		} else if m.cap-head >= 4 && tail > record {
			binary.LittleEndian.PutUint32(m.data[head:], wrapSentinel)
			for i := head + 4; i < alignUp(head+4, headerAlign); i++ {
				m.data[i] = 0
			}
			offset = 0
		} else {
			return nil, iox.ErrWouldBlock
		}
	default: // head < tail
		if record >= tail-head {
			return nil, iox.ErrWouldBlock
		}
		offset = head
	}

	m.granted = true
	m.pendingOffset = offset
	m.pendingLen = uint32(total)
	return &Grant{ring: m, offset: offset, cap: payloadLen, env: m.defaultEnv}, nil
}

// Payload returns the writable slice reserved for this grant's payload.
func (g *Grant) Payload() []byte {
	start := g.offset + envelopeSize
	return g.ring.data[start : start+uint32(g.cap) : start+uint32(g.cap)]
}

// Capacity returns the reserved payload capacity.
func (g *Grant) Capacity() int { return g.cap }

// SetEnvelope overrides the envelope written at commit time.
func (g *Grant) SetEnvelope(env Envelope) { g.env = env }

// Commit writes the envelope and total_len, zeroes tail padding, and
// release-stores the new head, making the record visible to the consumer.
func (g *Grant) Commit(written int) error {
	if written < 0 || written > g.cap {
		return fmt.Errorf("msgring: commit length %d exceeds reserved capacity %d", written, g.cap)
	}
	m := g.ring
	total := uint32(envelopeSize + written)
	record := alignUp(total, headerAlign)

	binary.LittleEndian.PutUint32(m.data[g.offset:], total)
	m.data[g.offset+4] = g.env.Tag
	m.data[g.offset+5] = g.env.Ver
	binary.LittleEndian.PutUint16(m.data[g.offset+6:], g.env.Flags)

	for i := g.offset + total; i < g.offset+record; i++ {
		m.data[i] = 0
	}

	newHead := g.offset + record
	if newHead == m.cap {
		newHead = 0
	}
	m.hdr.head.StoreRelease(newHead)

	m.granted = false
	m.pendingLen = 0
	return nil
}

// ConsumerPeek returns the oldest unread record without advancing the
// ring. Returns ok=false when the ring is empty.
func (m *MsgRing) ConsumerPeek() (env Envelope, payload []byte, ok bool) {
	head := m.hdr.head.LoadAcquire()
	tail := m.hdr.tail.LoadRelaxed()
	if head == tail {
		return Envelope{}, nil, false
	}

	total := binary.LittleEndian.Uint32(m.data[tail:])
	if total == wrapSentinel {
		m.hdr.tail.StoreRelease(0)
		wait.WakeAll(&m.hdr.tail)
		return m.ConsumerPeek()
	}
	if total < envelopeSize || tail+total > m.cap {
		panic(fmt.Sprintf("%v: total_len=%d tail=%d capacity=%d", ErrCorrupt, total, tail, m.cap))
	}

	env = Envelope{
		Tag:   m.data[tail+4],
		Ver:   m.data[tail+5],
		Flags: binary.LittleEndian.Uint16(m.data[tail+6:]),
	}
	payload = m.data[tail+envelopeSize : tail+total]
	return env, payload, true
}

// ConsumerAdvance releases the most recently peeked record, invalidating
// any previously returned payload slice.
func (m *MsgRing) ConsumerAdvance() {
	tail := m.hdr.tail.LoadRelaxed()
	total := binary.LittleEndian.Uint32(m.data[tail:])
	if total == wrapSentinel {
		m.hdr.tail.StoreRelease(0)
		wait.WakeAll(&m.hdr.tail)
		return
	}
	record := alignUp(total, headerAlign)
	newTail := tail + record
	if newTail == m.cap {
		newTail = 0
	}
	m.hdr.tail.StoreRelease(newTail)
	wait.WakeAll(&m.hdr.tail)
}

// Capacity returns the data region capacity in bytes.
func (m *MsgRing) Capacity() int { return int(m.cap) }

// Bytes returns the ring's full backing region (header + data), for
// layout export.
func (m *MsgRing) Bytes() []byte { return m.region.Bytes() }

// WaitForConsumerAdvance parks until the consumer's tail position
// changes, resolving a producer's WouldBlock once the consumer has
// drained at least one record. Used by producers/scenario drivers that
// prefer to sleep rather than spin on a full ring.
func (m *MsgRing) WaitForConsumerAdvance() { wait.WaitForChange(&m.hdr.tail) }

// HeaderSize returns the fixed header size in bytes, for layout export.
func HeaderSize() int { return headerSize }

// Close releases the underlying region.
func (m *MsgRing) Close() error { return m.region.Close() }
