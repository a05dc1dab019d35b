// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package layout describes the byte extents of an endpoint's ports and
// slot pools so that a peer mapping the same shared memory can attach to
// them without any metadata duplication: it reads a Descriptor and binds
// views directly over the described bytes via each primitive's
// FromLayout constructor, allocating nothing and re-initializing
// nothing.
//
// A full codegen-backed zero-copy archive format is an external
// collaborator out of reach here, so the descriptor is instead
// serialized with plain encoding/binary into a fixed, versioned record
// layout. That representation is itself zero-copy-attachable in the one
// sense that matters: decoding it never allocates primitive backing
// storage, only the small descriptor struct itself.
package layout

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"code.hybscloud.com/fabric/mailbox"
	"code.hybscloud.com/fabric/msgring"
	"code.hybscloud.com/fabric/port"
	"code.hybscloud.com/fabric/slotpool"
)

// SchemaVersionV1 is the descriptor archive format's version. A peer
// that reads a descriptor at a different version refuses to attach.
const SchemaVersionV1 uint32 = 1

const descriptorMagic uint32 = 0x46424c59 // "FBLY"

// Role identifies what a port is used for within an endpoint pair.
// Additional roles must extend the set at the end; consumers ignore
// unknown roles.
type Role uint8

const (
	CmdLossless Role = iota
	CmdBestEffort
	CmdMailbox
	Replies
	RoleSlotPool
)

func (r Role) String() string {
	switch r {
	case CmdLossless:
		return "CmdLossless"
	case CmdBestEffort:
		return "CmdBestEffort"
	case CmdMailbox:
		return "CmdMailbox"
	case Replies:
		return "Replies"
	case RoleSlotPool:
		return "SlotPool"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// Kind discriminates which primitive a PortDescriptor names.
type Kind uint8

const (
	KindRing Kind = iota
	KindMailbox
)

// PortDescriptor describes one port's primitive as a byte range: Length
// is the primitive's full backing region (header + data), Capacity is
// the usable data-region capacity FromLayout needs to reconstruct views
// without re-deriving it.
type PortDescriptor struct {
	Role     Role
	Kind     Kind
	Length   uint32
	Capacity uint32
}

// SlotPoolDescriptor describes one slot pool's byte range and shape.
type SlotPoolDescriptor struct {
	Index     uint32
	Length    uint32
	SlotCount uint32
	SlotSize  uint32
}

// Descriptor is the archived tree of a single endpoint's port and
// slot-pool extents.
type Descriptor struct {
	Version   uint32
	Ports     []PortDescriptor
	SlotPools []SlotPoolDescriptor
}

// DescribePort produces a PortDescriptor for p under role.
func DescribePort(role Role, p *port.Port) (PortDescriptor, error) {
	if ring := p.Ring(); ring != nil {
		return PortDescriptor{
			Role:     role,
			Kind:     KindRing,
			Length:   uint32(len(ring.Bytes())),
			Capacity: uint32(ring.Capacity()),
		}, nil
	}
	if mb := p.Mailbox(); mb != nil {
		return PortDescriptor{
			Role:     role,
			Kind:     KindMailbox,
			Length:   uint32(len(mb.Bytes())),
			Capacity: uint32(mb.Capacity()),
		}, nil
	}
	return PortDescriptor{}, errors.New("layout: port has neither ring nor mailbox backend")
}

// DescribeSlotPool produces a SlotPoolDescriptor for p at index idx.
func DescribeSlotPool(idx uint32, p *slotpool.SlotPool) SlotPoolDescriptor {
	return SlotPoolDescriptor{
		Index:     idx,
		Length:    uint32(len(p.Bytes())),
		SlotCount: p.SlotCount(),
		SlotSize:  uint32(p.SlotSize()),
	}
}

// Encode serializes d into the fixed versioned record format.
func (d Descriptor) Encode() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, descriptorMagic)
	_ = binary.Write(&buf, binary.LittleEndian, SchemaVersionV1)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(d.Ports)))
	for _, p := range d.Ports {
		_ = binary.Write(&buf, binary.LittleEndian, p.Role)
		_ = binary.Write(&buf, binary.LittleEndian, p.Kind)
		_ = binary.Write(&buf, binary.LittleEndian, p.Length)
		_ = binary.Write(&buf, binary.LittleEndian, p.Capacity)
	}
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(d.SlotPools)))
	for _, sp := range d.SlotPools {
		_ = binary.Write(&buf, binary.LittleEndian, sp.Index)
		_ = binary.Write(&buf, binary.LittleEndian, sp.Length)
		_ = binary.Write(&buf, binary.LittleEndian, sp.SlotCount)
		_ = binary.Write(&buf, binary.LittleEndian, sp.SlotSize)
	}
	return buf.Bytes()
}

// ErrVersionMismatch is returned by Decode when the archive's version
// does not equal SchemaVersionV1: a peer that reads a descriptor at a
// different version refuses to attach.
var ErrVersionMismatch = errors.New("layout: descriptor schema version mismatch")

// ErrTruncated is returned by Decode when the input is shorter than the
// fixed record format requires.
var ErrTruncated = errors.New("layout: truncated descriptor")

// Decode parses a Descriptor previously produced by Encode.
func Decode(data []byte) (Descriptor, error) {
	r := bytes.NewReader(data)
	var magic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if magic != descriptorMagic {
		return Descriptor{}, fmt.Errorf("%w: bad magic", ErrVersionMismatch)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if version != SchemaVersionV1 {
		return Descriptor{}, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, version, SchemaVersionV1)
	}

	var portCount uint32
	if err := binary.Read(r, binary.LittleEndian, &portCount); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	ports := make([]PortDescriptor, portCount)
	for i := range ports {
		if err := binary.Read(r, binary.LittleEndian, &ports[i].Role); err != nil {
			return Descriptor{}, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &ports[i].Kind); err != nil {
			return Descriptor{}, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &ports[i].Length); err != nil {
			return Descriptor{}, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &ports[i].Capacity); err != nil {
			return Descriptor{}, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
	}

	var poolCount uint32
	if err := binary.Read(r, binary.LittleEndian, &poolCount); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	pools := make([]SlotPoolDescriptor, poolCount)
	for i := range pools {
		if err := binary.Read(r, binary.LittleEndian, &pools[i].Index); err != nil {
			return Descriptor{}, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &pools[i].Length); err != nil {
			return Descriptor{}, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &pools[i].SlotCount); err != nil {
			return Descriptor{}, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &pools[i].SlotSize); err != nil {
			return Descriptor{}, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
	}

	return Descriptor{Version: version, Ports: ports, SlotPools: pools}, nil
}

// AttachPort reconstructs a port from d's raw bytes without allocating or
// re-initializing state. class must match the class the original port
// was constructed with; it is not itself part of the wire descriptor
// since it is a construction-time policy choice, not a byte-range fact.
func AttachPort(d PortDescriptor, buf []byte, class port.Class) (*port.Port, error) {
	switch d.Kind {
	case KindRing:
		ring, err := msgring.FromLayout(buf, msgring.Envelope{})
		if err != nil {
			return nil, err
		}
		return port.NewRing(ring, class)
	case KindMailbox:
		mb, err := mailbox.FromLayout(buf)
		if err != nil {
			return nil, err
		}
		return port.NewMailbox(mb, class)
	default:
		return nil, fmt.Errorf("layout: unknown port kind %d", d.Kind)
	}
}

// AttachSlotPool reconstructs a slot pool from d's raw bytes without
// allocating or re-initializing state.
func AttachSlotPool(d SlotPoolDescriptor, buf []byte) (*slotpool.SlotPool, error) {
	return slotpool.FromLayout(buf)
}
