// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package kerneldemo is a concrete demo codec for the emulator's kernel
// service. It exists to exercise the endpoint, runtime, and scenario
// layers end-to-end; GPU/Audio/Debug command variants are out of scope
// since this fabric carries no hardware model for them.
package kerneldemo

import (
	"encoding/binary"

	"code.hybscloud.com/fabric/codec"
	"code.hybscloud.com/fabric/port"
)

// Tag values drawn from disjoint command/report ranges (0x01..0x0F
// commands, 0x11..0x1F reports). The Fs, GPU and Audio tags are reserved
// here as documentation of the range even though this demo codec never
// emits them; no Debug tag is defined.
const (
	TagKernelCmd uint8 = 0x01
	TagFsCmd     uint8 = 0x02
	TagGpuCmd    uint8 = 0x03
	TagAudioCmd  uint8 = 0x04

	TagKernelRep uint8 = 0x11
	TagFsRep     uint8 = 0x12
	TagGpuRep    uint8 = 0x13
	TagAudioRep  uint8 = 0x14
)

// TickPurpose selects the backpressure class a Tick command routes to.
type TickPurpose uint8

const (
	TickDisplay TickPurpose = iota
	TickExploration
)

// CmdKind discriminates the Cmd tagged union.
type CmdKind uint8

const (
	CmdTick CmdKind = iota
	CmdLoadRom
	CmdSetInputs
	CmdTerminate
)

// Cmd is the kernel command tagged union.
type Cmd struct {
	Kind    CmdKind
	Purpose TickPurpose // valid when Kind == CmdTick
	Budget  uint32      // valid when Kind == CmdTick
	Bytes   []byte      // valid when Kind == CmdLoadRom
	Group   uint32
}

// RepKind discriminates the Rep tagged union.
type RepKind uint8

const (
	RepTickDone RepKind = iota
	RepRomLoaded
)

// Rep is the kernel report tagged union.
type Rep struct {
	Kind      RepKind
	Group     uint32
	BytesLen  uint32 // valid when Kind == RepRomLoaded
	CyclesGot uint32 // valid when Kind == RepTickDone
}

// Codec implements codec.Codec[Cmd, Rep].
type Codec struct{}

// defaultPolicy assigns a display tick to Coalesce, an exploration tick
// to BestEffort, and everything else to Lossless.
func defaultPolicy(cmd *Cmd) port.Class {
	switch cmd.Kind {
	case CmdTick:
		if cmd.Purpose == TickDisplay {
			return port.Coalesce
		}
		return port.BestEffort
	default:
		return port.Lossless
	}
}

// EncodeCmd implements codec.Codec.
func (Codec) EncodeCmd(cmd *Cmd) (codec.Encoded, error) {
	class := defaultPolicy(cmd)
	var buf []byte
	switch cmd.Kind {
	case CmdTick:
		buf = make([]byte, 1+1+4)
		buf[0] = byte(cmd.Kind)
		buf[1] = byte(cmd.Purpose)
		binary.LittleEndian.PutUint32(buf[2:], cmd.Budget)
	case CmdLoadRom:
		buf = make([]byte, 1+4+len(cmd.Bytes))
		buf[0] = byte(cmd.Kind)
		binary.LittleEndian.PutUint32(buf[1:], uint32(len(cmd.Bytes)))
		copy(buf[5:], cmd.Bytes)
	case CmdSetInputs, CmdTerminate:
		buf = make([]byte, 1+4)
		buf[0] = byte(cmd.Kind)
		binary.LittleEndian.PutUint32(buf[1:], cmd.Group)
	default:
		return codec.Encoded{}, codec.Errorf("kerneldemo: unknown command kind %d", cmd.Kind)
	}
	return codec.Encoded{
		Class:   class,
		Env:     codec.Envelope{Tag: TagKernelCmd, Ver: codec.SchemaVersionV1},
		Payload: buf,
	}, nil
}

// DecodeCmd implements codec.Codec.
func (Codec) DecodeCmd(env codec.Envelope, payload []byte) (Cmd, error) {
	if err := ensureTag(env, TagKernelCmd); err != nil {
		return Cmd{}, err
	}
	if len(payload) < 1 {
		return Cmd{}, codec.Errorf("kerneldemo: command payload too short")
	}
	kind := CmdKind(payload[0])
	switch kind {
	case CmdTick:
		if len(payload) < 6 {
			return Cmd{}, codec.Errorf("kerneldemo: tick payload too short")
		}
		return Cmd{Kind: kind, Purpose: TickPurpose(payload[1]), Budget: binary.LittleEndian.Uint32(payload[2:])}, nil
	case CmdLoadRom:
		if len(payload) < 5 {
			return Cmd{}, codec.Errorf("kerneldemo: load_rom payload too short")
		}
		n := binary.LittleEndian.Uint32(payload[1:])
		if uint32(len(payload)-5) < n {
			return Cmd{}, codec.Errorf("kerneldemo: load_rom length mismatch")
		}
		return Cmd{Kind: kind, Bytes: append([]byte(nil), payload[5:5+n]...)}, nil
	case CmdSetInputs, CmdTerminate:
		if len(payload) < 5 {
			return Cmd{}, codec.Errorf("kerneldemo: command payload too short")
		}
		return Cmd{Kind: kind, Group: binary.LittleEndian.Uint32(payload[1:])}, nil
	default:
		return Cmd{}, codec.Errorf("kerneldemo: unknown command kind %d", kind)
	}
}

// EncodeRep implements codec.Codec.
func (Codec) EncodeRep(rep *Rep) (codec.Encoded, error) {
	var buf []byte
	switch rep.Kind {
	case RepTickDone:
		buf = make([]byte, 1+4+4)
		buf[0] = byte(rep.Kind)
		binary.LittleEndian.PutUint32(buf[1:], rep.Group)
		binary.LittleEndian.PutUint32(buf[5:], rep.CyclesGot)
	case RepRomLoaded:
		buf = make([]byte, 1+4+4)
		buf[0] = byte(rep.Kind)
		binary.LittleEndian.PutUint32(buf[1:], rep.Group)
		binary.LittleEndian.PutUint32(buf[5:], rep.BytesLen)
	default:
		return codec.Encoded{}, codec.Errorf("kerneldemo: unknown report kind %d", rep.Kind)
	}
	return codec.Encoded{
		Class:   port.Lossless,
		Env:     codec.Envelope{Tag: TagKernelRep, Ver: codec.SchemaVersionV1},
		Payload: buf,
	}, nil
}

// DecodeRep implements codec.Codec.
func (Codec) DecodeRep(env codec.Envelope, payload []byte) (Rep, error) {
	if err := ensureTag(env, TagKernelRep); err != nil {
		return Rep{}, err
	}
	if len(payload) < 9 {
		return Rep{}, codec.Errorf("kerneldemo: report payload too short")
	}
	kind := RepKind(payload[0])
	group := binary.LittleEndian.Uint32(payload[1:])
	switch kind {
	case RepTickDone:
		return Rep{Kind: kind, Group: group, CyclesGot: binary.LittleEndian.Uint32(payload[5:])}, nil
	case RepRomLoaded:
		return Rep{Kind: kind, Group: group, BytesLen: binary.LittleEndian.Uint32(payload[5:])}, nil
	default:
		return Rep{}, codec.Errorf("kerneldemo: unknown report kind %d", kind)
	}
}

func ensureTag(env codec.Envelope, expected uint8) error {
	if env.Tag != expected {
		return codec.Errorf("unexpected envelope tag %d (expected %d)", env.Tag, expected)
	}
	if env.Ver != codec.SchemaVersionV1 {
		return codec.Errorf("schema version mismatch: %d vs %d", env.Ver, codec.SchemaVersionV1)
	}
	return nil
}
