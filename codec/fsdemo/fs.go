// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fsdemo is a minimal demo codec for the emulator's filesystem
// service: a single Persist command (always Lossless, since losing a
// save request is unacceptable) and a single Saved report acknowledging
// it.
package fsdemo

import (
	"encoding/binary"

	"code.hybscloud.com/fabric/codec"
	"code.hybscloud.com/fabric/port"
)

// Tag values drawn from kerneldemo's disjoint command/report ranges.
const (
	TagFsCmd uint8 = 0x02
	TagFsRep uint8 = 0x12
)

// Cmd is the filesystem command. Persist is currently the only
// variant this demo codec supports.
type Cmd struct {
	Group uint32
	Bytes []byte
}

// Rep acknowledges a completed Persist.
type Rep struct {
	Group    uint32
	BytesLen uint32
}

// Codec implements codec.Codec[Cmd, Rep].
type Codec struct{}

// EncodeCmd implements codec.Codec. Persist always routes Lossless: a
// dropped save request is a user-visible data-loss bug, never an
// acceptable tradeoff.
func (Codec) EncodeCmd(cmd *Cmd) (codec.Encoded, error) {
	buf := make([]byte, 4+4+len(cmd.Bytes))
	binary.LittleEndian.PutUint32(buf, cmd.Group)
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(cmd.Bytes)))
	copy(buf[8:], cmd.Bytes)
	return codec.Encoded{
		Class:   port.Lossless,
		Env:     codec.Envelope{Tag: TagFsCmd, Ver: codec.SchemaVersionV1},
		Payload: buf,
	}, nil
}

// DecodeCmd implements codec.Codec.
func (Codec) DecodeCmd(env codec.Envelope, payload []byte) (Cmd, error) {
	if err := ensureTag(env, TagFsCmd); err != nil {
		return Cmd{}, err
	}
	if len(payload) < 8 {
		return Cmd{}, codec.Errorf("fsdemo: command payload too short")
	}
	group := binary.LittleEndian.Uint32(payload)
	n := binary.LittleEndian.Uint32(payload[4:])
	if uint32(len(payload)-8) < n {
		return Cmd{}, codec.Errorf("fsdemo: persist length mismatch")
	}
	return Cmd{Group: group, Bytes: append([]byte(nil), payload[8:8+n]...)}, nil
}

// EncodeRep implements codec.Codec.
func (Codec) EncodeRep(rep *Rep) (codec.Encoded, error) {
	buf := make([]byte, 4+4)
	binary.LittleEndian.PutUint32(buf, rep.Group)
	binary.LittleEndian.PutUint32(buf[4:], rep.BytesLen)
	return codec.Encoded{
		Class:   port.Lossless,
		Env:     codec.Envelope{Tag: TagFsRep, Ver: codec.SchemaVersionV1},
		Payload: buf,
	}, nil
}

// DecodeRep implements codec.Codec.
func (Codec) DecodeRep(env codec.Envelope, payload []byte) (Rep, error) {
	if err := ensureTag(env, TagFsRep); err != nil {
		return Rep{}, err
	}
	if len(payload) < 8 {
		return Rep{}, codec.Errorf("fsdemo: report payload too short")
	}
	return Rep{
		Group:    binary.LittleEndian.Uint32(payload),
		BytesLen: binary.LittleEndian.Uint32(payload[4:]),
	}, nil
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
