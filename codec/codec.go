// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package codec defines the typed encode/decode facade over the
// transport fabric's wire primitives. A Codec's encode functions decide
// which submission class a command or report routes to; its decode
// functions validate the envelope's tag/version before ever trusting the
// payload bytes.
//
// The specific archival format of a payload's body is an external
// collaborator: this package only frames the envelope/class contract.
// Concrete payload bodies are encoded by the demo codecs in the sibling
// kerneldemo and fsdemo packages.
package codec

import (
	"fmt"

	"code.hybscloud.com/fabric/port"
)

// SchemaVersionV1 is the fixed schema epoch this fabric's demo codecs
// speak. Any ABI-breaking payload change bumps this.
const SchemaVersionV1 uint8 = 1

// Envelope is the 8-byte metadata frame every record carries.
type Envelope struct {
	Tag   uint8
	Ver   uint8
	Flags uint16
}

// Encoded is what a codec's encode functions produce: the class that
// decides routing, the envelope, and the framed payload bytes.
type Encoded struct {
	Class   port.Class
	Env     Envelope
	Payload []byte
}

// Codec is a pair of pure encode/decode functions per direction. Cmd is
// the type submitted by the scheduler; Rep is the type published by the
// worker.
type Codec[Cmd, Rep any] interface {
	EncodeCmd(cmd *Cmd) (Encoded, error)
	DecodeCmd(env Envelope, payload []byte) (Cmd, error)
	EncodeRep(rep *Rep) (Encoded, error)
	DecodeRep(env Envelope, payload []byte) (Rep, error)
}

// Error is a codec error: an envelope tag/version mismatch or a payload
// that fails validation. Per spec, this is never a silent
// misinterpretation — always a typed failure.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return "codec: " + e.Msg }

// Errorf constructs a codec Error.
func Errorf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}
