// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package endpoint composes ports, slot pools, and a codec into the
// scheduler-side/worker-side handle pair a service is built from: the
// submission engine that turns a typed Submit call into a port choice, a
// reservation, a commit, and a submit outcome.
package endpoint

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"

	"code.hybscloud.com/fabric/codec"
	"code.hybscloud.com/fabric/internal/logx"
	"code.hybscloud.com/fabric/layout"
	"code.hybscloud.com/fabric/mailbox"
	"code.hybscloud.com/fabric/msgring"
	"code.hybscloud.com/fabric/port"
	"code.hybscloud.com/fabric/slotpool"
)

// ErrMissingReplyPort is returned when a Spec's ReplyCapacity is not
// positive; every service must have exactly one reply port.
var ErrMissingReplyPort = errors.New("endpoint: reply port capacity must be > 0")

// Spec specifies the primitives an endpoint pair is built from. A zero
// capacity for Lossless/BestEffort/Coalesce means that command port is
// absent from this endpoint; ReplyCapacity is mandatory.
type Spec struct {
	// LosslessCapacity, if > 0, allocates a MsgRing-backed Lossless
	// command port of this data-region byte capacity.
	LosslessCapacity int
	// BestEffortCapacity, if > 0, allocates a MsgRing-backed BestEffort
	// command port.
	BestEffortCapacity int
	// CoalesceCapacity, if > 0, allocates a Mailbox-backed Coalesce
	// command port of this payload byte capacity.
	CoalesceCapacity int
	// ReplyCapacity is the mandatory reply MsgRing's data-region byte
	// capacity.
	ReplyCapacity int
	// ReplyClass is the submission class the reply port enforces
	// (typically Lossless: reports should never be silently dropped).
	ReplyClass port.Class
	// SlotPools is zero or more bulk-payload pools shared by both
	// sides of the endpoint.
	SlotPools []slotpool.Config
	// RingMagic is a debug tag stamped into every MsgRing this spec
	// allocates.
	RingMagic uint32
}

// ports bundles the up-to-three command ports plus the mandatory reply
// port that both EndpointHandle and WorkerEndpoint index into.
type ports struct {
	lossless   *port.Port
	bestEffort *port.Port
	coalesce   *port.Port
	reply      *port.Port
}

// routeClass picks the port a command of the given class routes to.
// Must aliases Lossless's port: both map to the same lossless MsgRing
// backend at this layer, and only the scheduler's retry behavior on
// WouldBlock is meant to differ between the two classes.
func (p *ports) routeClass(class port.Class) *port.Port {
	switch class {
	case port.Lossless, port.Must:
		return p.lossless
	case port.BestEffort:
		return p.bestEffort
	case port.Coalesce:
		return p.coalesce
	default:
		return nil
	}
}

// EndpointHandle is the scheduler-side half of an endpoint pair: it
// encodes and submits commands, and drains decoded reports.
type EndpointHandle[Cmd, Rep any] struct {
	ports     *ports
	slotPools []*slotpool.SlotPool
	codec     codec.Codec[Cmd, Rep]
	logger    *logx.Logger
}

// WorkerEndpoint is the worker-side half of an endpoint pair: it drains
// decoded commands in lossless-then-coalesce-then-besteffort priority
// order, and publishes encoded reports.
type WorkerEndpoint[Cmd, Rep any] struct {
	ports     *ports
	slotPools []*slotpool.SlotPool
	codec     codec.Codec[Cmd, Rep]
	logger    *logx.Logger
}

// BuildService allocates every primitive spec names, wires up the
// producer/consumer halves, and returns the scheduler handle, the worker
// handle, and a layout descriptor a peer can use to attach to the same
// primitives over shared memory.
func BuildService[Cmd, Rep any](spec Spec, cd codec.Codec[Cmd, Rep]) (*EndpointHandle[Cmd, Rep], *WorkerEndpoint[Cmd, Rep], layout.Descriptor, error) {
	if spec.ReplyCapacity <= 0 {
		return nil, nil, layout.Descriptor{}, ErrMissingReplyPort
	}

	var p ports
	var descPorts []layout.PortDescriptor
	var descPools []layout.SlotPoolDescriptor

	if spec.LosslessCapacity > 0 {
		ring, err := msgring.New(spec.LosslessCapacity, spec.RingMagic, msgring.Envelope{})
		if err != nil {
			return nil, nil, layout.Descriptor{}, fmt.Errorf("endpoint: lossless port: %w", err)
		}
		pt, err := port.NewRing(ring, port.Lossless)
		if err != nil {
			return nil, nil, layout.Descriptor{}, invalidConfig(fmt.Errorf("endpoint: lossless port: %w", err))
		}
		p.lossless = pt
		d, err := layout.DescribePort(layout.CmdLossless, pt)
		if err != nil {
			return nil, nil, layout.Descriptor{}, err
		}
		descPorts = append(descPorts, d)
	}

	if spec.BestEffortCapacity > 0 {
		ring, err := msgring.New(spec.BestEffortCapacity, spec.RingMagic, msgring.Envelope{})
		if err != nil {
			return nil, nil, layout.Descriptor{}, fmt.Errorf("endpoint: best-effort port: %w", err)
		}
		pt, err := port.NewRing(ring, port.BestEffort)
		if err != nil {
			return nil, nil, layout.Descriptor{}, invalidConfig(fmt.Errorf("endpoint: best-effort port: %w", err))
		}
		p.bestEffort = pt
		d, err := layout.DescribePort(layout.CmdBestEffort, pt)
		if err != nil {
			return nil, nil, layout.Descriptor{}, err
		}
		descPorts = append(descPorts, d)
	}

	if spec.CoalesceCapacity > 0 {
		mb, err := mailbox.New(spec.CoalesceCapacity)
		if err != nil {
			return nil, nil, layout.Descriptor{}, fmt.Errorf("endpoint: coalesce port: %w", err)
		}
		pt, err := port.NewMailbox(mb, port.Coalesce)
		if err != nil {
			return nil, nil, layout.Descriptor{}, invalidConfig(fmt.Errorf("endpoint: coalesce port: %w", err))
		}
		p.coalesce = pt
		d, err := layout.DescribePort(layout.CmdMailbox, pt)
		if err != nil {
			return nil, nil, layout.Descriptor{}, err
		}
		descPorts = append(descPorts, d)
	}

	{
		ring, err := msgring.New(spec.ReplyCapacity, spec.RingMagic, msgring.Envelope{})
		if err != nil {
			return nil, nil, layout.Descriptor{}, fmt.Errorf("endpoint: reply port: %w", err)
		}
		pt, err := port.NewRing(ring, spec.ReplyClass)
		if err != nil {
			return nil, nil, layout.Descriptor{}, invalidConfig(fmt.Errorf("endpoint: reply port: %w", err))
		}
		p.reply = pt
		d, err := layout.DescribePort(layout.Replies, pt)
		if err != nil {
			return nil, nil, layout.Descriptor{}, err
		}
		descPorts = append(descPorts, d)
	}

	pools := make([]*slotpool.SlotPool, len(spec.SlotPools))
	for i, cfg := range spec.SlotPools {
		sp, err := slotpool.New(cfg)
		if err != nil {
			return nil, nil, layout.Descriptor{}, fmt.Errorf("endpoint: slot pool %d: %w", i, err)
		}
		pools[i] = sp
		descPools = append(descPools, layout.DescribeSlotPool(uint32(i), sp))
	}

	desc := layout.Descriptor{
		Version:   layout.SchemaVersionV1,
		Ports:     descPorts,
		SlotPools: descPools,
	}

	scheduler := &EndpointHandle[Cmd, Rep]{ports: &p, slotPools: pools, codec: cd, logger: logx.Default()}
	worker := &WorkerEndpoint[Cmd, Rep]{ports: &p, slotPools: pools, codec: cd, logger: logx.Default()}
	return scheduler, worker, desc, nil
}

// SlotPools returns the endpoint's shared slot pools, in spec order.
func (h *EndpointHandle[Cmd, Rep]) SlotPools() []*slotpool.SlotPool { return h.slotPools }

// SlotPools returns the endpoint's shared slot pools, in spec order.
func (w *WorkerEndpoint[Cmd, Rep]) SlotPools() []*slotpool.SlotPool { return w.slotPools }

// Submit encodes cmd, routes it by the codec-declared class, and hands
// it to that port's non-blocking send.
func (h *EndpointHandle[Cmd, Rep]) Submit(cmd *Cmd) (port.Outcome, error) {
	enc, err := h.codec.EncodeCmd(cmd)
	if err != nil {
		return 0, err
	}
	p := h.ports.routeClass(enc.Class)
	if p == nil {
		return 0, invalidConfig(fmt.Errorf("%w: no port configured for class %v", port.ErrInvalidConfig, enc.Class))
	}
	return p.Producer().TrySend(port.Envelope(enc.Env), enc.Payload)
}

// DrainReports iterates the reply consumer up to budget records, decoding
// each into a Rep. Decode failures are logged and the record discarded,
// never surfaced to the caller. Returns iox.ErrMore when the budget was
// exhausted with more records potentially remaining.
func (h *EndpointHandle[Cmd, Rep]) DrainReports(budget int) ([]Rep, error) {
	out := make([]Rep, 0, budget)
	n := h.ports.reply.Consumer().DrainRecords(budget, func(env port.Envelope, payload []byte) {
		rep, err := h.codec.DecodeRep(codec.Envelope(env), payload)
		if err != nil {
			h.logger.Err().Str("port", "reply").Err(err).Log("endpoint: discarding report with bad encoding")
			return
		}
		out = append(out, rep)
	})
	if n >= budget {
		return out, iox.ErrMore
	}
	return out, nil
}

// DrainCommands drains up to budget records across the three command
// ports in lossless-then-coalesce-then-besteffort priority order,
// calling f with each successfully decoded command. Decode failures are
// logged and the record discarded. Returns iox.ErrMore when the budget
// was exhausted with more records potentially remaining on some port.
func (w *WorkerEndpoint[Cmd, Rep]) DrainCommands(budget int, f func(Cmd)) (int, error) {
	drained := 0
	for _, p := range [...]*port.Port{w.ports.lossless, w.ports.coalesce, w.ports.bestEffort} {
		if p == nil {
			continue
		}
		remaining := budget - drained
		if remaining <= 0 {
			break
		}
		n := p.Consumer().DrainRecords(remaining, func(env port.Envelope, payload []byte) {
			cmd, err := w.codec.DecodeCmd(codec.Envelope(env), payload)
			if err != nil {
				w.logger.Err().Str("port", p.Class().String()).Err(err).Log("endpoint: discarding command with bad encoding")
				return
			}
			f(cmd)
		})
		drained += n
	}
	if drained >= budget {
		return drained, iox.ErrMore
	}
	return drained, nil
}

// PublishReport encodes rep and sends it on the reply producer port.
func (w *WorkerEndpoint[Cmd, Rep]) PublishReport(rep *Rep) (port.Outcome, error) {
	enc, err := w.codec.EncodeRep(rep)
	if err != nil {
		return 0, err
	}
	return w.ports.reply.Producer().TrySend(port.Envelope(enc.Env), enc.Payload)
}
