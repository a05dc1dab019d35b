// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package port binds exactly one primitive (a message ring or a mailbox)
// to exactly one submission class, and hands out a producer/consumer
// handle pair that share the primitive and a set of saturating outcome
// counters.
package port

import (
	"errors"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"

	"code.hybscloud.com/fabric/mailbox"
	"code.hybscloud.com/fabric/msgring"
)

// Class is the backpressure policy a port enforces.
type Class int

const (
	// Lossless backs onto a MsgRing; full reports WouldBlock.
	Lossless Class = iota
	// BestEffort backs onto a MsgRing; full reports Dropped.
	BestEffort
	// Coalesce backs onto a Mailbox; cannot report WouldBlock.
	Coalesce
	// Must behaves exactly like Lossless at the port layer; the two
	// variants exist because the scheduler may retry on WouldBlock
	// differently for Must than for Lossless. Preserved as an open
	// implementer note rather than collapsed into one value.
	Must
)

// String implements fmt.Stringer.
func (c Class) String() string {
	switch c {
	case Lossless:
		return "Lossless"
	case BestEffort:
		return "BestEffort"
	case Coalesce:
		return "Coalesce"
	case Must:
		return "Must"
	default:
		return "Class(unknown)"
	}
}

// Outcome is the non-error result of a Send.
type Outcome int

const (
	Accepted Outcome = iota
	Coalesced
	Dropped
	WouldBlock
)

// ErrInvalidConfig is returned when a port is constructed with a
// primitive/class pairing the table in spec §4.6 disallows.
var ErrInvalidConfig = errors.New("port: invalid primitive/class pairing")

// Envelope aliases the two primitives' wire envelope shape.
type Envelope struct {
	Tag   uint8
	Ver   uint8
	Flags uint16
}

// Metrics are the port's four saturating, purely observational counters.
type Metrics struct {
	Accepted   atomix.Uint32
	Coalesced  atomix.Uint32
	Dropped    atomix.Uint32
	WouldBlock atomix.Uint32
}

// Snapshot is a point-in-time read of Metrics.
type Snapshot struct {
	Accepted, Coalesced, Dropped, WouldBlock uint32
}

func (m *Metrics) snapshot() Snapshot {
	return Snapshot{
		Accepted:   m.Accepted.LoadRelaxed(),
		Coalesced:  m.Coalesced.LoadRelaxed(),
		Dropped:    m.Dropped.LoadRelaxed(),
		WouldBlock: m.WouldBlock.LoadRelaxed(),
	}
}

func saturatingIncr(c *atomix.Uint32) {
	v := c.LoadRelaxed()
	if v == ^uint32(0) {
		return
	}
	c.StoreRelease(v + 1)
}

// backend holds exactly one of the two primitives. Producer and consumer
// operations take the mutex for the short, non-blocking critical section
// of a single send/drain call: the lock must never be held across a
// wait_for_* call, so no operation here ever parks.
type backend struct {
	mu      sync.Mutex
	ring    *msgring.MsgRing
	mailbox *mailbox.Mailbox
}

// Port owns one primitive and a class.
type Port struct {
	class   Class
	backend *backend
	metrics Metrics
}

// NewRing constructs a port backed by a message ring. class must be
// Lossless, BestEffort, or Must.
func NewRing(ring *msgring.MsgRing, class Class) (*Port, error) {
	switch class {
	case Lossless, BestEffort, Must:
	default:
		return nil, ErrInvalidConfig
	}
	return &Port{class: class, backend: &backend{ring: ring}}, nil
}

// NewMailbox constructs a port backed by a mailbox. class must be Coalesce.
func NewMailbox(mb *mailbox.Mailbox, class Class) (*Port, error) {
	if class != Coalesce {
		return nil, ErrInvalidConfig
	}
	return &Port{class: class, backend: &backend{mailbox: mb}}, nil
}

// Class returns the port's configured class.
func (p *Port) Class() Class { return p.class }

// Ring returns the port's message-ring backend, or nil if it is
// mailbox-backed. For layout export.
func (p *Port) Ring() *msgring.MsgRing { return p.backend.ring }

// Mailbox returns the port's mailbox backend, or nil if it is
// ring-backed. For layout export.
func (p *Port) Mailbox() *mailbox.Mailbox { return p.backend.mailbox }

// Snapshot returns a point-in-time read of the port's metrics.
func (p *Port) Snapshot() Snapshot { return p.metrics.snapshot() }

// ProducerPort is the producer-owning handle for a port.
type ProducerPort struct{ p *Port }

// ConsumerPort is the consumer-owning handle for a port.
type ConsumerPort struct{ p *Port }

// Producer returns this port's producer handle.
func (p *Port) Producer() ProducerPort { return ProducerPort{p} }

// Consumer returns this port's consumer handle.
func (p *Port) Consumer() ConsumerPort { return ConsumerPort{p} }

// Snapshot returns the underlying port's metrics.
func (pp ProducerPort) Snapshot() Snapshot { return pp.p.Snapshot() }

// Snapshot returns the underlying port's metrics.
func (cp ConsumerPort) Snapshot() Snapshot { return cp.p.Snapshot() }

// TrySend routes payload through the port's primitive per its class.
func (pp ProducerPort) TrySend(env Envelope, payload []byte) (Outcome, error) {
	p := pp.p
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()

	switch p.class {
	case Lossless, Must:
		return sendRingLossless(p, env, payload)
	case BestEffort:
		return sendRingBestEffort(p, env, payload)
	case Coalesce:
		return sendMailbox(p, env, payload)
	default:
		return 0, ErrInvalidConfig
	}
}

func sendRingLossless(p *Port, env Envelope, payload []byte) (Outcome, error) {
	grant, err := p.backend.ring.TryReserve(len(payload))
	if err != nil {
		if iox.IsWouldBlock(err) {
			saturatingIncr(&p.metrics.WouldBlock)
			return WouldBlock, nil
		}
		return 0, err
	}
	grant.SetEnvelope(msgring.Envelope(env))
	copy(grant.Payload(), payload)
	if err := grant.Commit(len(payload)); err != nil {
		return 0, err
	}
	saturatingIncr(&p.metrics.Accepted)
	return Accepted, nil
}

func sendRingBestEffort(p *Port, env Envelope, payload []byte) (Outcome, error) {
	grant, err := p.backend.ring.TryReserve(len(payload))
	if err != nil {
		if iox.IsWouldBlock(err) {
			saturatingIncr(&p.metrics.Dropped)
			return Dropped, nil
		}
		return 0, err
	}
	grant.SetEnvelope(msgring.Envelope(env))
	copy(grant.Payload(), payload)
	if err := grant.Commit(len(payload)); err != nil {
		return 0, err
	}
	saturatingIncr(&p.metrics.Accepted)
	return Accepted, nil
}

func sendMailbox(p *Port, env Envelope, payload []byte) (Outcome, error) {
	outcome, err := p.backend.mailbox.TrySend(mailbox.Envelope(env), payload)
	if err != nil {
		return 0, err
	}
	switch outcome {
	case mailbox.Coalesced:
		saturatingIncr(&p.metrics.Coalesced)
		return Coalesced, nil
	default:
		saturatingIncr(&p.metrics.Accepted)
		return Accepted, nil
	}
}

// DrainRecords iterates up to max records from the port's primitive,
// calling f with each decoded envelope and payload. Returns the number
// drained.
func (cp ConsumerPort) DrainRecords(max int, f func(env Envelope, payload []byte)) int {
	p := cp.p
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()

	drained := 0
	switch p.class {
	case Lossless, Must, BestEffort:
		for drained < max {
			env, payload, ok := p.backend.ring.ConsumerPeek()
			if !ok {
				break
			}
			f(Envelope(env), payload)
			p.backend.ring.ConsumerAdvance()
			drained++
		}
	case Coalesce:
		if env, payload, ok := p.backend.mailbox.TakeLatest(); ok {
			f(Envelope(env), payload)
			drained = 1
		}
	}
	return drained
}
