// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scenario is a small library of synthetic service engines used
// for end-to-end testing of the fabric: Flood, Burst, and Backpressure
// frame producers driving a FabricHandle, and the Stats counters they
// accumulate. The package has no verification predicates of its own; the
// checks on those Stats (produced count, ordering, ready depth,
// would-block counts) are written inline in the tests that drive it.
package scenario

import (
	"sync/atomic"

	"code.hybscloud.com/spin"
)

// FabricHandle is the generic contract a scenario engine drives: a frame
// slot pool (acquire/write/publish/wait) plus an event ring (try-push/
// wait-for-space). The same engine drives both a native harness
// (runtime.NativeChannels) and, in principle, any other FabricHandle
// implementation wired the same way.
type FabricHandle interface {
	// AcquireFreeSlot pops a free frame slot. ok is false when none is
	// available right now.
	AcquireFreeSlot() (idx uint32, ok bool)
	// WaitForFreeSlot parks until a slot is released back to the free
	// ring.
	WaitForFreeSlot()
	// WithFrameSlotMut gives the caller raw mutable access to slot idx's
	// bytes.
	WithFrameSlotMut(idx uint32, fn func(buf []byte))
	// WriteFrame is a convenience over WithFrameSlotMut that stamps seq
	// as the slot's sole payload.
	WriteFrame(idx uint32, seq uint64)
	// PushReady publishes idx to the ready ring. ok is false on
	// would-block (ready ring momentarily full).
	PushReady(idx uint32) (ok bool)
	// WaitForReadyDrain parks until the ready ring's consumer side
	// advances.
	WaitForReadyDrain()
	// TryPushEvent sends seq on the event ring. ok is false on
	// would-block.
	TryPushEvent(seq uint64) (ok bool)
	// WaitForEventSpace parks until the event ring has room.
	WaitForEventSpace()
}

// Mode selects which synthetic producer pattern an Engine runs.
type Mode int

const (
	// Flood produces FrameCount frames as fast as possible, no pauses.
	Flood Mode = iota
	// Burst produces Bursts bursts of BurstSize frames each.
	Burst
	// Backpressure produces FrameCount frames while, per the test
	// driver, the consumer is paused mid-run.
	Backpressure
)

// Config parameterizes an Engine.
type Config struct {
	Mode Mode

	// FrameCount is the total frame count for Flood and Backpressure.
	FrameCount int

	// Bursts and BurstSize parameterize Burst: Bursts bursts of
	// BurstSize frames each are produced; the total frame count is
	// Bursts * BurstSize.
	Bursts    int
	BurstSize int
}

// Stats are the verification-relevant counters an Engine accumulates
// across its run. All fields are safe to read concurrently with Poll via
// Snapshot.
type Stats struct {
	Produced        int
	WouldBlockReady int // PushReady returned false
	WouldBlockEvt   int // TryPushEvent returned false
	FreeWaits       int // AcquireFreeSlot returned false, so WaitForFreeSlot was called
	MaxReadyDepth   int
}

// Engine is a FrameScenarioEngine: a synthetic producer driving a
// FabricHandle per its Config's Mode. It has the Poll/Name method set of
// runtime.ServiceEngine, but unlike that contract its Poll parks on the
// handle's WaitForFreeSlot/WaitForReadyDrain/WaitForEventSpace whenever a
// step would block; scenario drivers call Poll directly.
type Engine struct {
	name   string
	handle FabricHandle
	cfg    Config

	nextSeq       uint64
	burstProduced int
	burstsDone    int
	readyDepth    int64 // incremented on PushReady, decremented by the consumer via ObserveDrain
	produced      atomic.Int64
	wouldBlockRdy atomic.Int64
	wouldBlockEvt atomic.Int64
	freeWaits     atomic.Int64
	maxReadyDepth atomic.Int64
	done          bool

	// produceOne is a 3-stage state machine (acquire -> publish ready ->
	// publish event) so that a would-block retry resumes from the stage
	// it failed at instead of re-acquiring a fresh slot for the same
	// sequence id, which would orphan the already-published one.
	stage      int
	pendingIdx uint32
	pendingSeq uint64
}

const (
	stageAcquire = iota
	stagePublishReady
	stagePublishEvent
)

// NewEngine constructs a Engine named name, driving handle per cfg.
func NewEngine(name string, handle FabricHandle, cfg Config) *Engine {
	return &Engine{name: name, handle: handle, cfg: cfg}
}

// Name implements the ServiceEngine contract.
func (e *Engine) Name() string { return e.name }

// Done reports whether the engine has produced its full target.
func (e *Engine) Done() bool { return e.done }

// Snapshot returns a point-in-time read of the engine's Stats.
func (e *Engine) Snapshot() Stats {
	return Stats{
		Produced:        int(e.produced.Load()),
		WouldBlockReady: int(e.wouldBlockRdy.Load()),
		WouldBlockEvt:   int(e.wouldBlockEvt.Load()),
		FreeWaits:       int(e.freeWaits.Load()),
		MaxReadyDepth:   int(e.maxReadyDepth.Load()),
	}
}

// ObserveDrain tells the engine a consumer drained n ready-queued frames,
// so it can track the ready ring's observed depth for the burst-fairness
// property. Scenario drivers call this once per consumer tick.
func (e *Engine) ObserveDrain(n int) {
	atomic.AddInt64(&e.readyDepth, -int64(n))
}

func (e *Engine) target() int {
	switch e.cfg.Mode {
	case Burst:
		return e.cfg.Bursts * e.cfg.BurstSize
	default:
		return e.cfg.FrameCount
	}
}

// Poll produces up to one unit of per-tick work (one frame for Flood/
// Backpressure, one full burst for Burst) and reports the units of work
// actually completed, per the worker runtime's poll() contract: engines
// bound their own per-poll work so other engines make progress.
func (e *Engine) Poll() int {
	if e.done {
		return 0
	}
	switch e.cfg.Mode {
	case Burst:
		return e.pollBurst()
	default:
		return e.pollOne()
	}
}

func (e *Engine) pollOne() int {
	if int(e.nextSeq) >= e.target() {
		e.done = true
		return 0
	}
	if !e.produceOne() {
		return 0
	}
	if int(e.nextSeq) >= e.target() {
		e.done = true
	}
	return 1
}

func (e *Engine) pollBurst() int {
	if e.burstsDone >= e.cfg.Bursts {
		e.done = true
		return 0
	}
	work := 0
	for e.burstProduced < e.cfg.BurstSize {
		if !e.produceOne() {
			break
		}
		e.burstProduced++
		work++
	}
	if e.burstProduced >= e.cfg.BurstSize {
		e.burstProduced = 0
		e.burstsDone++
		if e.burstsDone >= e.cfg.Bursts {
			e.done = true
		}
	}
	return work
}

// produceOne advances the acquire/publish-ready/publish-event state
// machine for the next sequence id by one backpressure-bounded step.
// Returns true once a full frame has been produced and announced; false
// on a would-block, in which case the next call resumes from the same
// stage rather than re-acquiring a slot (which would orphan one already
// published to the ready ring).
func (e *Engine) produceOne() bool {
	if e.stage == stageAcquire {
		idx, ok := e.handle.AcquireFreeSlot()
		if !ok {
			e.freeWaits.Add(1)
			e.handle.WaitForFreeSlot()
			return false
		}
		e.pendingIdx = idx
		e.pendingSeq = e.nextSeq
		e.stage = stagePublishReady
	}

	if e.stage == stagePublishReady {
		e.handle.WriteFrame(e.pendingIdx, e.pendingSeq)
		if !e.handle.PushReady(e.pendingIdx) {
			e.wouldBlockRdy.Add(1)
			e.handle.WaitForReadyDrain()
			return false
		}
		depth := atomic.AddInt64(&e.readyDepth, 1)
		var sw spin.Wait
		for {
			cur := e.maxReadyDepth.Load()
			if depth <= cur || e.maxReadyDepth.CompareAndSwap(cur, depth) {
				break
			}
			sw.Once()
		}
		e.stage = stagePublishEvent
	}

	// The slot index must be observable before the event that announces
	// it: PushReady happens-before TryPushEvent.
	if !e.handle.TryPushEvent(e.pendingSeq) {
		e.wouldBlockEvt.Add(1)
		e.handle.WaitForEventSpace()
		return false
	}

	e.nextSeq++
	e.produced.Add(1)
	e.stage = stageAcquire
	return true
}
