// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package runtime

import (
	"encoding/binary"
	"fmt"

	"code.hybscloud.com/fabric/msgring"
	"code.hybscloud.com/fabric/slotpool"
)

// NativeFrameSlotCount, NativeFrameSlotSize, and NativeEventRingSize are
// the fabric's concrete production shape: 8 frame slots of 128KiB each,
// backed by a 512KiB event ring.
const (
	NativeFrameSlotCount = 8
	NativeFrameSlotSize  = 128 * 1024
	NativeEventRingSize  = 512 * 1024
)

const nativeEventTag uint8 = 0x20

// NativeChannels wires one frame slot pool (NativeFrameSlotCount slots
// of NativeFrameSlotSize bytes each) to one event MsgRing
// (NativeEventRingSize bytes), the concrete harness the flood/burst/
// backpressure scenarios exercise. It satisfies scenario.FabricHandle.
type NativeChannels struct {
	Frames *slotpool.SlotPool
	Events *msgring.MsgRing
}

// NewNativeChannels allocates a NativeChannels harness at the fabric's
// production shape.
func NewNativeChannels() (*NativeChannels, error) {
	frames, err := slotpool.New(slotpool.Config{SlotCount: NativeFrameSlotCount, SlotSize: NativeFrameSlotSize})
	if err != nil {
		return nil, fmt.Errorf("runtime: native frame pool: %w", err)
	}
	events, err := msgring.New(NativeEventRingSize, 0, msgring.Envelope{Tag: nativeEventTag, Ver: 1})
	if err != nil {
		return nil, fmt.Errorf("runtime: native event ring: %w", err)
	}
	return &NativeChannels{Frames: frames, Events: events}, nil
}

// AcquireFreeSlot implements scenario.FabricHandle.
func (n *NativeChannels) AcquireFreeSlot() (uint32, bool) { return n.Frames.TryAcquireFree() }

// WaitForFreeSlot implements scenario.FabricHandle.
func (n *NativeChannels) WaitForFreeSlot() { n.Frames.WaitForFreeSlot() }

// WithFrameSlotMut implements scenario.FabricHandle.
func (n *NativeChannels) WithFrameSlotMut(idx uint32, fn func(buf []byte)) {
	fn(n.Frames.SlotBytes(idx))
}

// WriteFrame implements scenario.FabricHandle by stamping seq as the
// slot's first 8 bytes.
func (n *NativeChannels) WriteFrame(idx uint32, seq uint64) {
	n.WithFrameSlotMut(idx, func(buf []byte) {
		binary.LittleEndian.PutUint64(buf, seq)
	})
}

// PushReady implements scenario.FabricHandle.
func (n *NativeChannels) PushReady(idx uint32) bool {
	return n.Frames.PushReady(idx) == slotpool.PushOk
}

// WaitForReadyDrain implements scenario.FabricHandle.
func (n *NativeChannels) WaitForReadyDrain() { n.Frames.WaitForReadyDrain() }

// TryPushEvent implements scenario.FabricHandle by sending seq as an
// 8-byte little-endian payload on the event ring.
func (n *NativeChannels) TryPushEvent(seq uint64) bool {
	grant, err := n.Events.TryReserve(8)
	if err != nil {
		return false
	}
	binary.LittleEndian.PutUint64(grant.Payload(), seq)
	_ = grant.Commit(8)
	return true
}

// WaitForEventSpace implements scenario.FabricHandle, parking until the
// event ring's consumer advances its tail and frees up room.
func (n *NativeChannels) WaitForEventSpace() { n.Events.WaitForConsumerAdvance() }

// ReadFrame returns the frame sequence id written at slot idx.
func (n *NativeChannels) ReadFrame(idx uint32) uint64 {
	return binary.LittleEndian.Uint64(n.Frames.SlotBytes(idx))
}

// NativeConsumer drains a NativeChannels' event ring (DrainEvents) and
// frame ready ring (DrainReadyFrames) through two independent calls, each
// returning the sequence ids it observed in arrival order. It is the
// test/demo consumer counterpart to the scenario package's producer Engine.
type NativeConsumer struct {
	ch *NativeChannels
}

// NewNativeConsumer constructs a consumer draining ch.
func NewNativeConsumer(ch *NativeChannels) *NativeConsumer { return &NativeConsumer{ch: ch} }

// DrainEvents decodes up to max events from the event ring, returning
// the sequence ids observed in arrival order.
func (c *NativeConsumer) DrainEvents(max int) []uint64 {
	seqs := make([]uint64, 0, max)
	for len(seqs) < max {
		env, payload, ok := c.ch.Events.ConsumerPeek()
		if !ok {
			break
		}
		_ = env
		seqs = append(seqs, binary.LittleEndian.Uint64(payload))
		c.ch.Events.ConsumerAdvance()
	}
	return seqs
}

// DrainReadyFrames pops up to max ready frame slots, reads their
// sequence id, releases them back to the free ring, and returns the
// sequence ids observed in arrival order. The slice's length is the count
// drained, which a caller passes to a scenario.Engine's ObserveDrain.
func (c *NativeConsumer) DrainReadyFrames(max int) (seqs []uint64) {
	for len(seqs) < max {
		idx, ok := c.ch.Frames.PopReady()
		if !ok {
			break
		}
		seqs = append(seqs, c.ch.ReadFrame(idx))
		c.ch.Frames.ReleaseFree(idx)
	}
	return seqs
}

// AssertReconciliation reports whether every frame slot has returned
// free and the event ring has drained to empty: an executable check of
// the slot pool's conservation property at the end of a run.
func (c *NativeConsumer) AssertReconciliation() error {
	freeCount := 0
	var reacquired []uint32
	for {
		idx, ok := c.ch.Frames.TryAcquireFree()
		if !ok {
			break
		}
		reacquired = append(reacquired, idx)
		freeCount++
	}
	for _, idx := range reacquired {
		c.ch.Frames.ReleaseFree(idx)
	}
	if freeCount != NativeFrameSlotCount {
		return fmt.Errorf("runtime: reconciliation failed: %d/%d frame slots free", freeCount, NativeFrameSlotCount)
	}
	if _, _, ok := c.ch.Events.ConsumerPeek(); ok {
		return fmt.Errorf("runtime: reconciliation failed: event ring not drained")
	}
	return nil
}
