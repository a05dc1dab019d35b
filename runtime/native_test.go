// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package runtime

import (
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/fabric/scenario"
)

// TestFloodScenario drives 10,000 frames through a single producer/
// consumer pair interleaving one produce with one full drain per step:
// it never needs to wait, since at most one frame is ever in flight
// against an 8-slot pool.
func TestFloodScenario(t *testing.T) {
	ch, err := NewNativeChannels()
	if err != nil {
		t.Fatalf("NewNativeChannels: %v", err)
	}
	const frames = 10000
	engine := scenario.NewEngine("flood", ch, scenario.Config{Mode: scenario.Flood, FrameCount: frames})
	consumer := NewNativeConsumer(ch)

	var seqs []uint64
	for !engine.Done() {
		engine.Poll()
		for _, s := range consumer.DrainReadyFrames(1) {
			engine.ObserveDrain(1)
			seqs = append(seqs, s)
		}
		consumer.DrainEvents(frames)
	}
	for {
		got := consumer.DrainReadyFrames(frames)
		if len(got) == 0 {
			break
		}
		engine.ObserveDrain(len(got))
		seqs = append(seqs, got...)
	}
	consumer.DrainEvents(frames)

	stats := engine.Snapshot()
	if stats.Produced != frames {
		t.Fatalf("produced = %d, want %d", stats.Produced, frames)
	}
	if stats.WouldBlockReady != 0 {
		t.Fatalf("would_block_ready = %d, want 0", stats.WouldBlockReady)
	}
	if stats.WouldBlockEvt != 0 {
		t.Fatalf("would_block_evt = %d, want 0", stats.WouldBlockEvt)
	}
	if len(seqs) != frames {
		t.Fatalf("observed %d frame sequence ids, want %d", len(seqs), frames)
	}
	for i, s := range seqs {
		if s != uint64(i) {
			t.Fatalf("frame order broken at %d: got seq %d", i, s)
		}
	}
	if err := consumer.AssertReconciliation(); err != nil {
		t.Fatalf("AssertReconciliation: %v", err)
	}
}

// TestBurstFairness is the "Burst fairness (bursts=40, burst_size=64,
// drain_budget=8)" property: the consumer only ever drains 8 records per
// iteration, so the producer (bounded by the 8-slot pool) never gets
// more than 8 frames ahead, even though it produces in 64-frame bursts.
func TestBurstFairness(t *testing.T) {
	ch, err := NewNativeChannels()
	if err != nil {
		t.Fatalf("NewNativeChannels: %v", err)
	}
	const bursts, burstSize, drainBudget = 40, 64, 8
	engine := scenario.NewEngine("burst", ch, scenario.Config{Mode: scenario.Burst, Bursts: bursts, BurstSize: burstSize})
	consumer := NewNativeConsumer(ch)

	var (
		mu   sync.Mutex
		seqs []uint64
	)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for !engine.Done() {
			engine.Poll()
		}
	}()

	go func() {
		defer wg.Done()
		want := bursts * burstSize
		for len(seqs) < want {
			got := consumer.DrainReadyFrames(drainBudget)
			if len(got) > 0 {
				engine.ObserveDrain(len(got))
				mu.Lock()
				seqs = append(seqs, got...)
				mu.Unlock()
			}
			consumer.DrainEvents(want)
			if len(got) == 0 {
				time.Sleep(time.Millisecond)
			}
		}
	}()

	wg.Wait()
	consumer.DrainEvents(bursts * burstSize)

	stats := engine.Snapshot()
	want := bursts * burstSize
	if stats.Produced != want {
		t.Fatalf("produced = %d, want %d", stats.Produced, want)
	}
	if stats.MaxReadyDepth > NativeFrameSlotCount {
		t.Fatalf("max_ready_depth = %d, want <= %d", stats.MaxReadyDepth, NativeFrameSlotCount)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seqs) != want {
		t.Fatalf("observed %d frames, want %d", len(seqs), want)
	}
	for i, s := range seqs {
		if s != uint64(i) {
			t.Fatalf("frame order broken at %d: got seq %d", i, s)
		}
	}
}

// TestBackpressure is the "Backpressure (frames=4096, pause_ms=25)"
// property: the consumer pauses mid-run, the producer must wait (either
// on a full ready ring or a depleted free ring), and every frame still
// arrives in order once the consumer resumes.
func TestBackpressure(t *testing.T) {
	ch, err := NewNativeChannels()
	if err != nil {
		t.Fatalf("NewNativeChannels: %v", err)
	}
	const frames = 4096
	engine := scenario.NewEngine("backpressure", ch, scenario.Config{Mode: scenario.Backpressure, FrameCount: frames})
	consumer := NewNativeConsumer(ch)

	var (
		mu   sync.Mutex
		seqs []uint64
	)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for !engine.Done() {
			engine.Poll()
		}
	}()

	go func() {
		defer wg.Done()
		time.Sleep(25 * time.Millisecond) // consumer pause mid-run, forcing backpressure
		for len(seqs) < frames {
			got := consumer.DrainReadyFrames(32)
			if len(got) > 0 {
				engine.ObserveDrain(len(got))
				mu.Lock()
				seqs = append(seqs, got...)
				mu.Unlock()
			}
			consumer.DrainEvents(frames)
			if len(got) == 0 {
				time.Sleep(time.Millisecond)
			}
		}
	}()

	wg.Wait()
	consumer.DrainEvents(frames)

	stats := engine.Snapshot()
	if stats.Produced != frames {
		t.Fatalf("produced = %d, want %d", stats.Produced, frames)
	}
	if stats.WouldBlockReady == 0 && stats.FreeWaits == 0 {
		t.Fatalf("expected the 25ms consumer pause to force at least one would_block_ready or free_wait, got neither")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seqs) != frames {
		t.Fatalf("observed %d frames, want %d", len(seqs), frames)
	}
	for i, s := range seqs {
		if s != uint64(i) {
			t.Fatalf("frame order broken at %d: got seq %d", i, s)
		}
	}
	if err := consumer.AssertReconciliation(); err != nil {
		t.Fatalf("AssertReconciliation: %v", err)
	}
}
