// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package slotpool

import "testing"

func mustPool(t *testing.T, slotCount uint32, slotSize int) *SlotPool {
	t.Helper()
	p, err := New(Config{SlotCount: slotCount, SlotSize: slotSize})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestLifecycleRoundtrip(t *testing.T) {
	p := mustPool(t, 8, 128)

	idx, ok := p.TryAcquireFree()
	if !ok {
		t.Fatal("expected a free slot")
	}
	copy(p.SlotBytes(idx), []byte("hello"))

	if push := p.PushReady(idx); push != PushOk {
		t.Fatalf("PushReady: %v", push)
	}

	got, ok := p.PopReady()
	if !ok {
		t.Fatal("expected ready slot")
	}
	if got != idx {
		t.Fatalf("expected slot %d, got %d", idx, got)
	}
	if string(p.SlotBytes(got)[:5]) != "hello" {
		t.Fatal("slot bytes did not round-trip")
	}
	p.ReleaseFree(got)
}

func TestSlotAlignmentAndLength(t *testing.T) {
	p := mustPool(t, 4, 100) // rounds up to 128
	if p.SlotSize() != 128 {
		t.Fatalf("expected slot size 128, got %d", p.SlotSize())
	}
	if len(p.SlotBytes(0)) != 128 {
		t.Fatalf("expected slot byte length 128, got %d", len(p.SlotBytes(0)))
	}
}

func TestReadyRingFIFO(t *testing.T) {
	p := mustPool(t, 8, 64)
	var acquired []uint32
	for {
		idx, ok := p.TryAcquireFree()
		if !ok {
			break
		}
		acquired = append(acquired, idx)
		if push := p.PushReady(idx); push != PushOk {
			t.Fatalf("PushReady(%d): %v", idx, push)
		}
	}
	for _, want := range acquired {
		got, ok := p.PopReady()
		if !ok {
			t.Fatal("expected ready slot")
		}
		if got != want {
			t.Fatalf("FIFO violated: want %d, got %d", want, got)
		}
		p.ReleaseFree(got)
	}
}

// TestChurnDoesNotLeakSlots is the Go analogue of testable property 5
// (slot-pool conservation): after any finite sequence of
// acquire/publish/pop/release, the union of free + ready + in-flight
// indices equals {0, ..., slot_count-1} with no duplicates.
func TestChurnDoesNotLeakSlots(t *testing.T) {
	const slotCount = 16
	p := mustPool(t, slotCount, 64)

	var inFlight []uint32
	for round := 0; round < 5000; round++ {
		if idx, ok := p.TryAcquireFree(); ok {
			inFlight = append(inFlight, idx)
		}
		if len(inFlight) > 0 && round%3 == 0 {
			idx := inFlight[0]
			inFlight = inFlight[1:]
			if push := p.PushReady(idx); push == PushOk {
				// published; consumer will pop it below
			} else {
				inFlight = append([]uint32{idx}, inFlight...)
			}
		}
		if idx, ok := p.PopReady(); ok {
			p.ReleaseFree(idx)
		}
	}

	for _, idx := range inFlight {
		p.PushReady(idx)
	}
	for {
		idx, ok := p.PopReady()
		if !ok {
			break
		}
		p.ReleaseFree(idx)
	}

	seen := make(map[uint32]bool, slotCount)
	count := 0
	for {
		idx, ok := p.TryAcquireFree()
		if !ok {
			break
		}
		if seen[idx] {
			t.Fatalf("slot %d observed twice in free ring", idx)
		}
		seen[idx] = true
		count++
	}
	if count != slotCount {
		t.Fatalf("expected all %d slots free, got %d", slotCount, count)
	}
	for i := uint32(0); i < slotCount; i++ {
		if !seen[i] {
			t.Fatalf("slot %d missing after churn", i)
		}
		p.ReleaseFree(i)
	}
}
