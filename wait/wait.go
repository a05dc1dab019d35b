// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wait provides a thin park-until-change / wake-one / wake-all
// shim over a 32-bit atomic address, the only blocking mechanism used by
// the transport fabric. Every other code path in the fabric is
// non-blocking.
//
// Go exposes no portable futex wait, so addresses are parked against a
// registry of condition variables keyed by pointer identity, one lot per
// distinct atomic address. This generalizes the edge-coalesced
// single-slot notification channel pattern (a buffered chan struct{} of
// size 1, drained non-blockingly before re-arming) into a primitive that
// supports true wake-one and wake-all semantics, which a single channel
// cannot express.
package wait

import (
	"sync"

	"code.hybscloud.com/atomix"
)

// Result reports why Wait returned.
type Result int

const (
	// Ok indicates a wake arrived or the value changed.
	Ok Result = iota
	// NotEqual indicates the observed value already differed from expected
	// at call time; Wait returned immediately without parking.
	NotEqual
)

type lot struct {
	mu   sync.Mutex
	cond *sync.Cond
}

var (
	registryMu sync.Mutex
	registry   = map[*atomix.Uint32]*lot{}
)

func lotFor(addr *atomix.Uint32) *lot {
	registryMu.Lock()
	defer registryMu.Unlock()
	l, ok := registry[addr]
	if !ok {
		l = &lot{}
		l.cond = sync.NewCond(&l.mu)
		registry[addr] = l
	}
	return l
}

// Wait parks the caller until addr's value diverges from expected, or a
// wake arrives. Returns NotEqual immediately if the value already differs.
// May return spuriously even when the value is unchanged; callers must
// re-check the condition they actually care about.
func Wait(addr *atomix.Uint32, expected uint32) Result {
	if addr.LoadAcquire() != expected {
		return NotEqual
	}
	l := lotFor(addr)
	l.mu.Lock()
	defer l.mu.Unlock()
	if addr.LoadAcquire() != expected {
		return NotEqual
	}
	l.cond.Wait()
	return Ok
}

// WaitForChange snapshots addr's current value and waits for it to differ.
func WaitForChange(addr *atomix.Uint32) {
	snapshot := addr.LoadAcquire()
	for addr.LoadAcquire() == snapshot {
		Wait(addr, snapshot)
	}
}

// WakeOne wakes at most one parker on addr.
func WakeOne(addr *atomix.Uint32) {
	registryMu.Lock()
	l, ok := registry[addr]
	registryMu.Unlock()
	if !ok {
		return
	}
	l.mu.Lock()
	l.cond.Signal()
	l.mu.Unlock()
}

// WakeAll wakes every parker on addr.
func WakeAll(addr *atomix.Uint32) {
	registryMu.Lock()
	l, ok := registry[addr]
	registryMu.Unlock()
	if !ok {
		return
	}
	l.mu.Lock()
	l.cond.Broadcast()
	l.mu.Unlock()
}
