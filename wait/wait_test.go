// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wait

import (
	"testing"
	"time"

	"code.hybscloud.com/atomix"
)

func TestWaitNotEqualReturnsImmediately(t *testing.T) {
	var v atomix.Uint32
	v.StoreRelaxed(7)
	if got := Wait(&v, 0); got != NotEqual {
		t.Fatalf("Wait() = %v, want NotEqual", got)
	}
}

func TestWaitForChangeWakesOnWakeAll(t *testing.T) {
	var v atomix.Uint32
	done := make(chan struct{})
	go func() {
		WaitForChange(&v)
		close(done)
	}()

	// Give the waiter time to park before mutating and waking it; this is
	// inherently racy but a generous sleep keeps it well clear of flaking
	// on typical CI hardware.
	time.Sleep(20 * time.Millisecond)
	v.StoreRelease(1)
	WakeAll(&v)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForChange did not return after WakeAll")
	}
}

func TestWaitForChangeWakesOnWakeOne(t *testing.T) {
	var v atomix.Uint32
	done := make(chan struct{})
	go func() {
		WaitForChange(&v)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	v.StoreRelease(1)
	WakeOne(&v)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForChange did not return after WakeOne")
	}
}

func TestWakeWithNoParkersIsNoop(t *testing.T) {
	var v atomix.Uint32
	WakeOne(&v)
	WakeAll(&v)
}
