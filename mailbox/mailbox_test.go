// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mailbox

import (
	"encoding/binary"
	"testing"
)

func mustMailbox(t *testing.T, capacity int) *Mailbox {
	t.Helper()
	m, err := New(capacity)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestEmptyMailboxTakeLatest(t *testing.T) {
	m := mustMailbox(t, 8)
	if _, _, ok := m.TakeLatest(); ok {
		t.Fatal("expected empty mailbox to report no value")
	}
}

// TestLastWriteWins: submitting Set(1)..Set(10) yields one Accepted
// followed by nine Coalesced, and a single TakeLatest after all writes
// returns exactly 10.
func TestLastWriteWins(t *testing.T) {
	m := mustMailbox(t, 4)
	env := Envelope{Tag: 7, Ver: 1}

	var outcomes []Outcome
	for v := 1; v <= 10; v++ {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(v))
		outcome, err := m.TrySend(env, buf[:])
		if err != nil {
			t.Fatalf("TrySend(%d): %v", v, err)
		}
		outcomes = append(outcomes, outcome)
	}

	if outcomes[0] != Accepted {
		t.Fatalf("first send: expected Accepted, got %v", outcomes[0])
	}
	for i := 1; i < len(outcomes); i++ {
		if outcomes[i] != Coalesced {
			t.Fatalf("send %d: expected Coalesced, got %v", i+1, outcomes[i])
		}
	}

	gotEnv, payload, ok := m.TakeLatest()
	if !ok {
		t.Fatal("expected a value after 10 writes")
	}
	if gotEnv != env {
		t.Fatalf("envelope mismatch: got %+v", gotEnv)
	}
	if got := binary.LittleEndian.Uint32(payload); got != 10 {
		t.Fatalf("expected latest value 10, got %d", got)
	}

	if _, _, ok := m.TakeLatest(); ok {
		t.Fatal("expected mailbox empty after a single drain")
	}
}

func TestOversizePayloadRejected(t *testing.T) {
	m := mustMailbox(t, 4)
	if _, err := m.TrySend(Envelope{}, make([]byte, 5)); err == nil {
		t.Fatal("expected an error for an oversize payload")
	}
}
