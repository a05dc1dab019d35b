// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package port

import (
	"testing"

	"code.hybscloud.com/fabric/mailbox"
	"code.hybscloud.com/fabric/msgring"
)

func mustRingPort(t *testing.T, capacity int, class Class) *Port {
	t.Helper()
	ring, err := msgring.New(capacity, 1, msgring.Envelope{Tag: 1, Ver: 1})
	if err != nil {
		t.Fatalf("msgring.New: %v", err)
	}
	p, err := NewRing(ring, class)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	return p
}

func TestInvalidPairingRejectedAtConstruction(t *testing.T) {
	ring, _ := msgring.New(64, 1, msgring.Envelope{})
	if _, err := NewRing(ring, Coalesce); err == nil {
		t.Fatal("expected error constructing a ring port with Coalesce class")
	}
	mb, _ := mailbox.New(8)
	if _, err := NewMailbox(mb, Lossless); err == nil {
		t.Fatal("expected error constructing a mailbox port with Lossless class")
	}
}

func TestLosslessWouldBlockOnFull(t *testing.T) {
	p := mustRingPort(t, 64, Lossless)
	producer := p.Producer()
	for {
		outcome, err := producer.TrySend(Envelope{Tag: 1}, make([]byte, 8))
		if err != nil {
			t.Fatalf("TrySend: %v", err)
		}
		if outcome == WouldBlock {
			break
		}
	}
	if snap := p.Snapshot(); snap.WouldBlock == 0 {
		t.Fatal("expected WouldBlock counter to be incremented")
	}
}

func TestBestEffortDropsOnFull(t *testing.T) {
	p := mustRingPort(t, 64, BestEffort)
	producer := p.Producer()
	var droppedSeen bool
	for i := 0; i < 50; i++ {
		outcome, err := producer.TrySend(Envelope{Tag: 1}, make([]byte, 8))
		if err != nil {
			t.Fatalf("TrySend: %v", err)
		}
		if outcome == Dropped {
			droppedSeen = true
			break
		}
	}
	if !droppedSeen {
		t.Fatal("expected at least one Dropped outcome")
	}
}

func TestCoalesceNeverWouldBlock(t *testing.T) {
	mb, _ := mailbox.New(8)
	p, err := NewMailbox(mb, Coalesce)
	if err != nil {
		t.Fatalf("NewMailbox: %v", err)
	}
	producer := p.Producer()
	for i := 0; i < 100; i++ {
		outcome, err := producer.TrySend(Envelope{Tag: 2}, []byte{byte(i)})
		if err != nil {
			t.Fatalf("TrySend: %v", err)
		}
		if outcome == WouldBlock || outcome == Dropped {
			t.Fatalf("coalesce class must never report %v", outcome)
		}
	}
}

func TestClassRouting(t *testing.T) {
	ringPort := mustRingPort(t, 256, Lossless)
	mb, _ := mailbox.New(8)
	mailPort, err := NewMailbox(mb, Coalesce)
	if err != nil {
		t.Fatalf("NewMailbox: %v", err)
	}

	if _, err := ringPort.Producer().TrySend(Envelope{Tag: 1}, []byte("ring")); err != nil {
		t.Fatalf("ring TrySend: %v", err)
	}
	if _, err := mailPort.Producer().TrySend(Envelope{Tag: 2}, []byte("mail")); err != nil {
		t.Fatalf("mailbox TrySend: %v", err)
	}

	var ringGot, mailGot []byte
	ringPort.Consumer().DrainRecords(10, func(env Envelope, payload []byte) {
		ringGot = append([]byte(nil), payload...)
	})
	mailPort.Consumer().DrainRecords(10, func(env Envelope, payload []byte) {
		mailGot = append([]byte(nil), payload...)
	})

	if string(ringGot) != "ring" {
		t.Fatalf("expected the ring-routed record on the ring port, got %q", ringGot)
	}
	if string(mailGot) != "mail" {
		t.Fatalf("expected the coalesce-routed record on the mailbox port, got %q", mailGot)
	}
}
