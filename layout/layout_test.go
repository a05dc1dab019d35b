// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package layout

import (
	"bytes"
	"testing"

	"code.hybscloud.com/fabric/mailbox"
	"code.hybscloud.com/fabric/msgring"
	"code.hybscloud.com/fabric/port"
	"code.hybscloud.com/fabric/slotpool"
)

// TestRingRoundTrip is testable property 7 for a ring-backed port:
// serialize a descriptor, deserialize it, attach over the same bytes,
// and exchange one record: values match bit for bit.
func TestRingRoundTrip(t *testing.T) {
	ring, err := msgring.New(256, 0xdead, msgring.Envelope{})
	if err != nil {
		t.Fatalf("msgring.New: %v", err)
	}
	p, err := port.NewRing(ring, port.Lossless)
	if err != nil {
		t.Fatalf("port.NewRing: %v", err)
	}

	want := []byte("layout round-trip payload")
	if _, err := p.Producer().TrySend(port.Envelope{Tag: 7, Ver: 1}, want); err != nil {
		t.Fatalf("TrySend: %v", err)
	}

	desc, err := DescribePort(CmdLossless, p)
	if err != nil {
		t.Fatalf("DescribePort: %v", err)
	}
	archive := Descriptor{Version: SchemaVersionV1, Ports: []PortDescriptor{desc}}
	encoded := archive.Encode()
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Ports) != 1 || decoded.Ports[0] != desc {
		t.Fatalf("decoded descriptor mismatch: got %+v, want %+v", decoded.Ports, desc)
	}

	attached, err := AttachPort(decoded.Ports[0], ring.Bytes(), port.Lossless)
	if err != nil {
		t.Fatalf("AttachPort: %v", err)
	}

	drained := 0
	attached.Consumer().DrainRecords(1, func(env port.Envelope, payload []byte) {
		drained++
		if env.Tag != 7 || env.Ver != 1 {
			t.Fatalf("envelope mismatch: %+v", env)
		}
		if !bytes.Equal(payload, want) {
			t.Fatalf("payload mismatch: got %q, want %q", payload, want)
		}
	})
	if drained != 1 {
		t.Fatalf("expected to drain 1 record via attached port, got %d", drained)
	}
}

// TestMailboxRoundTrip mirrors TestRingRoundTrip for a mailbox-backed
// port.
func TestMailboxRoundTrip(t *testing.T) {
	mb, err := mailbox.New(64)
	if err != nil {
		t.Fatalf("mailbox.New: %v", err)
	}
	p, err := port.NewMailbox(mb, port.Coalesce)
	if err != nil {
		t.Fatalf("port.NewMailbox: %v", err)
	}
	want := []byte("latest value")
	if _, err := p.Producer().TrySend(port.Envelope{Tag: 9, Ver: 1}, want); err != nil {
		t.Fatalf("TrySend: %v", err)
	}

	desc, err := DescribePort(CmdMailbox, p)
	if err != nil {
		t.Fatalf("DescribePort: %v", err)
	}
	archive := Descriptor{Version: SchemaVersionV1, Ports: []PortDescriptor{desc}}
	decoded, err := Decode(archive.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	attached, err := AttachPort(decoded.Ports[0], mb.Bytes(), port.Coalesce)
	if err != nil {
		t.Fatalf("AttachPort: %v", err)
	}
	var got []byte
	attached.Consumer().DrainRecords(1, func(env port.Envelope, payload []byte) {
		got = append([]byte(nil), payload...)
	})
	if !bytes.Equal(got, want) {
		t.Fatalf("payload mismatch: got %q, want %q", got, want)
	}
}

// TestSlotPoolRoundTrip mirrors TestRingRoundTrip for a slot pool: after
// attaching over the same bytes, the attached view sees the same slot
// contents and free/ready state.
func TestSlotPoolRoundTrip(t *testing.T) {
	pool, err := slotpool.New(slotpool.Config{SlotCount: 4, SlotSize: 32})
	if err != nil {
		t.Fatalf("slotpool.New: %v", err)
	}
	idx, ok := pool.TryAcquireFree()
	if !ok {
		t.Fatal("expected a free slot")
	}
	copy(pool.SlotBytes(idx), []byte("slot payload"))
	if push := pool.PushReady(idx); push != slotpool.PushOk {
		t.Fatalf("PushReady: %v", push)
	}

	desc := DescribeSlotPool(0, pool)
	archive := Descriptor{Version: SchemaVersionV1, SlotPools: []SlotPoolDescriptor{desc}}
	decoded, err := Decode(archive.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	attached, err := AttachSlotPool(decoded.SlotPools[0], pool.Bytes())
	if err != nil {
		t.Fatalf("AttachSlotPool: %v", err)
	}
	gotIdx, ok := attached.PopReady()
	if !ok {
		t.Fatal("expected ready slot via attached pool")
	}
	if gotIdx != idx {
		t.Fatalf("slot index mismatch: got %d, want %d", gotIdx, idx)
	}
	if string(attached.SlotBytes(gotIdx)[:12]) != "slot payload" {
		t.Fatalf("slot payload mismatch: %q", attached.SlotBytes(gotIdx)[:12])
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	archive := Descriptor{Version: SchemaVersionV1}
	data := archive.Encode()
	data[4] = byte(SchemaVersionV1 + 1) // corrupt the version field
	if _, err := Decode(data); err == nil {
		t.Fatal("expected version mismatch error")
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected truncated error")
	}
}
