package relay

import (
	"context"
	"testing"
	"time"
)

func TestMemoryIngestionStreamAppendRead(t *testing.T) {
	stream := NewMemoryIngestionStream(8)
	key := StreamKey{SessionID: "s1", SpeakerID: "a"}

	id, err := stream.Append(context.Background(), key, "en-US", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty record id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	record, err := stream.Read(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error reading: %v", err)
	}
	if record.RecordID != id {
		t.Fatalf("expected record id %q, got %q", id, record.RecordID)
	}
	if len(record.Data) != 3 {
		t.Fatalf("expected 3 bytes of data, got %d", len(record.Data))
	}
}

func TestMemoryIngestionStreamOrderWithinKey(t *testing.T) {
	stream := NewMemoryIngestionStream(8)
	key := StreamKey{SessionID: "s1", SpeakerID: "a"}
	ctx := context.Background()

	stream.Append(ctx, key, "en-US", []byte{1})
	stream.Append(ctx, key, "en-US", []byte{2})

	r1, _ := stream.Read(ctx, key)
	r2, _ := stream.Read(ctx, key)

	if r1.Data[0] != 1 || r2.Data[0] != 2 {
		t.Fatalf("expected append order preserved, got %v then %v", r1.Data, r2.Data)
	}
}

func TestMemoryIngestionStreamReadBlocksUntilCancelled(t *testing.T) {
	stream := NewMemoryIngestionStream(8)
	key := StreamKey{SessionID: "s1", SpeakerID: "a"}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := stream.Read(ctx, key)
	if err == nil {
		t.Fatal("expected context deadline error when nothing is appended")
	}
}
