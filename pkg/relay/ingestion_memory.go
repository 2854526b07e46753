package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MemoryIngestionStream is an in-process IngestionStream for tests and
// single-process deployments: one bounded channel per StreamKey,
// append-ordered within a key, no ordering guarantee across keys — the
// same contract spec §5 requires of the real thing.
type MemoryIngestionStream struct {
	capacity int
	counter  int64

	mu    sync.Mutex
	lanes map[StreamKey]chan IngestionRecord
}

func NewMemoryIngestionStream(capacity int) *MemoryIngestionStream {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryIngestionStream{
		capacity: capacity,
		lanes:    make(map[StreamKey]chan IngestionRecord),
	}
}

func (m *MemoryIngestionStream) laneFor(key StreamKey) chan IngestionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	lane, ok := m.lanes[key]
	if !ok {
		lane = make(chan IngestionRecord, m.capacity)
		m.lanes[key] = lane
	}
	return lane
}

func (m *MemoryIngestionStream) Append(ctx context.Context, key StreamKey, sourceLang Language, data []byte) (string, error) {
	id := fmt.Sprintf("%s-%d", key.String(), atomic.AddInt64(&m.counter, 1))
	record := IngestionRecord{
		RecordID:   id,
		SessionID:  key.SessionID,
		SpeakerID:  key.SpeakerID,
		SourceLang: sourceLang,
		Data:       data,
	}
	lane := m.laneFor(key)
	select {
	case lane <- record:
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		// Backpressure: bounded lane is full. Block with the caller's
		// context rather than dropping, matching the "bounded, with
		// configurable block timeout" contract.
		select {
		case lane <- record:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return id, nil
}

func (m *MemoryIngestionStream) Read(ctx context.Context, key StreamKey) (IngestionRecord, error) {
	lane := m.laneFor(key)
	select {
	case record := <-lane:
		return record, nil
	case <-ctx.Done():
		return IngestionRecord{}, ctx.Err()
	}
}

// Ack is a no-op for the in-memory stream: Read already removed the
// record from the lane, so there is nothing left to acknowledge. Kept to
// satisfy the interface and the "transport still receives its
// acknowledgment" contract for duplicate records.
func (m *MemoryIngestionStream) Ack(ctx context.Context, key StreamKey, recordID string) error {
	return nil
}
