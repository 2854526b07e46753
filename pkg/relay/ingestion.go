package relay

import (
	"context"
)

// IngestionRecord is one appended frame of inbound audio, per spec §6's
// ingestion record shape.
type IngestionRecord struct {
	RecordID   string
	SessionID  string
	SpeakerID  string
	SourceLang Language
	Data       []byte
}

// IngestionStream is the durable, append-only, at-least-once transport for
// raw inbound audio (spec §4.6), distinct from the best-effort SessionBus.
// Consumers form a logical consumer group and acknowledge by record ID;
// the Deduplicator filters redelivered records for effective-once
// processing downstream.
type IngestionStream interface {
	// Append writes one record for streamKey (partition) and returns its
	// assigned record ID.
	Append(ctx context.Context, streamKey StreamKey, sourceLang Language, data []byte) (recordID string, err error)

	// Read blocks (up to the stream's configured block timeout) for the
	// next unacknowledged record in streamKey's partition.
	Read(ctx context.Context, streamKey StreamKey) (IngestionRecord, error)

	// Ack acknowledges a record by ID so it is not redelivered.
	Ack(ctx context.Context, streamKey StreamKey, recordID string) error
}
