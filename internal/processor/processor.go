// Package processor consumes raw sensor payloads from the processing
// queue, decompresses and parses them, writes the raw bytes to object
// storage, and records the resulting object's metadata.
package processor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/biosig-io/pipeline/internal/db"
	"github.com/biosig-io/pipeline/internal/objectstore"
	"github.com/biosig-io/pipeline/internal/packet"
	"github.com/biosig-io/pipeline/internal/svcerr"
)


// Service processes one delivery at a time: decompress, parse, store,
// record.
type Service struct {
	Store     objectstore.Store
	DB        *db.DB
	RawBucket string
	Log       zerolog.Logger

	decoder *zstd.Decoder
}

// New constructs a Service with a shared zstd decoder, which is safe for
// sequential reuse across deliveries within one consumer goroutine.
func New(store objectstore.Store, database *db.DB, rawBucket string, log zerolog.Logger) (*Service, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	return &Service{Store: store, DB: database, RawBucket: rawBucket, Log: log, decoder: dec}, nil
}

// Handle implements broker.Handler.
func (s *Service) Handle(ctx context.Context, d amqp.Delivery) error {
	userIDVal, ok := d.Headers["user_id"]
	if !ok {
		return svcerr.NewValidation(fmt.Errorf("missing user_id header"))
	}
	userID, ok := userIDVal.(string)
	if !ok || userID == "" {
		return svcerr.NewValidation(fmt.Errorf("invalid user_id header"))
	}

	raw, err := s.decoder.DecodeAll(d.Body, nil)
	if err != nil {
		return svcerr.NewValidation(fmt.Errorf("zstd decode: %w", err))
	}

	view, err := packet.Parse(raw)
	if err != nil {
		return svcerr.NewValidation(fmt.Errorf("parse packet: %w", err))
	}
	if view.Empty() {
		return svcerr.NewValidation(fmt.Errorf("packet has no samples"))
	}

	// id is derived deterministically from the delivery's content (not
	// uuid.New()) so that redelivering the same decompressed message
	// after a lost ack reproduces the same object_id and object-store
	// key, letting InsertRawDataObject's ON CONFLICT (object_key) DO
	// NOTHING actually dedupe instead of inserting a second row.
	id := uuid.NewSHA1(uuid.NameSpaceOID, append([]byte(userID+"\x00"+view.DeviceID()+"\x00"), raw...))
	startDevice := view.FirstTimestampUS()
	endDevice := view.LastTimestampUS()
	startMS := int64(startDevice) / 1000
	endMS := int64(endDevice) / 1000

	key := fmt.Sprintf("raw/%s/%s/start_ms=%d/end_ms=%d_%s.bin", userID, view.DeviceID(), startMS, endMS, id)

	if err := s.Store.Put(ctx, s.RawBucket, key, raw, "application/octet-stream"); err != nil {
		return fmt.Errorf("store raw object: %w", err)
	}

	err = s.DB.InsertRawDataObject(ctx, db.RawDataObject{
		ID:              id,
		UserID:          userID,
		DeviceID:        view.DeviceID(),
		ObjectKey:       key,
		StartMS:         startMS,
		EndMS:           endMS,
		StartTimeDevice: startDevice,
		EndTimeDevice:   endDevice,
		SampleCount:     view.NumSamples(),
	})
	if err != nil {
		return fmt.Errorf("insert raw data object: %w", err)
	}

	return nil
}
