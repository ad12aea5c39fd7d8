package mediaprocessor

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/biosig-io/pipeline/internal/db"
	"github.com/biosig-io/pipeline/internal/objectstore"
)

func TestHandleRejectsMissingUserID(t *testing.T) {
	s := New(objectstore.NewFake(), db.NewFake(), "media", zerolog.Nop())
	d := amqp.Delivery{Headers: amqp.Table{}, ContentType: "image/jpeg", Body: []byte("x")}
	if err := s.Handle(context.Background(), d); err == nil {
		t.Fatal("expected error for missing user_id header")
	}
}

func TestHandleRejectsUnsupportedContentType(t *testing.T) {
	s := New(objectstore.NewFake(), db.NewFake(), "media", zerolog.Nop())
	d := amqp.Delivery{Headers: amqp.Table{"user_id": "u1"}, ContentType: "text/plain", Body: []byte("x")}
	if err := s.Handle(context.Background(), d); err == nil {
		t.Fatal("expected error for unsupported content type")
	}
}

func TestHandleRejectsEmptyBody(t *testing.T) {
	s := New(objectstore.NewFake(), db.NewFake(), "media", zerolog.Nop())
	d := amqp.Delivery{Headers: amqp.Table{"user_id": "u1"}, ContentType: "image/jpeg", Body: nil}
	if err := s.Handle(context.Background(), d); err == nil {
		t.Fatal("expected error for empty body")
	}
}

// TestHandleRejectsImageMissingTimestamp matches spec.md S3's shape: an
// upload missing the mimetype-required timestamp header must be rejected
// rather than stored with a fabricated time.
func TestHandleRejectsImageMissingTimestamp(t *testing.T) {
	s := New(objectstore.NewFake(), db.NewFake(), "media", zerolog.Nop())
	d := amqp.Delivery{
		Headers:     amqp.Table{"user_id": "u1", "session_id": "s1"},
		ContentType: "image/png",
		Body:        []byte("x"),
	}
	if err := s.Handle(context.Background(), d); err == nil {
		t.Fatal("expected error for image upload missing timestamp_utc")
	}
}

// TestHandleRejectsAudioMissingStartEnd matches spec.md S3: an audio
// upload with only timestamp_utc set (no start/end_time_utc) must be
// rejected.
func TestHandleRejectsAudioMissingStartEnd(t *testing.T) {
	s := New(objectstore.NewFake(), db.NewFake(), "media", zerolog.Nop())
	d := amqp.Delivery{
		Headers:     amqp.Table{"user_id": "u1", "session_id": "s1", "timestamp_utc": "2025-01-01T00:00:01.000Z"},
		ContentType: "audio/wav",
		Body:        []byte("x"),
	}
	if err := s.Handle(context.Background(), d); err == nil {
		t.Fatal("expected error for audio upload missing start_time_utc/end_time_utc")
	}
}

// TestHandleImageProducesSpecKey matches spec.md S2: an image upload for
// user u1/session s1 with timestamp_utc=2025-01-01T00:00:01.000Z must be
// stored at media/u1/s1/1735689601000_photo.png and recorded with that
// session id and timestamp.
func TestHandleImageProducesSpecKey(t *testing.T) {
	store := objectstore.NewFake()
	fake := db.NewFake()
	s := New(store, fake, "media", zerolog.Nop())

	sessionID := "00000000-0000-0000-0000-000000000001"
	d := amqp.Delivery{
		Headers: amqp.Table{
			"user_id": "u1", "session_id": sessionID,
			"timestamp_utc": "2025-01-01T00:00:01.000Z",
		},
		ContentType: "image/png",
		Body:        []byte("fake-png-bytes"),
	}
	if err := s.Handle(context.Background(), d); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	wantKey := "media/u1/" + sessionID + "/1735689601000_photo.png"
	keys := store.Keys("media")
	if len(keys) != 1 || keys[0] != wantKey {
		t.Fatalf("stored keys = %v, want [%s]", keys, wantKey)
	}

	if len(fake.Images) != 1 {
		t.Fatalf("expected one recorded image, got %d", len(fake.Images))
	}
	for _, img := range fake.Images {
		if img.ObjectKey != wantKey || img.TimestampMS != 1735689601000 || img.SessionID == nil || img.SessionID.String() != sessionID {
			t.Fatalf("unexpected recorded image: %+v", img)
		}
	}
}

// TestHandleAudioComputesDuration exercises the audio path's object key
// and duration derivation from start_time_utc/end_time_utc.
func TestHandleAudioComputesDuration(t *testing.T) {
	store := objectstore.NewFake()
	fake := db.NewFake()
	s := New(store, fake, "media", zerolog.Nop())

	sessionID := "00000000-0000-0000-0000-000000000002"
	d := amqp.Delivery{
		Headers: amqp.Table{
			"user_id": "u1", "session_id": sessionID,
			"start_time_utc": "2025-01-01T00:00:01.000Z",
			"end_time_utc":   "2025-01-01T00:00:03.500Z",
		},
		ContentType: "audio/wav",
		Body:        []byte("fake-wav-bytes"),
	}
	if err := s.Handle(context.Background(), d); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(fake.Audio) != 1 {
		t.Fatalf("expected one recorded audio clip, got %d", len(fake.Audio))
	}
	for _, a := range fake.Audio {
		if a.TimestampMS != 1735689601000 || a.DurationMS == nil || *a.DurationMS != 2500 {
			t.Fatalf("unexpected recorded audio clip: %+v", a)
		}
	}
}

func TestExtensionFor(t *testing.T) {
	cases := map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"audio/mpeg": ".mp3",
		"audio/wav":  ".wav",
		"image/webp": ".img",
		"audio/ogg":  ".audio",
	}
	for mime, want := range cases {
		if got := extensionFor(mime); got != want {
			t.Errorf("extensionFor(%q) = %q, want %q", mime, got, want)
		}
	}
}
