package objectstore

import (
	"context"
	"testing"
)

func TestFakePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	if err := f.Put(ctx, "raw-data", "raw/u1/d1/start_ms=0/end_ms=1_abc.bin", []byte("payload"), "application/octet-stream"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := f.Get(ctx, "raw-data", "raw/u1/d1/start_ms=0/end_ms=1_abc.bin")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Get = %q, want %q", got, "payload")
	}
}

func TestFakeExists(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	ok, err := f.Exists(ctx, "raw-data", "missing")
	if err != nil || ok {
		t.Fatalf("Exists on missing key = %v, %v", ok, err)
	}
	_ = f.Put(ctx, "raw-data", "present", []byte("x"), "application/octet-stream")
	ok, err = f.Exists(ctx, "raw-data", "present")
	if err != nil || !ok {
		t.Fatalf("Exists on present key = %v, %v", ok, err)
	}
}

func TestFakeGetMissingReturnsError(t *testing.T) {
	f := NewFake()
	if _, err := f.Get(context.Background(), "raw-data", "nope"); err == nil {
		t.Fatal("expected error for missing object")
	}
}
