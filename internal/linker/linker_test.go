package linker

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/biosig-io/pipeline/internal/clockwrap"
	"github.com/biosig-io/pipeline/internal/db"
)

type fakeSessionLookup struct {
	windows []SessionWindow
}

func (f *fakeSessionLookup) OpenSessionWindows(ctx context.Context, userID, deviceID string) ([]SessionWindow, error) {
	return f.windows, nil
}

func TestLinkUserDeviceNoObjectsIsNoop(t *testing.T) {
	fake := db.NewFake()
	svc := New(fake, &fakeSessionLookup{}, zerolog.Nop())

	if err := svc.LinkUserDevice(context.Background(), "u1", "d1"); err != nil {
		t.Fatalf("LinkUserDevice: %v", err)
	}
}

func TestLinkUserDeviceLinksOverlappingObject(t *testing.T) {
	fake := db.NewFake()
	objID := uuid.New()
	fake.AddObject(db.RawDataObject{
		ID: objID, UserID: "u1", DeviceID: "d1", ObjectKey: "raw/u1/d1/1",
		StartTimeDevice: 2000, EndTimeDevice: 3000,
	})
	sessionID := uuid.New()
	lookup := &fakeSessionLookup{windows: []SessionWindow{
		{SessionID: sessionID, Window: clockwrap.Window{Lo: 1000, Hi: 5000}},
	}}
	svc := New(fake, lookup, zerolog.Nop())

	if err := svc.LinkUserDevice(context.Background(), "u1", "d1"); err != nil {
		t.Fatalf("LinkUserDevice: %v", err)
	}

	linked, err := fake.LinkedObjects(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("LinkedObjects: %v", err)
	}
	if len(linked) != 1 || linked[0].ID != objID {
		t.Fatalf("expected object %s linked to session %s, got %+v", objID, sessionID, linked)
	}

	remaining, err := fake.UnlinkedObjects(context.Background(), "u1", "d1")
	if err != nil {
		t.Fatalf("UnlinkedObjects: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected object no longer unlinked, got %v", remaining)
	}
}

func TestLinkUserDeviceSkipsDisjointSession(t *testing.T) {
	fake := db.NewFake()
	objID := uuid.New()
	fake.AddObject(db.RawDataObject{
		ID: objID, UserID: "u1", DeviceID: "d1", ObjectKey: "raw/u1/d1/1",
		StartTimeDevice: 8000, EndTimeDevice: 9000,
	})
	sessionID := uuid.New()
	lookup := &fakeSessionLookup{windows: []SessionWindow{
		{SessionID: sessionID, Window: clockwrap.Window{Lo: 1000, Hi: 5000}},
	}}
	svc := New(fake, lookup, zerolog.Nop())

	if err := svc.LinkUserDevice(context.Background(), "u1", "d1"); err != nil {
		t.Fatalf("LinkUserDevice: %v", err)
	}

	remaining, err := fake.UnlinkedObjects(context.Background(), "u1", "d1")
	if err != nil {
		t.Fatalf("UnlinkedObjects: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected object to remain unlinked, got %v", remaining)
	}
}

// TestLinkUserDeviceWrapWindow matches spec.md S6: a wrapping session
// window (lo=0xFFFFFF00, hi=0x00000100) must still capture an object that
// straddles the 32-bit wrap boundary.
func TestLinkUserDeviceWrapWindow(t *testing.T) {
	fake := db.NewFake()
	objID := uuid.New()
	fake.AddObject(db.RawDataObject{
		ID: objID, UserID: "u1", DeviceID: "d1", ObjectKey: "raw/u1/d1/1",
		StartTimeDevice: 0xFFFFFFA0, EndTimeDevice: 0x00000050,
	})
	sessionID := uuid.New()
	lookup := &fakeSessionLookup{windows: []SessionWindow{
		{SessionID: sessionID, Window: clockwrap.Window{Lo: 0xFFFFFF00, Hi: 0x00000100}},
	}}
	svc := New(fake, lookup, zerolog.Nop())

	if err := svc.LinkUserDevice(context.Background(), "u1", "d1"); err != nil {
		t.Fatalf("LinkUserDevice: %v", err)
	}

	linked, err := fake.LinkedObjects(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("LinkedObjects: %v", err)
	}
	if len(linked) != 1 || linked[0].ID != objID {
		t.Fatalf("expected wrapped object linked, got %+v", linked)
	}
}

func TestSessionWindowOverlapLogic(t *testing.T) {
	sessionID := uuid.New()
	sw := SessionWindow{SessionID: sessionID, Window: clockwrap.Window{Lo: 1000, Hi: 5000}}
	objWindow := clockwrap.Window{Lo: 2000, Hi: 3000}
	if !clockwrap.Overlaps(objWindow, sw.Window) {
		t.Error("expected object window fully inside session window to overlap")
	}

	disjoint := clockwrap.Window{Lo: 6000, Hi: 7000}
	if clockwrap.Overlaps(disjoint, sw.Window) {
		t.Error("expected disjoint windows to not overlap")
	}
}

func TestUserDeviceStruct(t *testing.T) {
	p := UserDevice{UserID: "u1", DeviceID: "d1"}
	if p.UserID != "u1" || p.DeviceID != "d1" {
		t.Errorf("unexpected UserDevice: %+v", p)
	}
}
