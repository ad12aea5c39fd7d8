package db

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Fake is an in-memory substitute for the subset of DB's behavior the
// Data Linker and Event Corrector depend on, mirroring objectstore.Fake
// so their tests can run without a live Postgres instance.
type Fake struct {
	mu sync.Mutex

	Objects  map[uuid.UUID]RawDataObject
	Sessions map[uuid.UUID]Session
	Events   map[uuid.UUID]SessionEvent
	Links    map[uuid.UUID][]uuid.UUID // session_id -> linked object ids
	Jobs     map[uuid.UUID]CorrectionJob
	Images   map[uuid.UUID]Image
	Audio    map[uuid.UUID]AudioClip
}

// NewFake returns an empty in-memory Fake.
func NewFake() *Fake {
	return &Fake{
		Objects:  make(map[uuid.UUID]RawDataObject),
		Sessions: make(map[uuid.UUID]Session),
		Events:   make(map[uuid.UUID]SessionEvent),
		Links:    make(map[uuid.UUID][]uuid.UUID),
		Jobs:     make(map[uuid.UUID]CorrectionJob),
		Images:   make(map[uuid.UUID]Image),
		Audio:    make(map[uuid.UUID]AudioClip),
	}
}

// InsertImage implements mediaprocessor.DB.
func (f *Fake) InsertImage(ctx context.Context, img Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.Images {
		if existing.ObjectKey == img.ObjectKey {
			return nil
		}
	}
	f.Images[img.ID] = img
	return nil
}

// InsertAudioClip implements mediaprocessor.DB.
func (f *Fake) InsertAudioClip(ctx context.Context, a AudioClip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.Audio {
		if existing.ObjectKey == a.ObjectKey {
			return nil
		}
	}
	f.Audio[a.ID] = a
	return nil
}

// AddObject seeds a raw data object, as if InsertRawDataObject had run.
func (f *Fake) AddObject(o RawDataObject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Objects[o.ID] = o
}

// AddSession seeds a session, as if CreateSession had run.
func (f *Fake) AddSession(s Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sessions[s.ID] = s
}

// AddEvent seeds a session event, as if InsertSessionEvent had run.
func (f *Fake) AddEvent(e SessionEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events[e.ID] = e
}

// UnlinkedObjects implements linker.DB.
func (f *Fake) UnlinkedObjects(ctx context.Context, userID, deviceID string) ([]RawDataObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []RawDataObject
	for _, o := range f.Objects {
		if o.SessionID == nil && o.UserID == userID && o.DeviceID == deviceID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTimeDevice < out[j].StartTimeDevice })
	return out, nil
}

// LinkObjectToSession implements linker.DB.
func (f *Fake) LinkObjectToSession(ctx context.Context, sessionID, objectID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.Objects[objectID]
	if !ok {
		return fmt.Errorf("fake db: object %s not found", objectID)
	}
	if o.SessionID != nil {
		return nil // already linked, idempotent
	}
	o.SessionID = &sessionID
	f.Objects[objectID] = o
	f.Links[sessionID] = append(f.Links[sessionID], objectID)
	return nil
}

// Listen implements linker.DB. The fake has nothing to notify on; it
// simply blocks until ctx is cancelled and then returns ctx's error.
func (f *Fake) Listen(ctx context.Context, channel string, onNotify func(payload string)) error {
	<-ctx.Done()
	return ctx.Err()
}

// OpenSessionsForDevice implements linker.SessionLookupDB.
func (f *Fake) OpenSessionsForDevice(ctx context.Context, userID, deviceID string) ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Session
	for _, s := range f.Sessions {
		if s.UserID == userID && s.DeviceID == deviceID && s.Status == "open" {
			out = append(out, s)
		}
	}
	return out, nil
}

// GetSession implements corrector.DB.
func (f *Fake) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.Sessions[id]
	if !ok {
		return nil, fmt.Errorf("fake db: session %s not found", id)
	}
	return &s, nil
}

// LinkedObjects implements corrector.DB.
func (f *Fake) LinkedObjects(ctx context.Context, sessionID uuid.UUID) ([]RawDataObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []RawDataObject
	for _, id := range f.Links[sessionID] {
		out = append(out, f.Objects[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTimeDevice < out[j].StartTimeDevice })
	return out, nil
}

// SetCorrectionJobStatus implements corrector.DB.
func (f *Fake) SetCorrectionJobStatus(ctx context.Context, id uuid.UUID, status string, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.Jobs[id]
	j.ID = id
	j.Status = status
	j.Error = errMsg
	f.Jobs[id] = j
	return nil
}

// SetEventCorrectionStatus implements corrector.DB.
func (f *Fake) SetEventCorrectionStatus(ctx context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.Sessions[id]
	if !ok {
		return fmt.Errorf("fake db: session %s not found", id)
	}
	s.EventCorrectionStatus = status
	f.Sessions[id] = s
	return nil
}

// EventsForSession returns a session's events ordered by onset time,
// backing both direct test setup and fakeTx's in-transaction reads.
func (f *Fake) EventsForSession(ctx context.Context, sessionID uuid.UUID) ([]SessionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SessionEvent
	for _, e := range f.Events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OnsetUS < out[j].OnsetUS })
	return out, nil
}

// CorrectionTx implements corrector.DB. fn's writes only take effect if
// it returns nil; otherwise the event set is rolled back to its state
// before fn ran, mirroring the real transaction's all-or-nothing commit.
func (f *Fake) CorrectionTx(ctx context.Context, fn func(tx Tx) error) error {
	f.mu.Lock()
	snapshot := make(map[uuid.UUID]SessionEvent, len(f.Events))
	for k, v := range f.Events {
		snapshot[k] = v
	}
	f.mu.Unlock()

	tx := &fakeTx{fake: f, pending: make(map[uuid.UUID]int64)}
	err := fn(tx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.Events = snapshot
		return err
	}
	for id, onset := range tx.pending {
		e := f.Events[id]
		corrected := onset
		e.OnsetCorrectedUS = &corrected
		f.Events[id] = e
	}
	return nil
}

// fakeTx implements Tx against a Fake's in-memory event set, buffering
// corrected onsets until CorrectionTx decides whether to commit them.
type fakeTx struct {
	fake    *Fake
	pending map[uuid.UUID]int64
}

func (t *fakeTx) EventsForSession(ctx context.Context, sessionID uuid.UUID) ([]SessionEvent, error) {
	return t.fake.EventsForSession(ctx, sessionID)
}

func (t *fakeTx) SetEventCorrectedOnset(ctx context.Context, eventID uuid.UUID, correctedUS int64) error {
	t.pending[eventID] = correctedUS
	return nil
}
