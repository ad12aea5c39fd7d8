package packet

import (
	"encoding/binary"
	"testing"
)

func buildPacket(deviceID string, samples []struct {
	trigger bool
	ts      uint32
}) []byte {
	buf := make([]byte, HeaderSize+len(samples)*SampleSize)
	copy(buf, deviceID)
	for i, s := range samples {
		off := HeaderSize + i*SampleSize
		if s.trigger {
			buf[off+triggerOffset] = 1
		}
		binary.LittleEndian.PutUint32(buf[off+timestampOffset:], s.ts)
	}
	return buf
}

func TestParseHappyPath(t *testing.T) {
	buf := buildPacket("devA", []struct {
		trigger bool
		ts      uint32
	}{
		{false, 100}, {false, 200}, {false, 300}, {false, 400}, {false, 500},
	})

	v, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v.DeviceID() != "devA" {
		t.Errorf("DeviceID = %q, want devA", v.DeviceID())
	}
	if v.NumSamples() != 5 {
		t.Fatalf("NumSamples = %d, want 5", v.NumSamples())
	}
	if v.FirstTimestampUS() != 100 {
		t.Errorf("FirstTimestampUS = %d, want 100", v.FirstTimestampUS())
	}
	if v.LastTimestampUS() != 500 {
		t.Errorf("LastTimestampUS = %d, want 500", v.LastTimestampUS())
	}
}

func TestDeviceIDCappedAndNullTerminated(t *testing.T) {
	header := make([]byte, HeaderSize)
	copy(header, "deviceNameThatIsWayTooLong")
	id := parseDeviceID(header)
	if len(id) != HeaderSize {
		t.Errorf("expected id capped at %d bytes, got %d (%q)", HeaderSize, len(id), id)
	}

	header2 := make([]byte, HeaderSize)
	copy(header2, "short\x00garbage")
	if got := parseDeviceID(header2); got != "short" {
		t.Errorf("parseDeviceID = %q, want %q", got, "short")
	}
}

func TestParseRejectsV4Header(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = 0x04
	if _, err := Parse(buf); err == nil {
		t.Fatal("expected error for v4 inspection header")
	}
}

func TestParseRejectsShortBuffer(t *testing.T) {
	if _, err := Parse(make([]byte, 10)); err == nil {
		t.Fatal("expected error for buffer shorter than header")
	}
}

func TestParseRejectsMisalignedSampleRegion(t *testing.T) {
	buf := make([]byte, HeaderSize+SampleSize+10)
	if _, err := Parse(buf); err == nil {
		t.Fatal("expected error for sample region not a multiple of SampleSize")
	}
}

func TestTriggersExtractsOnlyFlaggedSamples(t *testing.T) {
	buf := buildPacket("devB", []struct {
		trigger bool
		ts      uint32
	}{
		{false, 10}, {true, 1100000}, {false, 20}, {true, 1500000},
	})
	v, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := v.Triggers()
	want := []uint32{1100000, 1500000}
	if len(got) != len(want) {
		t.Fatalf("Triggers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Triggers()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestEmptyPacketHasNoSamples(t *testing.T) {
	buf := buildPacket("devC", nil)
	v, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !v.Empty() {
		t.Error("expected Empty() to be true for a header-only packet")
	}
	if len(v.Triggers()) != 0 {
		t.Error("expected no triggers in an empty packet")
	}
}
