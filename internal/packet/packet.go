// Package packet parses the decompressed sensor binary format described in
// the ingestion spec: an 18-byte device-identity header followed by an
// array of fixed-size 53-byte sample records. The reader never copies a
// sample record — it only reads the two byte offsets the core cares about
// (48: trigger flag, 49..52: device timestamp).
package packet

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the length of the ASCII device-identity header block.
	HeaderSize = 18

	// SampleSize is the length of one sample record.
	SampleSize = 53

	// triggerOffset is the byte offset of the trigger flag within a sample record.
	triggerOffset = 48

	// timestampOffset is the byte offset of the little-endian u32 device
	// timestamp (microseconds) within a sample record.
	timestampOffset = 49

	// v4HeaderMagic identifies the alternative inspection-endpoint header
	// format (version=0x04, num_channels, reserved, channel descriptors).
	// The core never parses this variant; it is recognized only so callers
	// can reject it with a clear error instead of misreading device_id.
	v4HeaderMagic = 0x04
)

// View is a non-allocating read-only window over a decompressed sensor
// payload. Construct with Parse.
type View struct {
	deviceID string
	samples  []byte // raw bytes following the header, len is a multiple of SampleSize
}

// Parse validates the buffer layout and returns a View over it. The
// returned View aliases buf — the caller must not mutate buf afterward.
func Parse(buf []byte) (*View, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("packet: buffer too short for header: %d bytes", len(buf))
	}
	if buf[0] == v4HeaderMagic {
		return nil, fmt.Errorf("packet: v4 inspection header (version=0x04) is not a sample stream")
	}

	body := buf[HeaderSize:]
	if len(body)%SampleSize != 0 {
		return nil, fmt.Errorf("packet: sample region length %d is not a multiple of %d", len(body), SampleSize)
	}

	return &View{
		deviceID: parseDeviceID(buf[:HeaderSize]),
		samples:  body,
	}, nil
}

// parseDeviceID reads a null-terminated ASCII string from a fixed-size
// field, capped at the field width.
func parseDeviceID(header []byte) string {
	end := len(header)
	for i, b := range header {
		if b == 0 {
			end = i
			break
		}
	}
	return string(header[:end])
}

// DeviceID returns the device identifier read from the header.
func (v *View) DeviceID() string { return v.deviceID }

// NumSamples returns the number of sample records in the payload.
func (v *View) NumSamples() int { return len(v.samples) / SampleSize }

// Empty reports whether the payload carries zero sample records.
func (v *View) Empty() bool { return len(v.samples) == 0 }

// Sample is a read-only view of one 53-byte sample record.
type Sample struct {
	raw []byte
}

// SampleAt returns the i-th sample record. It panics if i is out of range;
// callers should bound i against NumSamples.
func (v *View) SampleAt(i int) Sample {
	off := i * SampleSize
	return Sample{raw: v.samples[off : off+SampleSize]}
}

// Trigger reports whether the hardware trigger flag is set for this sample.
func (s Sample) Trigger() bool { return s.raw[triggerOffset] == 1 }

// TimestampUS returns the device clock, in microseconds, at this sample.
// The value wraps at 2^32 roughly every 71 minutes.
func (s Sample) TimestampUS() uint32 {
	return binary.LittleEndian.Uint32(s.raw[timestampOffset : timestampOffset+4])
}

// FirstTimestampUS returns the device timestamp of the first sample.
// Callers must check NumSamples() > 0 first.
func (v *View) FirstTimestampUS() uint32 {
	return v.SampleAt(0).TimestampUS()
}

// LastTimestampUS returns the device timestamp of the last sample.
// Callers must check NumSamples() > 0 first.
func (v *View) LastTimestampUS() uint32 {
	return v.SampleAt(v.NumSamples() - 1).TimestampUS()
}

// Triggers returns the device timestamps of every sample whose trigger
// flag is set, in record order.
func (v *View) Triggers() []uint32 {
	var out []uint32
	for i := 0; i < v.NumSamples(); i++ {
		s := v.SampleAt(i)
		if s.Trigger() {
			out = append(out, s.TimestampUS())
		}
	}
	return out
}
