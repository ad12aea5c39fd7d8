package linker

import (
	"encoding/json"
	"testing"
)

func TestClockOffsetJSONShape(t *testing.T) {
	raw := []byte(`{"offset_ms_avg": 12.5}`)
	var off clockOffset
	if err := json.Unmarshal(raw, &off); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if off.OffsetMsAvg != 12.5 {
		t.Errorf("unexpected clockOffset: %+v", off)
	}
}
