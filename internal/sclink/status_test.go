package sclink

import (
	"errors"
	"testing"

	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
)

func heatStatus() hvac.UnitStatus {
	return hvac.UnitStatus{
		Power:         true,
		Mode:          hvac.ModeHeat,
		Target:        21.5,
		Fan:           hvac.FanHigh,
		Swing:         hvac.SwingStop2,
		Lock:          hvac.LockState{OnOff: true, Temp: true},
		FilterSign:    true,
		RoomTemp:      -4.5,
		RoomTempValid: true,
	}
}

func mustRecord(t *testing.T, unit int, s hvac.UnitStatus) []byte {
	t.Helper()
	rec, err := EncodeUnitRecord(unit, s)
	if err != nil {
		t.Fatalf("EncodeUnitRecord() error = %v", err)
	}
	return rec
}

func TestDecodeUnitRecord(t *testing.T) {
	// unit 3, flags on|filter|lock onoff|lock temp|room valid, heat, high, stop2, 21.5, -4.5
	rec := []byte{3, 0x37, 3, 2, 2, 43, 0xFF, 0xD3}

	got, err := DecodeUnitRecord(rec)
	if err != nil {
		t.Fatalf("DecodeUnitRecord() error = %v", err)
	}
	if got != heatStatus() {
		t.Errorf("DecodeUnitRecord() = %+v, want %+v", got, heatStatus())
	}
	if got.Lock.Label() != hvac.LockOnOffTemp {
		t.Errorf("lock label = %q, want %q", got.Lock.Label(), hvac.LockOnOffTemp)
	}
}

func TestEncodeUnitRecordRoundTrip(t *testing.T) {
	rec := mustRecord(t, 3, heatStatus())
	got, err := DecodeUnitRecord(rec)
	if err != nil {
		t.Fatalf("DecodeUnitRecord() error = %v", err)
	}
	if got != heatStatus() {
		t.Errorf("round trip = %+v, want %+v", got, heatStatus())
	}
}

func TestDecodeUnitRecordOutOfRange(t *testing.T) {
	base := []byte{1, 0x21, 0, 0, 0, 44, 0x00, 0xDC} // on, room valid, cool, low, auto, 22.0, 22.0

	tests := []struct {
		name   string
		mutate func(r []byte)
	}{
		{"mode code", func(r []byte) { r[2] = 4 }},
		{"fan code", func(r []byte) { r[3] = 9 }},
		{"swing code", func(r []byte) { r[4] = 5 }},
		{"set-point below range", func(r []byte) { r[5] = 31 }},
		{"set-point above range", func(r []byte) { r[5] = 65 }},
		{"reserved flag bits", func(r []byte) { r[1] |= 0x80 }},
		{"room temperature too high", func(r []byte) { r[6], r[7] = 0x02, 0x5D }}, // 60.5
		{"room temperature too low", func(r []byte) { r[6], r[7] = 0xFE, 0xD3 }},  // -30.1
	}

	if _, err := DecodeUnitRecord(base); err != nil {
		t.Fatalf("base record error = %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := append([]byte(nil), base...)
			tt.mutate(rec)
			_, err := DecodeUnitRecord(rec)
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Errorf("DecodeUnitRecord() error = %v, want *DecodeError", err)
			}
		})
	}
}

func TestDecodeUnitRecordRoomTempInvalid(t *testing.T) {
	// Room temperature bytes are ignored when the valid flag is clear.
	rec := []byte{1, 0x01, 0, 0, 0, 44, 0x7F, 0xFF}
	got, err := DecodeUnitRecord(rec)
	if err != nil {
		t.Fatalf("DecodeUnitRecord() error = %v", err)
	}
	if got.RoomTempValid || got.RoomTemp != 0 {
		t.Errorf("room temp = %g valid=%v, want 0 invalid", got.RoomTemp, got.RoomTempValid)
	}
}

func TestDecodeStatusResponse(t *testing.T) {
	good := heatStatus()
	bad := mustRecord(t, 2, good)
	bad[2] = 7 // invalid mode

	payload := EncodeStatusReply(1, [][]byte{
		mustRecord(t, 1, good),
		bad,
		mustRecord(t, 3, good),
		mustRecord(t, 9, good),  // not configured
		mustRecord(t, 17, good), // outside the block
	})

	configured := map[hvac.UnitID]bool{
		{Block: 1, Unit: 1}: true,
		{Block: 1, Unit: 2}: true,
		{Block: 1, Unit: 3}: true,
	}
	reply, err := DecodeStatusResponse(payload, func(id hvac.UnitID) bool { return configured[id] })
	if err != nil {
		t.Fatalf("DecodeStatusResponse() error = %v", err)
	}

	if reply.Block != 1 {
		t.Errorf("Block = %d, want 1", reply.Block)
	}
	if reply.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", reply.Skipped)
	}
	if reply.Malformed != 1 {
		t.Errorf("Malformed = %d, want 1", reply.Malformed)
	}
	if len(reply.Records) != 3 {
		t.Fatalf("len(Records) = %d, want 3", len(reply.Records))
	}

	for _, rec := range reply.Records {
		switch rec.ID.Unit {
		case 2:
			var decErr *DecodeError
			if !errors.As(rec.Err, &decErr) {
				t.Errorf("unit 2 Err = %v, want *DecodeError", rec.Err)
			}
		default:
			if rec.Err != nil {
				t.Errorf("unit %d Err = %v, want nil", rec.ID.Unit, rec.Err)
			}
			if rec.Status != good {
				t.Errorf("unit %d Status = %+v, want %+v", rec.ID.Unit, rec.Status, good)
			}
		}
	}
}

func TestDecodeStatusResponseNilInclude(t *testing.T) {
	payload := EncodeStatusReply(8, [][]byte{mustRecord(t, 16, heatStatus())})
	reply, err := DecodeStatusResponse(payload, nil)
	if err != nil {
		t.Fatalf("DecodeStatusResponse() error = %v", err)
	}
	if len(reply.Records) != 1 || reply.Records[0].ID != (hvac.UnitID{Block: 8, Unit: 16}) {
		t.Errorf("Records = %+v, want one record for 8-16", reply.Records)
	}
}

func TestDecodeStatusResponseMalformed(t *testing.T) {
	rec := mustRecord(t, 1, heatStatus())

	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"block zero", append([]byte{0, 1}, rec...)},
		{"block nine", append([]byte{9, 1}, rec...)},
		{"count above block size", []byte{1, 17}},
		{"count does not match length", append([]byte{1, 2}, rec...)},
		{"partial record", append([]byte{1, 1}, rec[:5]...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeStatusResponse(tt.payload, nil)
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Errorf("DecodeStatusResponse() error = %v, want *DecodeError", err)
			}
		})
	}
}

func TestEncodeStatusRequest(t *testing.T) {
	got, err := EncodeStatusRequest(4)
	if err != nil || len(got) != 1 || got[0] != 4 {
		t.Errorf("EncodeStatusRequest(4) = %v, %v", got, err)
	}
	if _, err := EncodeStatusRequest(0); err == nil {
		t.Error("EncodeStatusRequest(0) expected error")
	}
}
