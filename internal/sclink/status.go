package sclink

import (
	"encoding/binary"
	"time"

	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
)

// RecordSize is the size of one unit record in a status reply.
const RecordSize = 8

// Flag bits of a unit record.
const (
	flagPower         byte = 1 << 0
	flagFilterSign    byte = 1 << 1
	flagLockOnOff     byte = 1 << 2
	flagLockMode      byte = 1 << 3
	flagLockTemp      byte = 1 << 4
	flagRoomTempValid byte = 1 << 5
	flagReserved      byte = 0xC0
)

// Physical ranges the controller can report.
const (
	minReportedSetPoint = 16.0
	maxReportedSetPoint = 32.0
	minRoomTemp         = -30.0
	maxRoomTemp         = 60.0
)

var (
	modeCodes  = []hvac.HVACMode{hvac.ModeCool, hvac.ModeDry, hvac.ModeFanOnly, hvac.ModeHeat}
	fanCodes   = []hvac.FanMode{hvac.FanLow, hvac.FanMedium, hvac.FanHigh, hvac.FanDiffuse}
	swingCodes = []hvac.SwingMode{hvac.SwingAuto, hvac.SwingStop1, hvac.SwingStop2, hvac.SwingStop3, hvac.SwingStop4}
)

// UnitRecord is one decoded record of a status reply.
// Err is a *DecodeError when the record failed validation; Status is then zero.
type UnitRecord struct {
	ID     hvac.UnitID
	Status hvac.UnitStatus
	Err    error
}

// StatusReply is a decoded status reply for one block.
type StatusReply struct {
	Block   int
	Records []UnitRecord

	// Skipped counts records of units that are not configured.
	Skipped int

	// Malformed counts records whose unit index is outside the block.
	Malformed int
}

// EncodeStatusRequest builds the payload asking for one block's status.
func EncodeStatusRequest(block int) ([]byte, error) {
	if block < 1 || block > hvac.MaxBlocks {
		return nil, &EncodeError{Field: "block", Reason: "out of range"}
	}
	return []byte{byte(block)}, nil
}

// DecodeStatusResponse decodes a status reply payload.
//
// Payload: block(1), count(1), then count records of RecordSize bytes.
// Each record is decoded on its own, so one bad record does not discard its
// neighbours. Records for which include returns false are skipped without
// error; a nil include accepts every unit.
//
// Returns:
//   - StatusReply: Per-unit results for the block
//   - error: *DecodeError when the payload as a whole is malformed
func DecodeStatusResponse(payload []byte, include func(hvac.UnitID) bool) (StatusReply, error) {
	if len(payload) < 2 {
		return StatusReply{}, decodeErrorf("status reply too short (%d bytes)", len(payload))
	}
	block := int(payload[0])
	if block < 1 || block > hvac.MaxBlocks {
		return StatusReply{}, decodeErrorf("block %d out of range", block)
	}
	count := int(payload[1])
	if count > hvac.MaxUnitsPerBlock {
		return StatusReply{}, decodeErrorf("record count %d exceeds %d", count, hvac.MaxUnitsPerBlock)
	}
	if len(payload) != 2+count*RecordSize {
		return StatusReply{}, decodeErrorf("status reply of %d bytes does not hold %d records", len(payload), count)
	}

	reply := StatusReply{Block: block, Records: make([]UnitRecord, 0, count)}
	for i := 0; i < count; i++ {
		rec := payload[2+i*RecordSize : 2+(i+1)*RecordSize]
		unit := int(rec[0])
		id := hvac.UnitID{Block: block, Unit: unit}
		if !id.Valid() {
			reply.Malformed++
			continue
		}
		if include != nil && !include(id) {
			reply.Skipped++
			continue
		}

		status, err := DecodeUnitRecord(rec)
		reply.Records = append(reply.Records, UnitRecord{ID: id, Status: status, Err: err})
	}
	return reply, nil
}

// DecodeUnitRecord decodes one 8-byte unit record.
//
// Record layout:
//
//	Byte 0:   unit index
//	Byte 1:   flags (power, filter, lock on/off, lock mode, lock temp, room temp valid)
//	Byte 2:   mode (0 cool, 1 dry, 2 fan_only, 3 heat)
//	Byte 3:   fan (0 low, 1 medium, 2 high, 3 diffuse)
//	Byte 4:   swing (0 auto, 1-4 stop1-stop4)
//	Byte 5:   set-point, 0.5 °C steps
//	Byte 6-7: room temperature, signed 0.1 °C, big-endian
//
// Returns:
//   - hvac.UnitStatus: Fully populated status, or zero on error
//   - error: *DecodeError naming the first out-of-range field
func DecodeUnitRecord(rec []byte) (hvac.UnitStatus, error) {
	if len(rec) != RecordSize {
		return hvac.UnitStatus{}, decodeErrorf("record of %d bytes, want %d", len(rec), RecordSize)
	}

	flags := rec[1]
	if flags&flagReserved != 0 {
		return hvac.UnitStatus{}, decodeErrorf("reserved flag bits set (0x%02X)", flags)
	}
	if int(rec[2]) >= len(modeCodes) {
		return hvac.UnitStatus{}, decodeErrorf("mode code %d out of range", rec[2])
	}
	if int(rec[3]) >= len(fanCodes) {
		return hvac.UnitStatus{}, decodeErrorf("fan code %d out of range", rec[3])
	}
	if int(rec[4]) >= len(swingCodes) {
		return hvac.UnitStatus{}, decodeErrorf("swing code %d out of range", rec[4])
	}

	target := float64(rec[5]) / 2
	if target < minReportedSetPoint || target > maxReportedSetPoint {
		return hvac.UnitStatus{}, decodeErrorf("set-point %g out of range", target)
	}

	status := hvac.UnitStatus{
		Power:  flags&flagPower != 0,
		Mode:   modeCodes[rec[2]],
		Target: target,
		Fan:    fanCodes[rec[3]],
		Swing:  swingCodes[rec[4]],
		Lock: hvac.LockState{
			OnOff: flags&flagLockOnOff != 0,
			Mode:  flags&flagLockMode != 0,
			Temp:  flags&flagLockTemp != 0,
		},
		FilterSign:    flags&flagFilterSign != 0,
		RoomTempValid: flags&flagRoomTempValid != 0,
	}

	if status.RoomTempValid {
		room := float64(int16(binary.BigEndian.Uint16(rec[6:8]))) / 10
		if room < minRoomTemp || room > maxRoomTemp {
			return hvac.UnitStatus{}, decodeErrorf("room temperature %g out of range", room)
		}
		status.RoomTemp = room
	}
	return status, nil
}

// EncodeUnitRecord is the inverse of DecodeUnitRecord. The manager never
// sends records; it is used by the controller simulator and tests.
func EncodeUnitRecord(unit int, s hvac.UnitStatus) ([]byte, error) {
	rec := make([]byte, RecordSize)
	rec[0] = byte(unit)

	var flags byte
	if s.Power {
		flags |= flagPower
	}
	if s.FilterSign {
		flags |= flagFilterSign
	}
	if s.Lock.OnOff {
		flags |= flagLockOnOff
	}
	if s.Lock.Mode {
		flags |= flagLockMode
	}
	if s.Lock.Temp {
		flags |= flagLockTemp
	}
	if s.RoomTempValid {
		flags |= flagRoomTempValid
	}
	rec[1] = flags

	var err error
	if rec[2], err = modeCode(s.Mode); err != nil {
		return nil, err
	}
	if rec[3], err = fanCode(s.Fan); err != nil {
		return nil, err
	}
	if rec[4], err = swingCode(s.Swing); err != nil {
		return nil, err
	}
	if rec[5], err = setPointCode(s.Target); err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint16(rec[6:8], uint16(int16(s.RoomTemp*10)))
	return rec, nil
}

// EncodeStatusReply builds a status reply payload from encoded records.
func EncodeStatusReply(block int, records [][]byte) []byte {
	out := make([]byte, 2, 2+len(records)*RecordSize)
	out[0] = byte(block)
	out[1] = byte(len(records))
	for _, r := range records {
		out = append(out, r...)
	}
	return out
}

// PollReport summarises one poll cycle.
type PollReport struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`

	// Blocks answered, and blocks that timed out or returned a bad frame.
	Answered   []int `json:"answered"`
	Unanswered []int `json:"unanswered"`

	// Units whose status was applied, and units whose record was rejected.
	Updated  []hvac.UnitID `json:"updated"`
	Changed  []hvac.UnitID `json:"changed"`
	Rejected []hvac.UnitID `json:"rejected"`

	Skipped int `json:"skipped"`
}
