package sclink

import (
	"fmt"
	"math"

	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
)

// Field mask bits of a write request. Only fields whose bit is set are
// transmitted; the controller leaves every other field untouched.
const (
	maskPower       byte = 1 << 0
	maskMode        byte = 1 << 1
	maskSetPoint    byte = 1 << 2
	maskFan         byte = 1 << 3
	maskSwing       byte = 1 << 4
	maskFilterReset byte = 1 << 5
	maskLock        byte = 1 << 6
)

// Lock byte bits in a write request.
const (
	lockBitOnOff byte = 1 << 0
	lockBitMode  byte = 1 << 1
	lockBitTemp  byte = 1 << 2
)

// Write acknowledgement result codes.
const (
	ackOK          byte = 0
	ackRejected    byte = 1
	ackUnknownUnit byte = 2
)

// Login reply status codes.
const (
	loginOK             byte = 0
	loginBadCredentials byte = 1
	loginNoSession      byte = 2
)

// Error reply codes.
const (
	errCodeNotLoggedIn byte = 1
	errCodeBusy        byte = 2
	errCodeBadRequest  byte = 3
)

// EncodeWrite builds the write request payload for one unit.
//
// Payload: block(1), unit(1), mask(1), then one byte per set mask bit in
// bit order.
//
// Returns:
//   - []byte: Payload ready for a MsgWrite frame
//   - error: *EncodeError naming the first field that cannot be encoded
func EncodeWrite(id hvac.UnitID, changes hvac.Command) ([]byte, error) {
	if !id.Valid() {
		return nil, &EncodeError{Field: "unit", Reason: fmt.Sprintf("%s out of range", id)}
	}
	if changes.Empty() {
		return nil, &EncodeError{Reason: "no fields to write"}
	}

	out := []byte{byte(id.Block), byte(id.Unit), 0}
	var mask byte

	if changes.Power != nil {
		mask |= maskPower
		out = append(out, boolByte(*changes.Power))
	}
	if changes.Mode != nil {
		c, err := modeCode(*changes.Mode)
		if err != nil {
			return nil, err
		}
		mask |= maskMode
		out = append(out, c)
	}
	if changes.Target != nil {
		c, err := setPointCode(*changes.Target)
		if err != nil {
			return nil, err
		}
		mask |= maskSetPoint
		out = append(out, c)
	}
	if changes.Fan != nil {
		c, err := fanCode(*changes.Fan)
		if err != nil {
			return nil, err
		}
		mask |= maskFan
		out = append(out, c)
	}
	if changes.Swing != nil {
		c, err := swingCode(*changes.Swing)
		if err != nil {
			return nil, err
		}
		mask |= maskSwing
		out = append(out, c)
	}
	if changes.FilterReset {
		mask |= maskFilterReset
		out = append(out, 1)
	}
	if changes.Lock != nil {
		mask |= maskLock
		out = append(out, lockByte(*changes.Lock))
	}

	out[2] = mask
	return out, nil
}

// DecodeWrite parses a write request payload. Used by the controller
// simulator and tests.
func DecodeWrite(payload []byte) (hvac.UnitID, hvac.Command, error) {
	if len(payload) < 3 {
		return hvac.UnitID{}, hvac.Command{}, decodeErrorf("write request too short")
	}
	id := hvac.UnitID{Block: int(payload[0]), Unit: int(payload[1])}
	if !id.Valid() {
		return hvac.UnitID{}, hvac.Command{}, decodeErrorf("unit %s out of range", id)
	}
	mask := payload[2]
	if mask&0x80 != 0 {
		return hvac.UnitID{}, hvac.Command{}, decodeErrorf("reserved mask bit set")
	}

	values := payload[3:]
	next := func() (byte, error) {
		if len(values) == 0 {
			return 0, decodeErrorf("write request missing field values")
		}
		v := values[0]
		values = values[1:]
		return v, nil
	}

	var cmd hvac.Command
	if mask&maskPower != 0 {
		v, err := next()
		if err != nil {
			return id, cmd, err
		}
		p := v != 0
		cmd.Power = &p
	}
	if mask&maskMode != 0 {
		v, err := next()
		if err != nil {
			return id, cmd, err
		}
		if int(v) >= len(modeCodes) {
			return id, cmd, decodeErrorf("mode code %d out of range", v)
		}
		m := modeCodes[v]
		cmd.Mode = &m
	}
	if mask&maskSetPoint != 0 {
		v, err := next()
		if err != nil {
			return id, cmd, err
		}
		t := float64(v) / 2
		cmd.Target = &t
	}
	if mask&maskFan != 0 {
		v, err := next()
		if err != nil {
			return id, cmd, err
		}
		if int(v) >= len(fanCodes) {
			return id, cmd, decodeErrorf("fan code %d out of range", v)
		}
		f := fanCodes[v]
		cmd.Fan = &f
	}
	if mask&maskSwing != 0 {
		v, err := next()
		if err != nil {
			return id, cmd, err
		}
		if int(v) >= len(swingCodes) {
			return id, cmd, decodeErrorf("swing code %d out of range", v)
		}
		s := swingCodes[v]
		cmd.Swing = &s
	}
	if mask&maskFilterReset != 0 {
		v, err := next()
		if err != nil {
			return id, cmd, err
		}
		cmd.FilterReset = v != 0
	}
	if mask&maskLock != 0 {
		v, err := next()
		if err != nil {
			return id, cmd, err
		}
		cmd.Lock = &hvac.LockState{
			OnOff: v&lockBitOnOff != 0,
			Mode:  v&lockBitMode != 0,
			Temp:  v&lockBitTemp != 0,
		}
	}
	if len(values) != 0 {
		return id, cmd, decodeErrorf("%d trailing bytes in write request", len(values))
	}
	return id, cmd, nil
}

// decodeWriteAck parses a write acknowledgement and maps its result code.
func decodeWriteAck(payload []byte) (hvac.UnitID, error) {
	if len(payload) != 3 {
		return hvac.UnitID{}, decodeErrorf("write ack of %d bytes, want 3", len(payload))
	}
	id := hvac.UnitID{Block: int(payload[0]), Unit: int(payload[1])}
	switch payload[2] {
	case ackOK:
		return id, nil
	case ackRejected:
		return id, fmt.Errorf("%w: unit %s refused the change", ErrRejected, id)
	case ackUnknownUnit:
		return id, fmt.Errorf("%w: unit %s does not exist on the controller", ErrRejected, id)
	default:
		return id, fmt.Errorf("%w: unit %s result code %d", ErrRejected, id, payload[2])
	}
}

// EncodeWriteAck builds a write acknowledgement payload.
func EncodeWriteAck(id hvac.UnitID, ok bool) []byte {
	code := ackOK
	if !ok {
		code = ackRejected
	}
	return []byte{byte(id.Block), byte(id.Unit), code}
}

// EncodeLogin builds a login payload: two length-prefixed strings.
func EncodeLogin(username, password string) ([]byte, error) {
	if len(username) > 255 {
		return nil, &EncodeError{Field: "username", Reason: "longer than 255 bytes"}
	}
	if len(password) > 255 {
		return nil, &EncodeError{Field: "password", Reason: "longer than 255 bytes"}
	}
	out := make([]byte, 0, 2+len(username)+len(password))
	out = append(out, byte(len(username)))
	out = append(out, username...)
	out = append(out, byte(len(password)))
	out = append(out, password...)
	return out, nil
}

// DecodeLogin parses a login payload. Used by the controller simulator.
func DecodeLogin(payload []byte) (username, password string, err error) {
	if len(payload) < 1 || len(payload) < 1+int(payload[0])+1 {
		return "", "", decodeErrorf("login payload truncated")
	}
	ul := int(payload[0])
	username = string(payload[1 : 1+ul])
	rest := payload[1+ul:]
	pl := int(rest[0])
	if len(rest) != 1+pl {
		return "", "", decodeErrorf("login payload truncated")
	}
	return username, string(rest[1:]), nil
}

// decodeLoginReply maps the login status code to an error.
func decodeLoginReply(payload []byte) error {
	if len(payload) != 1 {
		return decodeErrorf("login reply of %d bytes, want 1", len(payload))
	}
	switch payload[0] {
	case loginOK:
		return nil
	case loginBadCredentials:
		return ErrAuthFailed
	case loginNoSession:
		return fmt.Errorf("%w: controller has no free session", ErrConnectionFailed)
	default:
		return decodeErrorf("login status %d unknown", payload[0])
	}
}

// errorReply maps an error frame to an error.
func errorReply(payload []byte) error {
	if len(payload) != 1 {
		return decodeErrorf("error reply of %d bytes, want 1", len(payload))
	}
	switch payload[0] {
	case errCodeNotLoggedIn:
		return fmt.Errorf("%w: controller dropped the session", ErrConnectionLost)
	case errCodeBusy:
		return fmt.Errorf("%w: controller busy", ErrTimeout)
	case errCodeBadRequest:
		return fmt.Errorf("%w: controller rejected the request", ErrRejected)
	default:
		return fmt.Errorf("%w: controller error code %d", ErrRejected, payload[0])
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func lockByte(l hvac.LockState) byte {
	var b byte
	if l.OnOff {
		b |= lockBitOnOff
	}
	if l.Mode {
		b |= lockBitMode
	}
	if l.Temp {
		b |= lockBitTemp
	}
	return b
}

func modeCode(m hvac.HVACMode) (byte, error) {
	for i, c := range modeCodes {
		if c == m {
			return byte(i), nil
		}
	}
	return 0, &EncodeError{Field: hvac.FieldMode, Reason: fmt.Sprintf("unknown mode %q", m)}
}

func fanCode(f hvac.FanMode) (byte, error) {
	for i, c := range fanCodes {
		if c == f {
			return byte(i), nil
		}
	}
	return 0, &EncodeError{Field: hvac.FieldFan, Reason: fmt.Sprintf("unknown fan mode %q", f)}
}

func swingCode(s hvac.SwingMode) (byte, error) {
	for i, c := range swingCodes {
		if c == s {
			return byte(i), nil
		}
	}
	return 0, &EncodeError{Field: hvac.FieldSwing, Reason: fmt.Sprintf("unknown swing mode %q", s)}
}

func setPointCode(t float64) (byte, error) {
	doubled := t * 2
	if math.IsNaN(t) || doubled != math.Trunc(doubled) {
		return 0, &EncodeError{Field: hvac.FieldTarget, Reason: fmt.Sprintf("%g is not a multiple of 0.5", t)}
	}
	if t < minReportedSetPoint || t > maxReportedSetPoint {
		return 0, &EncodeError{Field: hvac.FieldTarget, Reason: fmt.Sprintf("%g outside %g-%g", t, minReportedSetPoint, maxReportedSetPoint)}
	}
	return byte(doubled), nil
}
