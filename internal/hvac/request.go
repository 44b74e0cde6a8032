package hvac

import (
	"errors"
	"fmt"
	"strings"
)

// CommandRequest is an inbound command as it arrives over MQTT or HTTP.
// Enum fields are free text and parsed case-insensitively by Command.
type CommandRequest struct {
	OnOff       *string  `json:"onoff_mode,omitempty"`
	HVACMode    *string  `json:"hvac_mode,omitempty"`
	Target      *float64 `json:"target_temperature,omitempty"`
	FanMode     *string  `json:"fan_mode,omitempty"`
	SwingMode   *string  `json:"swing_mode,omitempty"`
	FilterReset bool     `json:"filter_reset,omitempty"`
	LockMode    *string  `json:"lock_mode,omitempty"`
}

// ErrInvalidOnOff is returned for an on/off value other than on or off.
var ErrInvalidOnOff = errors.New("hvac: invalid on/off value")

// HVACModeOff is accepted in hvac_mode as a request to switch the unit off.
const HVACModeOff = "off"

// Command parses the request into a Command.
//
// hvac_mode "off" switches power off and leaves the operating mode as it is.
// Every unparseable field is reported, joined into one error.
func (r CommandRequest) Command() (Command, error) {
	var (
		cmd  Command
		errs []error
	)

	if r.OnOff != nil {
		on, err := parseOnOff(*r.OnOff)
		if err != nil {
			errs = append(errs, err)
		} else {
			cmd.Power = &on
		}
	}

	if r.HVACMode != nil {
		if normaliseName(*r.HVACMode) == HVACModeOff {
			if cmd.Power != nil && *cmd.Power {
				errs = append(errs, fmt.Errorf("%w: hvac_mode off conflicts with onoff_mode on", ErrInvalidMode))
			}
			off := false
			cmd.Power = &off
		} else if m, err := ParseHVACMode(*r.HVACMode); err != nil {
			errs = append(errs, err)
		} else {
			cmd.Mode = &m
		}
	}

	if r.Target != nil {
		t := *r.Target
		cmd.Target = &t
	}

	if r.FanMode != nil {
		if f, err := ParseFanMode(*r.FanMode); err != nil {
			errs = append(errs, err)
		} else {
			cmd.Fan = &f
		}
	}

	if r.SwingMode != nil {
		if s, err := ParseSwingMode(*r.SwingMode); err != nil {
			errs = append(errs, err)
		} else {
			cmd.Swing = &s
		}
	}

	cmd.FilterReset = r.FilterReset

	if r.LockMode != nil {
		if l, err := ParseLockLabel(*r.LockMode); err != nil {
			errs = append(errs, err)
		} else {
			cmd.Lock = &l
		}
	}

	if len(errs) > 0 {
		return Command{}, errors.Join(errs...)
	}
	return cmd, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrInvalidOnOff, s)
}
