package bridge

import (
	"errors"
	"time"

	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
	"github.com/nerrad567/mhi-hvac-core/internal/sclink"
)

// Command names accepted on {prefix}/command/{name}.
const (
	CommandSetProperties  = "set_properties"
	CommandSetActiveModes = "set_active_hvac_modes"
	CommandReplaceModes   = "replace_hvac_modes"
	CommandApplyPreset    = "apply_preset"
	CommandRefresh        = "refresh"
)

// CommandMessage is the payload of every command topic. Which fields are
// read depends on the command name in the topic.
//
//	set_properties         targets (or target) plus any command field
//	set_active_hvac_modes  mode_set
//	replace_hvac_modes     target, hvac_modes
//	apply_preset           target, preset
//	refresh                no fields
type CommandMessage struct {
	// RequestID correlates the acknowledgement. Generated when empty.
	RequestID string `json:"request_id,omitempty"`

	Target  string   `json:"target,omitempty"`
	Targets []string `json:"targets,omitempty"`

	hvac.CommandRequest

	ModeSet string   `json:"mode_set,omitempty"`
	Modes   []string `json:"hvac_modes,omitempty"`
	Preset  string   `json:"preset,omitempty"`

	// Source indicates where the command originated, for logging.
	Source string `json:"source,omitempty"`
}

// targets merges Targets and Target, keeping order.
func (m CommandMessage) targets() []string {
	out := append([]string(nil), m.Targets...)
	if m.Target != "" {
		out = append(out, m.Target)
	}
	return out
}

// AckStatus represents the outcome of a command.
type AckStatus string

const (
	// AckAccepted indicates every write was acknowledged by the controller.
	AckAccepted AckStatus = "accepted"

	// AckPartial indicates some member writes failed.
	AckPartial AckStatus = "partial"

	// AckRejected indicates the command failed parsing or validation and
	// nothing was written.
	AckRejected AckStatus = "rejected"

	// AckFailed indicates every write failed.
	AckFailed AckStatus = "failed"
)

// AckMessage is published on {prefix}/ack/{request_id}.
type AckMessage struct {
	RequestID string    `json:"request_id"`
	Command   string    `json:"command"`
	Timestamp time.Time `json:"timestamp"`
	Status    AckStatus `json:"status"`

	// Result is the per-unit outcome of a dispatch.
	Result *hvac.DispatchResult `json:"result,omitempty"`

	// Units lists units whose mode set was replaced.
	Units []hvac.UnitID `json:"units,omitempty"`

	// Changed reports whether set_active_hvac_modes changed the active set.
	Changed *bool `json:"changed,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for a command that was not fully applied.
type AckError struct {
	Code       string           `json:"code"`
	Message    string           `json:"message"`
	Violations []hvac.Violation `json:"violations,omitempty"`
}

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeWriteFailed       = "WRITE_FAILED"
	ErrCodeControllerOffline = "CONTROLLER_UNAVAILABLE"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewAck builds an acknowledgement for a command outcome.
//
// A nil err gives AckAccepted. A *hvac.PartialDispatchError gives AckPartial
// or AckFailed depending on whether any write succeeded; every other error
// is a rejection.
func NewAck(requestID, command string, err error) AckMessage {
	ack := AckMessage{
		RequestID: requestID,
		Command:   command,
		Timestamp: time.Now().UTC(),
		Status:    AckAccepted,
	}
	if err == nil {
		return ack
	}

	ack.Error = &AckError{Code: ErrorCode(err), Message: err.Error()}
	ack.Status = AckRejected

	var ve *hvac.ValidationError
	if errors.As(err, &ve) {
		ack.Error.Violations = ve.Violations
	}

	var pe *hvac.PartialDispatchError
	if errors.As(err, &pe) {
		ack.Status = AckFailed
		if len(pe.Succeeded) > 0 {
			ack.Status = AckPartial
		}
	}
	return ack
}

// ErrorCode maps a command error to its wire code.
func ErrorCode(err error) string {
	var (
		ve *hvac.ValidationError
		pe *hvac.PartialDispatchError
	)
	switch {
	case errors.As(err, &ve):
		if ve.Kind == hvac.KindUnknownTarget || ve.Has(hvac.KindUnknownTarget) {
			return ErrCodeNotFound
		}
		return ErrCodeValidationFailed
	case errors.As(err, &pe):
		for _, e := range pe.Failed {
			if !sclink.IsConnectionError(e) {
				return ErrCodeWriteFailed
			}
		}
		return ErrCodeControllerOffline
	case errors.Is(err, hvac.ErrEntityNotFound),
		errors.Is(err, hvac.ErrUnitNotFound),
		errors.Is(err, hvac.ErrModeSetNotFound),
		errors.Is(err, hvac.ErrPresetNotFound):
		return ErrCodeNotFound
	case errors.Is(err, hvac.ErrNoFields),
		errors.Is(err, hvac.ErrNoTargets),
		errors.Is(err, hvac.ErrInvalidMode),
		errors.Is(err, hvac.ErrInvalidFanMode),
		errors.Is(err, hvac.ErrInvalidSwingMode),
		errors.Is(err, hvac.ErrInvalidLockMode),
		errors.Is(err, hvac.ErrInvalidOnOff),
		errors.Is(err, hvac.ErrEmptyModeSet),
		errors.Is(err, ErrInvalidPayload):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case sclink.IsConnectionError(err):
		return ErrCodeControllerOffline
	}
	return ErrCodeInternal
}

// ControllerMessage is published retained on {prefix}/system/controller
// whenever the controller link goes up or down.
type ControllerMessage struct {
	Connected bool      `json:"connected"`
	State     string    `json:"state"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus represents the operational status of the service.
type HealthStatus string

const (
	// HealthHealthy indicates the controller and broker are both connected.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the controller link is down or unauthenticated.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the service is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the service is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained on {prefix}/system/health.
type HealthMessage struct {
	Timestamp     time.Time            `json:"timestamp"`
	Status        HealthStatus         `json:"status"`
	Version       string               `json:"version"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	Controller    *sclink.ManagerStats `json:"controller,omitempty"`
	Dispatch      *hvac.DispatchStats  `json:"dispatch,omitempty"`
	Bridge        *Stats               `json:"bridge,omitempty"`
	Registry      *hvac.RegistryStats  `json:"registry,omitempty"`
	Reason        string               `json:"reason,omitempty"`
}
