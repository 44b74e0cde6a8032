package mqtt

import (
	"fmt"
	"strings"
)

// DefaultPrefix is the root of every topic when the config leaves it empty.
const DefaultPrefix = "mhihvac"

// Topics builds the service's MQTT topics under a configurable prefix.
//
// The layout is flat:
//
//	{prefix}/state/{entity}        retained aggregated entity state
//	{prefix}/command/{name}        inbound commands
//	{prefix}/ack/{request_id}      command acknowledgements
//	{prefix}/system/status         online/offline (LWT)
//	{prefix}/system/health         periodic health report
//	{prefix}/system/controller     controller link availability
//
// The zero value uses DefaultPrefix.
type Topics struct {
	Prefix string
}

// NewTopics returns topic builders rooted at prefix.
// Leading and trailing slashes are trimmed.
func NewTopics(prefix string) Topics {
	return Topics{Prefix: strings.Trim(prefix, "/")}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return t.Prefix
}

// EntityState returns the state topic for an entity.
//
// Example: mhihvac/state/1-03
func (t Topics) EntityState(entityID string) string {
	return fmt.Sprintf("%s/state/%s", t.root(), entityID)
}

// Command returns the topic for a named command.
//
// Example: mhihvac/command/set_properties
func (t Topics) Command(name string) string {
	return fmt.Sprintf("%s/command/%s", t.root(), name)
}

// Ack returns the acknowledgement topic for a request.
//
// Example: mhihvac/ack/5f0c3d7e-...
func (t Topics) Ack(requestID string) string {
	return fmt.Sprintf("%s/ack/%s", t.root(), requestID)
}

// SystemStatus returns the online/offline status topic.
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// SystemHealth returns the health report topic.
func (t Topics) SystemHealth() string {
	return t.root() + "/system/health"
}

// ControllerState returns the controller availability topic.
func (t Topics) ControllerState() string {
	return t.root() + "/system/controller"
}

// AllEntityStates returns a pattern matching every entity state.
//
// Pattern: mhihvac/state/+
func (t Topics) AllEntityStates() string {
	return t.root() + "/state/+"
}

// AllCommands returns a pattern matching every command topic.
//
// Pattern: mhihvac/command/+
func (t Topics) AllCommands() string {
	return t.root() + "/command/+"
}

// CommandName extracts the command name from a command topic.
// It reports false when topic is not a command topic under this prefix.
func (t Topics) CommandName(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, t.root()+"/command/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// AllTopics returns a pattern matching every topic under the prefix.
//
// Pattern: mhihvac/#
func (t Topics) AllTopics() string {
	return t.root() + "/#"
}
