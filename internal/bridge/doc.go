// Package bridge publishes HVAC entity state to MQTT and executes commands
// received from it.
//
// # Architecture
//
//	┌──────────────┐  poll reports   ┌──────────────┐   MQTT   ┌──────────┐
//	│ sclink       │────────────────►│    Bridge    │◄────────►│  Broker  │
//	│ Manager      │◄────────────────│  (this pkg)  │          └──────────┘
//	└──────────────┘  writes (via    └──────┬───────┘
//	                  hvac.Service)         │ history, telemetry
//	                                        ▼
//	                                 SQLite / InfluxDB
//
// # Topics
//
// All topics live under a configurable prefix (default "mhihvac"):
//
//	mhihvac/state/{entity}      retained aggregated state of a unit, group or "all"
//	mhihvac/command/{name}      commands, see CommandMessage
//	mhihvac/ack/{request_id}    one acknowledgement per command
//	mhihvac/system/controller   retained controller availability
//	mhihvac/system/health       retained periodic health report
//
// Entity state is only republished when it changed, ignoring the update
// timestamp. Controller availability is published separately from unit
// state: a lost connection leaves the last known unit values in place.
//
// # Commands
//
// Command payloads are JSON. A set_properties command for a group:
//
//	{"request_id": "r1", "target": "office", "hvac_mode": "cool", "target_temperature": 22}
//
// is acknowledged on mhihvac/ack/r1 with status accepted, partial, rejected
// or failed and, for dispatches, the outcome of every member unit.
//
// # Thread Safety
//
// Link observers only enqueue work; a single worker goroutine publishes
// state. Commands run on their own goroutines and are cancelled by Stop.
package bridge
