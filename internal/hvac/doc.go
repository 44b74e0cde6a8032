// Package hvac holds the unit model of an MHI SC-SL4 site and the command
// path that turns user intent into per-unit writes.
//
// # Architecture
//
//	                 poll results (sclink.Manager)
//	                            │
//	                            ▼
//	┌──────────────────────────────────────────────────────────────────┐
//	│  Registry (registry.go)                                          │
//	│  • one Unit per (block, unit)  • last valid status + validity    │
//	│  • bounds and explicit mode sets                                 │
//	└──────────────────────────────────────────────────────────────────┘
//	        │ GetMany                               ▲ SetModes
//	        ▼                                       │
//	┌──────────────────────┐   ┌──────────────────────┐   ┌────────────────┐
//	│ Resolver             │   │ Validator            │   │ Dispatcher     │
//	│ (resolver.go)        │──▶│ (validator.go)       │──▶│ (dispatcher.go)│──▶ Writer
//	│ • entity → units     │   │ • allowed modes      │   │ • one write    │
//	│ • Aggregate          │   │ • set-point bounds   │   │   per member   │
//	│ • groups, "all"      │   │ • edit locks         │   │ • per-unit     │
//	└──────────────────────┘   │ • presets            │   │   results      │
//	                           └──────────────────────┘   └────────────────┘
//
// Service (service.go) is the inbound surface used by the MQTT bridge and
// the HTTP API. It owns target expansion, preset lookup, mode-set changes
// and the entity projections.
//
// # Entities
//
//   - "1-03": a single unit (block 1, unit 3)
//   - "office": a user group, by lower-cased name
//   - "all": every configured unit
//
// Aggregated entity state is never stored. Fields on which valid members
// disagree are reported as "mixed"; lock flags and the filter sign are set
// if any member has them.
//
// # Errors
//
// Capability failures are *ValidationError values carrying one Violation per
// failed field. A dispatch where some member writes failed returns the full
// DispatchResult together with a *PartialDispatchError.
package hvac
