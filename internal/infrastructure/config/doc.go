// Package config handles loading and validating the MHI HVAC service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of controller, unit, group, preset and mode-set settings
//   - Default value handling
//
// The loaded Config is treated as immutable after startup. The core packages
// (hvac, sclink) never read it directly; cmd/mhihvac translates it into their
// option structs.
//
// Security Considerations:
//   - Controller and broker passwords should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Controller.Host)
package config
