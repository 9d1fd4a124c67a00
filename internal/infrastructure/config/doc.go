// Package config handles loading and validating the KNX monitor configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (KNXMONITOR_*)
//   - Validation of required fields, collecting every problem into one error
//   - Default value handling
//
// Sensitive values (MQTT password, InfluxDB token) should be set via
// environment variables.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Target.Address)
package config
