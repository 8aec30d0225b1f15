// Package config handles loading and validating the bridge configuration.
//
// This package manages:
//   - Loading the broker record (host, port, topic, credentials) from JSON or YAML
//   - Overriding with environment variables
//   - The DEBUG and TINYTUYA_DEBUG presence toggles
//   - Validation of required fields
//
// Security Considerations:
//   - mqtt_pass and influxdb.token should be supplied via environment variables
//   - The config file should have restricted permissions (0600)
//
// A missing or malformed config file is fatal: the process cannot bridge any
// device without broker settings.
//
// Usage:
//
//	cfg, err := config.Load("config.json")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.BrokerURL())
package config
