// Package config handles configuration loading for the director.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	channels:
//	  socket_dir: "${AGENTIC_SOCKET_DIR}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	health:
//	  sweep_interval: "1s"
//	  ping_timeout: "2s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Request admission and command timing:
//
//	director:
//	  max_concurrent_requests: 10
//	  command_timeout: "30s"
//
// Per-agent channels:
//
//	channels:
//	  socket_dir: "/run/agentic"   # Unix sockets, one per agent
//	  connect_timeout: "30s"
//
// Health sweeps:
//
//	health:
//	  sweep_interval: "1s"
//	  ping_timeout: "2s"
//
// Workflow definitions:
//
//	workflows:
//	  paths:
//	    - "workflows/backup.yaml"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load("/etc/agentic/director.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
