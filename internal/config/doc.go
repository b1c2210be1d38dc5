// Package config handles configuration loading for coach-gateway.
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
//	auth:
//	  jwt_secret: "${COACH_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agent:
//	  connect_timeout: "10s"
//	  request_timeout: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/coach/gateway.db"
//
// Agent runtime:
//
//	agent:
//	  command: "claude"
//	  args: []
//	  system_prompt: ""       # empty uses the built-in coach persona
//	  max_turns: 10
//	  permission_mode: "bypassPermissions"
//	  connect_timeout: "10s"
//	  request_timeout: "5m"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${COACH_JWT_SECRET}"  # empty disables auth
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
