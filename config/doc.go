// Package config loads client options from defaults, a YAML file, a .env
// file and COMMLINK_* environment variables, in that order of precedence
// (later wins).
//
//	opts := config.Default()
//	if err := opts.LoadFile("commlink.yaml"); err != nil { ... }
//	if err := opts.ApplyEnv(".env"); err != nil { ... }
//	if err := opts.Validate(); err != nil { ... }
//
// Durations in YAML use Go syntax ("5s", "1200ms").
package config
