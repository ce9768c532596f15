// Package config loads runtime configuration for the TerraField sync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the backend API
//	-d string   path to the local SQLite database
//	-s int      drain interval (seconds)
//	-i int      online status check interval (seconds)
//	-r int      max redeliveries before a queued item is dropped
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "30s" or integer nanoseconds:
//
//	{
//	  "api_base_url": "https://api.terrafusion.example",
//	  "push_url": "wss://api.terrafusion.example/ws/sync",
//	  "drain_interval": "30s",
//	  "online_check_interval": "3s",
//	  "max_retries": 3,
//	  "unregistered_fragments": "discard"
//	}
//
// This package does not read environment variables directly; use the JSON
// file or flags to configure values.
package config
