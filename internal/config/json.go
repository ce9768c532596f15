package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/bsvalues/terrafield/internal/flagx"
	"github.com/bsvalues/terrafield/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config.
type JsonConfig struct {
	APIBaseURL            string         `json:"api_base_url"`
	PushURL               string         `json:"push_url"`
	DatabasePath          string         `json:"database_path"`
	TokenFilePath         string         `json:"token_file_path"`
	DrainInterval         timex.Duration `json:"drain_interval"`
	OnlineCheckInterval   timex.Duration `json:"online_check_interval"`
	RequestTimeout        timex.Duration `json:"request_timeout"`
	MaxRetries            *int           `json:"max_retries"`
	UnregisteredFragments string         `json:"unregistered_fragments"`
}

// parseJson overlays cfg with values loaded from a JSON file. The file path
// comes from the -c/-config flag; without it nothing is loaded. Absent JSON
// fields leave the current value alone. Read or unmarshal errors panic, the
// binary cannot do anything useful with a broken config file.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigFilePath()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.APIBaseURL != "" {
		cfg.APIBaseURL = jc.APIBaseURL
	}
	if jc.PushURL != "" {
		cfg.PushURL = jc.PushURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.TokenFilePath != "" {
		cfg.TokenFilePath = jc.TokenFilePath
	}
	if jc.DrainInterval.Duration != 0 {
		cfg.DrainInterval = time.Duration(jc.DrainInterval.Duration)
	}
	if jc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Duration)
	}
	if jc.MaxRetries != nil {
		cfg.MaxRetries = *jc.MaxRetries
	}
	if jc.UnregisteredFragments != "" {
		cfg.UnregisteredFragments = jc.UnregisteredFragments
	}
}
