package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dpetrovs/finsync/internal/flagx"
	"github.com/dpetrovs/finsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify timeouts either as strings like "60s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	AuthPhrase         string         `json:"auth_phrase"`
	AuthID             string         `json:"auth_id"`
	DataDir            string         `json:"data_dir"`
	DeviceName         string         `json:"device_name"`
	RequestTimeout     timex.Duration `json:"request_timeout"`
	PollTimeout        timex.Duration `json:"poll_timeout"`
}

// parseJson overlays Config with values loaded from a JSON file resolved via
// the -c/-config flags. Zero values in the file are ignored so the file only
// needs the keys it wants to override.
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
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

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.AuthPhrase != "" {
		cfg.AuthPhrase = jc.AuthPhrase
	}
	if jc.AuthID != "" {
		cfg.AuthID = jc.AuthID
	}
	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
	if jc.DeviceName != "" {
		cfg.DeviceName = jc.DeviceName
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Duration)
	}
	if jc.PollTimeout.Duration != 0 {
		cfg.PollTimeout = time.Duration(jc.PollTimeout.Duration)
	}
}
