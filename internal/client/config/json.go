package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/nimbusbrowser/nimbus/internal/flagx"
	"github.com/nimbusbrowser/nimbus/internal/timex"
)

// JsonConfig is the intermediate DTO used only for reading JSON config files.
// It relies on timex.Duration so JSON can specify intervals either as string
// values such as "5m" or as integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	DeviceID           string         `json:"device_id"`
	DataDir            string         `json:"data_dir"`
	Strategy           string         `json:"strategy"`
	SyncInterval       timex.Duration `json:"sync_interval"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flags. When neither is set, no JSON file is loaded; a file that
// cannot be read or parsed panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.ServerEndpointAddr = c.ServerEndpointAddr
	config.DeviceID = c.DeviceID
	config.DataDir = c.DataDir
	config.Strategy = c.Strategy
	config.SyncInterval = time.Duration(c.SyncInterval.Duration)
}
