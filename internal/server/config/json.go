package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/nimbusbrowser/nimbus/internal/flagx"
	"github.com/nimbusbrowser/nimbus/internal/timex"
)

// JsonConfig is the intermediate DTO used only for reading JSON configuration
// files. It relies on timex.Duration so JSON can specify intervals either as
// string values such as "15m" or as integer nanoseconds. After unmarshalling,
// its fields are copied into the runtime Config struct which uses
// time.Duration.
type JsonConfig struct {
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	RateLimitPerDevice          float64        `json:"rate_limit_per_device"`
	RateLimitBurst              int            `json:"rate_limit_burst"`
	SnapshotInterval            timex.Duration `json:"snapshot_interval"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
	RestoreSnapshotKey          string         `json:"restore_snapshot_key"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path comes from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics: a broken config file is a
// deployment error, not a runtime condition.
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

	config.EndpointAddrGRPC = c.EndpointAddrGRPC
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)
	config.RateLimitPerDevice = c.RateLimitPerDevice
	config.RateLimitBurst = c.RateLimitBurst
	config.SnapshotInterval = time.Duration(c.SnapshotInterval.Duration)
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.RestoreSnapshotKey = c.RestoreSnapshotKey
}
