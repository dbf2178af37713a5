package cfg

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/postmanlabs/go-tcpstack/tcpconn"
)

// settings holds the tunables the core state machines need. They can be set
// in two ways:
//
//  1. Via a YAML config file under $HOME/.go-tcpstack/tcpstack.yaml, e.g.
//
//     ```yaml
//     capacity: 65536
//     initial_rto_ms: 1000
//     max_retx_attempts: 8
//     ```
//
//  2. Via environment variables TCPSTACK_CAPACITY, TCPSTACK_INITIAL_RTO_MS,
//     and TCPSTACK_MAX_RETX_ATTEMPTS.
var settings = viper.New()

const settingsFileName = "tcpstack"

func init() {
	settings.SetDefault("capacity", 64_000)
	settings.SetDefault("initial_rto_ms", 1_000)
	settings.SetDefault("max_retx_attempts", 8)

	settings.SetConfigType("yaml")
	settings.SetConfigName(settingsFileName)
	settings.SetEnvPrefix("tcpstack")
	settings.AutomaticEnv()
}

// LoadTCPConfig resolves $HOME/.go-tcpstack, reads tcpstack.yaml from it if
// present, and returns the resulting tcpconn.Config. A missing config file
// is not an error: callers may rely entirely on defaults and environment
// variables.
func LoadTCPConfig() (tcpconn.Config, error) {
	initCfgDir()
	settings.AddConfigPath(cfgDir)

	if err := settings.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return tcpconn.Config{}, errors.Wrap(err, "failed to read tcpstack config")
		}
	}

	return tcpconn.Config{
		ReceiveCapacity:  settings.GetInt("capacity"),
		InitialRTOMillis: uint32(settings.GetInt("initial_rto_ms")),
		MaxRetxAttempts:  settings.GetInt("max_retx_attempts"),
	}, nil
}
