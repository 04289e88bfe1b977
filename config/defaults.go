package config

import "time"

// Default connection values, used for every key the configuration file does not
// provide with a valid value.
const (
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 4273
	DefaultTimeout    = 10 * time.Second
	DefaultBufferSize = 8192
)

const (
	// DefaultPath is the well-known location of the IPC configuration file
	DefaultPath = "/etc/neutral-ipc-cfg.json"

	EnvPrefix = "NEUTRAL_IPC_"
	// EnvConfig overrides DefaultPath
	EnvConfig = EnvPrefix + "CONFIG"
)

// Default returns the configuration used when no file is present.
func Default() IPC {
	return IPC{
		Host:       DefaultHost,
		Port:       DefaultPort,
		Timeout:    DefaultTimeout,
		BufferSize: DefaultBufferSize,
	}
}
