package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// IPC holds the connection settings for the rendering peer.
// It is a plain value: copies never affect each other.
type IPC struct {
	Host       string
	Port       int
	Timeout    time.Duration // Bounds connect and the whole exchange
	BufferSize int           // Bytes requested per read call
}

// File is the on-disk shape of the configuration. Timeout is in whole seconds.
type File struct {
	Host       string `json:"host" yaml:"host" toml:"host"`
	Port       int    `json:"port" yaml:"port" toml:"port"`
	Timeout    int    `json:"timeout" yaml:"timeout" toml:"timeout"`
	BufferSize int    `json:"buffer_size" yaml:"buffer_size" toml:"buffer_size"`
}

// Address returns host:port for dialing.
func (c IPC) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// File converts the configuration to its on-disk shape.
func (c IPC) File() File {
	return File{
		Host:       c.Host,
		Port:       c.Port,
		Timeout:    int(c.Timeout / time.Second),
		BufferSize: c.BufferSize,
	}
}

// Validate checks that every field is usable for dialing.
func (c IPC) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive, got %d", c.BufferSize)
	}
	return nil
}
