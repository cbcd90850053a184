package model

import (
	"time"

	"github.com/pkg/errors"
)

// Config holds the configuration of a single gateway instance.
type Config struct {
	// Path of the spidev device the port expanders are connected to
	SPIDevice string
	// Deadline for a single byte of the read handshake
	ReadByteTimeout time.Duration
	// Deadline for a single byte of the write handshake
	WriteByteTimeout time.Duration
}

const (
	// DefaultSPIDevice is the spidev path on the Orange Pi Zero board.
	DefaultSPIDevice = "/dev/spidev1.0"
	// DefaultByteTimeout bounds a single handshake cycle.
	DefaultByteTimeout = time.Second
)

// NewDefaultConfig returns a Config with all defaults filled in.
func NewDefaultConfig() Config {
	return Config{
		SPIDevice:        DefaultSPIDevice,
		ReadByteTimeout:  DefaultByteTimeout,
		WriteByteTimeout: DefaultByteTimeout,
	}
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (c Config) Validate() error {
	if c.SPIDevice == "" {
		return errors.Wrap(ValidationError, "SPIDevice cannot be empty")
	}
	if c.ReadByteTimeout <= 0 {
		return errors.Wrapf(ValidationError, "ReadByteTimeout must be positive, got %s", c.ReadByteTimeout)
	}
	if c.WriteByteTimeout <= 0 {
		return errors.Wrapf(ValidationError, "WriteByteTimeout must be positive, got %s", c.WriteByteTimeout)
	}
	return nil
}
