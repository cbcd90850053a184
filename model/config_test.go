package model

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	conf := NewDefaultConfig()
	if err := conf.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}

	conf = NewDefaultConfig()
	conf.SPIDevice = ""
	if err := conf.Validate(); err == nil {
		t.Error("expected empty SPIDevice to be invalid")
	}

	conf = NewDefaultConfig()
	conf.ReadByteTimeout = 0
	if err := conf.Validate(); err == nil {
		t.Error("expected zero ReadByteTimeout to be invalid")
	}

	conf = NewDefaultConfig()
	conf.WriteByteTimeout = -time.Second
	if err := conf.Validate(); err == nil {
		t.Error("expected negative WriteByteTimeout to be invalid")
	}
}
