package app

import "testing"

func TestConfigureLoggingDefaultsToInfo(t *testing.T) {
	if err := ConfigureLogging(""); err != nil {
		t.Fatalf("ConfigureLogging returned error: %v", err)
	}
}

func TestConfigureLoggingToleratesUnknownLevel(t *testing.T) {
	// Unknown levels fall back to info rather than failing startup.
	if err := ConfigureLogging("shouting"); err != nil {
		t.Fatalf("ConfigureLogging returned error: %v", err)
	}
}
