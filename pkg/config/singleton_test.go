package config

import (
	"sync"
	"testing"
)

func resetSingleton() {
	configMutex.Lock()
	globalConfig = nil
	globalPath = ""
	configMutex.Unlock()
	initOnce = sync.Once{}
}

func TestInitialize(t *testing.T) {
	resetSingleton()
	t.Cleanup(resetSingleton)

	path := writeConfig(t, sampleYAML)
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	cfg := GetConfig()
	if cfg == nil || cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Fatalf("Unexpected config %+v", cfg)
	}
	if Path() != path {
		t.Errorf("Expected path %s, got %s", path, Path())
	}

	// Second call is ignored.
	if err := Initialize(writeConfig(t, "server:\n  listen_address: :1\n")); err != nil {
		t.Fatalf("Initialize() second call error = %v", err)
	}
	if GetConfig().Server.ListenAddress != "0.0.0.0:9090" {
		t.Error("Expected second Initialize to be ignored")
	}
}

func TestReloadConfig(t *testing.T) {
	resetSingleton()
	t.Cleanup(resetSingleton)

	SetConfig(NewDefaultConfig())

	if _, err := ReloadConfig(writeConfig(t, "limits:\n  policies:\n    p:\n      limit: 0\n      window: -1s\n")); err == nil {
		t.Fatal("Expected reload of invalid config to fail")
	}
	if GetConfig().Server.ListenAddress != DefaultListenAddress {
		t.Error("Expected previous config to survive failed reload")
	}

	cfg, err := ReloadConfig(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("ReloadConfig() error = %v", err)
	}
	if GetConfig() != cfg {
		t.Error("Expected reloaded config to become global")
	}
}

func TestMustGetConfig_Panics(t *testing.T) {
	resetSingleton()
	t.Cleanup(resetSingleton)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic without configuration")
		}
	}()
	MustGetConfig()
}
