package monitoring

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}

func TestUseZap(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	core, logs := observer.New(zap.InfoLevel)
	flush := UseZap(zap.New(core))
	Logf("scan %d inserted %d cells", 3, 12)
	flush()

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	if got := entries[0].Message; got != "scan 3 inserted 12 cells" {
		t.Errorf("message = %q", got)
	}
}

func TestUseZap_Nil(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	flush := UseZap(nil)
	Logf("dropped")
	flush()
}

func TestNewZapLogger(t *testing.T) {
	for _, dev := range []bool{false, true} {
		l, err := NewZapLogger(dev)
		if err != nil {
			t.Fatalf("NewZapLogger(%v): %v", dev, err)
		}
		if got := l.Core().Enabled(zap.DebugLevel); got != dev {
			t.Errorf("NewZapLogger(%v) debug enabled = %v", dev, got)
		}
	}
}
