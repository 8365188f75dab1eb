package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charlie0129/drip/pkg/utils/ptr"
)

func TestFileDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}

	if got := f.ListenAddress(); got != ":8080" {
		t.Errorf("ListenAddress() = %q, want :8080", got)
	}
	if got := f.Hostname(); got != "micro-drip-relay" {
		t.Errorf("Hostname() = %q, want micro-drip-relay", got)
	}
	if got := f.RelayPin(); got != 5 {
		t.Errorf("RelayPin() = %d, want 5", got)
	}
	if got := f.IndicatorPin(); got != 2 {
		t.Errorf("IndicatorPin() = %d, want 2", got)
	}
	if !f.IndicatorActiveLow() {
		t.Errorf("IndicatorActiveLow() = false, want true")
	}
	if got := f.TickInterval(); got != 100*time.Millisecond {
		t.Errorf("TickInterval() = %v, want 100ms", got)
	}
	if got := f.ScheduleInterval(); got != "1hr" {
		t.Errorf("ScheduleInterval() = %q, want 1hr", got)
	}
}

func TestFileLoadEmpty(t *testing.T) {
	p := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(p, []byte("  \n"), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := NewFile(p)
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	if f.c == nil {
		t.Fatalf("config must not be nil after loading an empty file")
	}
	if got := f.ListenAddress(); got != ":8080" {
		t.Errorf("ListenAddress() = %q, want default", got)
	}
}

func TestFileLoadInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(p, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFile(p); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestFileSaveAndReload(t *testing.T) {
	p := filepath.Join(t.TempDir(), "drip.json")
	f, err := NewFile(p)
	if err != nil {
		t.Fatal(err)
	}

	f.SetScheduleCron("0 6 * * *")
	f.SetScheduleInterval("2hrs")
	f.SetAllowNonRootAccess(true)
	f.SetAdvertiseMDNS(false)
	if err := f.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded, err := NewFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.ScheduleCron(); got != "0 6 * * *" {
		t.Errorf("ScheduleCron() = %q", got)
	}
	if got := reloaded.ScheduleInterval(); got != "2hrs" {
		t.Errorf("ScheduleInterval() = %q", got)
	}
	if !reloaded.AllowNonRootAccess() {
		t.Errorf("AllowNonRootAccess() = false, want true")
	}
	if reloaded.AdvertiseMDNS() {
		t.Errorf("AdvertiseMDNS() = true, want false")
	}
	// Untouched values still come from defaults.
	if got := reloaded.RelayPin(); got != 5 {
		t.Errorf("RelayPin() = %d, want 5", got)
	}
}

func TestTickIntervalFloor(t *testing.T) {
	f := NewFileFromConfig(&RawFileConfig{TickIntervalMillis: ptr.To(0)}, "")
	if got := f.TickInterval(); got != minTickIntervalMillis*time.Millisecond {
		t.Errorf("TickInterval() = %v, want floor", got)
	}
}

func TestRawFileConfigFromConfig(t *testing.T) {
	f := NewFileFromConfig(&RawFileConfig{RelayPin: ptr.To(17), IndicatorPin: ptr.To(-1)}, "")

	raw, err := NewRawFileConfigFromConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if *raw.RelayPin != 17 {
		t.Errorf("RelayPin = %d, want 17", *raw.RelayPin)
	}
	if *raw.IndicatorPin != -1 {
		t.Errorf("IndicatorPin = %d, want -1", *raw.IndicatorPin)
	}
	if *raw.TickIntervalMillis != 100 {
		t.Errorf("TickIntervalMillis = %d, want 100", *raw.TickIntervalMillis)
	}

	if _, err := NewRawFileConfigFromConfig(nil); err == nil {
		t.Errorf("expected error for nil config")
	}
}
