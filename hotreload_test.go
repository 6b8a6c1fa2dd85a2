package lockless

import (
	"testing"
	"time"
)

type fakeCadenceSetter struct {
	cadence time.Duration
}

func (f *fakeCadenceSetter) SetCadence(d time.Duration) { f.cadence = d }

type fakeLoadFactorSetter struct {
	factor float64
}

func (f *fakeLoadFactorSetter) SetLoadFactor(v float64) { f.factor = v }

func newTestHotConfig(gc CadenceSetter, hm LoadFactorSetter) *HotConfig {
	return &HotConfig{
		config:   DefaultConfig(),
		gcThread: gc,
		hashMap:  hm,
	}
}

func TestParseConfigReadsNestedSection(t *testing.T) {
	hc := newTestHotConfig(nil, nil)

	data := map[string]interface{}{
		"lockless": map[string]interface{}{
			"gc_cadence":          "10ms",
			"hashmap_load_factor": 0.85,
		},
	}

	got := hc.parseConfig(data)
	if got.GcCadence != 10*time.Millisecond {
		t.Fatalf("GcCadence = %v, want 10ms", got.GcCadence)
	}
	if got.HashMapLoadFactor != 0.85 {
		t.Fatalf("HashMapLoadFactor = %v, want 0.85", got.HashMapLoadFactor)
	}
}

func TestParseConfigReadsFlatSection(t *testing.T) {
	hc := newTestHotConfig(nil, nil)

	data := map[string]interface{}{
		"gc_cadence": "5ms",
	}

	got := hc.parseConfig(data)
	if got.GcCadence != 5*time.Millisecond {
		t.Fatalf("GcCadence = %v, want 5ms", got.GcCadence)
	}
}

func TestParseConfigIgnoresUnrecognizedData(t *testing.T) {
	hc := newTestHotConfig(nil, nil)
	before := hc.config

	got := hc.parseConfig(map[string]interface{}{"unrelated": "value"})
	if got != before {
		t.Fatalf("parseConfig changed config on unrelated data: got %+v, want %+v", got, before)
	}
}

func TestHandleConfigChangeAppliesCadenceAndLoadFactor(t *testing.T) {
	gc := &fakeCadenceSetter{}
	hm := &fakeLoadFactorSetter{}
	hc := newTestHotConfig(gc, hm)

	var oldSeen, newSeen Config
	hc.OnReload = func(o, n Config) {
		oldSeen, newSeen = o, n
	}

	hc.handleConfigChange(map[string]interface{}{
		"lockless": map[string]interface{}{
			"gc_cadence":          "7ms",
			"hashmap_load_factor": 0.6,
		},
	})

	if gc.cadence != 7*time.Millisecond {
		t.Fatalf("gcThread.SetCadence was called with %v, want 7ms", gc.cadence)
	}
	if hm.factor != 0.6 {
		t.Fatalf("hashMap.SetLoadFactor was called with %v, want 0.6", hm.factor)
	}
	if newSeen.GcCadence != 7*time.Millisecond {
		t.Fatalf("OnReload saw new GcCadence %v, want 7ms", newSeen.GcCadence)
	}
	if oldSeen.GcCadence == newSeen.GcCadence {
		t.Fatal("OnReload's old and new configs must differ when a reload actually changes something")
	}
}

func TestHandleConfigChangeToleratesNilSetters(t *testing.T) {
	hc := newTestHotConfig(nil, nil)

	// Must not panic when no GcThread/HashMap was wired in.
	hc.handleConfigChange(map[string]interface{}{
		"lockless": map[string]interface{}{"gc_cadence": "1ms"},
	})

	if hc.GetConfig().GcCadence != time.Millisecond {
		t.Fatalf("GetConfig().GcCadence = %v, want 1ms", hc.GetConfig().GcCadence)
	}
}

func TestNewHotConfigRequiresConfigPath(t *testing.T) {
	if _, err := NewHotConfig(HotConfigOptions{}); err == nil {
		t.Fatal("expected an error when ConfigPath is empty")
	}
}
