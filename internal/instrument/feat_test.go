package instrument

import (
	"errors"
	"sync"
	"testing"

	"github.com/lantzproject/lantz-core/internal/convert"
	"github.com/lantzproject/lantz-core/internal/modifier"
	"github.com/lantzproject/lantz-core/internal/pipeline"
	"github.com/lantzproject/lantz-core/internal/units"
)

// recordLogger captures log lines for assertions.
type recordLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordLogger) log(msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, msg)
	l.mu.Unlock()
}

func (l *recordLogger) Debug(msg string, _ ...any) { l.log(msg) }
func (l *recordLogger) Info(msg string, _ ...any)  { l.log(msg) }
func (l *recordLogger) Warn(msg string, _ ...any)  { l.log(msg) }
func (l *recordLogger) Error(msg string, _ ...any) { l.log(msg) }

func (l *recordLogger) has(line string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.lines {
		if got == line {
			return true
		}
	}
	return false
}

// fakeRegister is the hardware stand-in behind test feats.
type fakeRegister struct {
	mu     sync.Mutex
	value  any
	reads  int
	writes int
}

func (r *fakeRegister) get(_ *Device) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	return r.value, nil
}

func (r *fakeRegister) set(_ *Device, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	r.value = value
	return nil
}

func mustFeat(t *testing.T, name string, cfg FeatConfig) *Feat {
	t.Helper()
	f, err := NewFeat(name, cfg)
	if err != nil {
		t.Fatalf("NewFeat(%s): %v", name, err)
	}
	return f
}

func newTestDevice(t *testing.T, feats ...*Feat) (*Device, *recordLogger) {
	t.Helper()
	cls := NewClass("TestDriver")
	for _, f := range feats {
		if err := cls.AddFeat(f); err != nil {
			t.Fatalf("AddFeat(%s): %v", f.Name(), err)
		}
	}
	d := cls.New("dut")
	log := &recordLogger{}
	d.SetLogger(log)
	return d, log
}

func TestFeatGetSetLogging(t *testing.T) {
	reg := &fakeRegister{value: 42}
	f := mustFeat(t, "frequency", FeatConfig{Get: reg.get, Set: reg.set})
	d, log := newTestDevice(t, f)

	got, err := f.Get(d)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 42 {
		t.Fatalf("Get = %v, want 42", got)
	}
	if !log.has("Getting frequency") {
		t.Errorf("missing 'Getting frequency' in %v", log.lines)
	}
	if !log.has("Got 42 for frequency") {
		t.Errorf("missing 'Got 42 for frequency' in %v", log.lines)
	}

	if err := f.Set(d, 43); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if reg.value != 43 {
		t.Fatalf("register = %v, want 43", reg.value)
	}
	if !log.has("Setting frequency to 43") {
		t.Errorf("missing 'Setting frequency to 43' in %v", log.lines)
	}
	if !log.has("frequency was set to 43") {
		t.Errorf("missing 'frequency was set to 43' in %v", log.lines)
	}
}

func TestFeatRedundantSetSuppressed(t *testing.T) {
	reg := &fakeRegister{}
	f := mustFeat(t, "frequency", FeatConfig{Get: reg.get, Set: reg.set})
	d, log := newTestDevice(t, f)

	if err := f.Set(d, 43); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	if err := f.Set(d, 43); err != nil {
		t.Fatalf("second Set: %v", err)
	}

	if reg.writes != 1 {
		t.Errorf("writes = %d, want 1", reg.writes)
	}
	if !log.has("No need to set frequency = 43 (current=43)") {
		t.Errorf("missing suppression line in %v", log.lines)
	}
	if n := d.Stats().Get("frequency", OpSet).Count; n != 1 {
		t.Errorf("set stat count = %d, want 1", n)
	}
}

func TestFeatRedundantSetAllowed(t *testing.T) {
	reg := &fakeRegister{}
	f := mustFeat(t, "frequency", FeatConfig{
		Get: reg.get, Set: reg.set, AllowRedundantSets: true,
	})
	d, _ := newTestDevice(t, f)

	if err := f.Set(d, 43); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	if err := f.Set(d, 43); err != nil {
		t.Fatalf("second Set: %v", err)
	}
	if reg.writes != 2 {
		t.Errorf("writes = %d, want 2", reg.writes)
	}
}

func TestFeatReadOnce(t *testing.T) {
	reg := &fakeRegister{value: "idn"}
	f := mustFeat(t, "identification", FeatConfig{Get: reg.get, ReadOnce: true})
	d, log := newTestDevice(t, f)

	for i := 0; i < 3; i++ {
		got, err := f.Get(d)
		if err != nil {
			t.Fatalf("Get #%d: %v", i, err)
		}
		if got != "idn" {
			t.Fatalf("Get #%d = %v", i, got)
		}
	}
	if reg.reads != 1 {
		t.Errorf("reads = %d, want 1", reg.reads)
	}
	// The cache hit is silent.
	count := 0
	for _, line := range log.lines {
		if line == "Getting identification" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("'Getting identification' logged %d times, want 1", count)
	}
	if n := d.Stats().Get("identification", OpGet).Count; n != 1 {
		t.Errorf("get stat count = %d, want 1", n)
	}
}

func TestFeatValuesMapping(t *testing.T) {
	reg := &fakeRegister{}
	f := mustFeat(t, "output_enabled", FeatConfig{
		Get:    reg.get,
		Set:    reg.set,
		Values: convert.Mapping{true: 1, false: 0},
	})
	d, _ := newTestDevice(t, f)

	if err := f.Set(d, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if reg.value != 1 {
		t.Fatalf("register = %v, want 1", reg.value)
	}

	got, err := f.Get(d)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != true {
		t.Fatalf("Get = %v, want true", got)
	}

	if err := f.Set(d, "on"); err == nil {
		t.Fatal("Set with invalid value should fail")
	}
}

func TestFeatUnits(t *testing.T) {
	reg := &fakeRegister{}
	f := mustFeat(t, "voltage", FeatConfig{
		Get:   reg.get,
		Set:   reg.set,
		Units: "V",
	})
	d, _ := newTestDevice(t, f)

	if err := f.Set(d, units.New(1.5, "kV")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mag, ok := reg.value.(float64)
	if !ok || mag != 1500 {
		t.Fatalf("register = %v, want 1500.0", reg.value)
	}

	got, err := f.Get(d)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	q, ok := got.(units.Quantity)
	if !ok {
		t.Fatalf("Get = %T, want units.Quantity", got)
	}
	if q.Unit() != "V" || q.Magnitude() != 1500 {
		t.Fatalf("Get = %v, want 1500 V", q)
	}
}

func TestFeatLimits(t *testing.T) {
	reg := &fakeRegister{}
	f := mustFeat(t, "level", FeatConfig{
		Get:    reg.get,
		Set:    reg.set,
		Limits: convert.Range{Low: 0, High: 10, Step: 0.5},
	})
	d, _ := newTestDevice(t, f)

	if err := f.Set(d, 1.3); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if reg.value != 1.5 {
		t.Fatalf("register = %v, want grid-snapped 1.5", reg.value)
	}

	if err := f.Set(d, 99.0); !errors.Is(err, convert.ErrOutOfRange) {
		t.Fatalf("Set out of range: err = %v, want ErrOutOfRange", err)
	}
	if n := d.Stats().Get("level", OpFailedSet).Count; n != 1 {
		t.Errorf("failed_set stat count = %d, want 1", n)
	}
}

func TestFeatSetFuncsRunInDeclarationOrder(t *testing.T) {
	reg := &fakeRegister{}
	double := pipeline.Step{Name: "double", Apply: func(v any) (any, error) {
		return v.(int) * 2, nil
	}}
	addOne := pipeline.Step{Name: "add one", Apply: func(v any) (any, error) {
		return v.(int) + 1, nil
	}}
	f := mustFeat(t, "gain", FeatConfig{
		Set:      reg.set,
		SetFuncs: []pipeline.Step{double, addOne},
	})
	d, _ := newTestDevice(t, f)

	if err := f.Set(d, 3); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// (3*2)+1, not (3+1)*2.
	if reg.value != 7 {
		t.Fatalf("register = %v, want 7", reg.value)
	}
}

func TestFeatGetFuncsRunReversed(t *testing.T) {
	reg := &fakeRegister{value: 3}
	double := pipeline.Step{Name: "double", Apply: func(v any) (any, error) {
		return v.(int) * 2, nil
	}}
	addOne := pipeline.Step{Name: "add one", Apply: func(v any) (any, error) {
		return v.(int) + 1, nil
	}}
	f := mustFeat(t, "gain", FeatConfig{
		Get:      reg.get,
		GetFuncs: []pipeline.Step{double, addOne},
	})
	d, _ := newTestDevice(t, f)

	got, err := f.Get(d)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// Declaration order reversed: (3+1)*2.
	if got != 8 {
		t.Fatalf("Get = %v, want 8", got)
	}
}

func TestFeatPerInstanceModifierOverride(t *testing.T) {
	shared := &fakeRegister{}
	f := mustFeat(t, "level", FeatConfig{
		Set:    shared.set,
		Limits: convert.Range{Low: 0, High: 10},
	})
	cls := NewClass("TestDriver")
	if err := cls.AddFeat(f); err != nil {
		t.Fatal(err)
	}
	a := cls.New("a")
	b := cls.New("b")

	if err := f.SetModifier(a, modifier.Limits, convert.Range{Low: 0, High: 100}); err != nil {
		t.Fatalf("SetModifier: %v", err)
	}

	if err := f.Set(a, 50.0); err != nil {
		t.Fatalf("Set on overridden device: %v", err)
	}
	if err := f.Set(b, 50.0); !errors.Is(err, convert.ErrOutOfRange) {
		t.Fatalf("Set on default device: err = %v, want ErrOutOfRange", err)
	}

	// Closing the overridden device restores class behaviour for it.
	a.Close()
	if err := f.Set(a, 50.0); !errors.Is(err, convert.ErrOutOfRange) {
		t.Fatalf("Set after Close: err = %v, want ErrOutOfRange", err)
	}
}

func TestFeatSimulator(t *testing.T) {
	reg := &fakeRegister{value: 1}
	f := mustFeat(t, "frequency", FeatConfig{Get: reg.get, Set: reg.set})
	d, _ := newTestDevice(t, f)

	simValue := any(7)
	d.AttachSimulator(&Simulator{
		Getters: map[string]func(*Device, any) (any, error){
			"frequency": func(*Device, any) (any, error) { return simValue, nil },
		},
		Setters: map[string]func(*Device, any, any) error{
			"frequency": func(_ *Device, _ any, v any) error { simValue = v; return nil },
		},
	})

	got, err := f.Get(d)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 7 {
		t.Fatalf("Get = %v, want simulated 7", got)
	}
	if err := f.Set(d, 9); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if simValue != 9 {
		t.Fatalf("simValue = %v, want 9", simValue)
	}
	if reg.reads != 0 || reg.writes != 0 {
		t.Errorf("hardware touched: reads=%d writes=%d", reg.reads, reg.writes)
	}
}

func TestFeatChangeNotification(t *testing.T) {
	reg := &fakeRegister{}
	f := mustFeat(t, "frequency", FeatConfig{Get: reg.get, Set: reg.set})
	d, _ := newTestDevice(t, f)

	type change struct{ old, new any }
	var changes []change
	unsubscribe := d.OnChange("frequency", func(old, new any) {
		changes = append(changes, change{old, new})
	})

	if err := f.Set(d, 1); err != nil {
		t.Fatal(err)
	}
	if err := f.Set(d, 1); err != nil { // suppressed, no notification
		t.Fatal(err)
	}
	if err := f.Set(d, 2); err != nil {
		t.Fatal(err)
	}

	if len(changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(changes))
	}
	if changes[0].old != Unset || changes[0].new != 1 {
		t.Errorf("first change = %+v, want Unset -> 1", changes[0])
	}
	if changes[1].old != 1 || changes[1].new != 2 {
		t.Errorf("second change = %+v, want 1 -> 2", changes[1])
	}

	unsubscribe()
	if err := f.Set(d, 3); err != nil {
		t.Fatal(err)
	}
	if len(changes) != 2 {
		t.Errorf("listener fired after unsubscribe")
	}
}

func TestFeatDirectionErrors(t *testing.T) {
	reg := &fakeRegister{}
	readOnly := mustFeat(t, "serial", FeatConfig{Get: reg.get})
	writeOnly := mustFeat(t, "reset_code", FeatConfig{Set: reg.set})
	d, _ := newTestDevice(t, readOnly, writeOnly)

	if err := readOnly.Set(d, 1); !errors.Is(err, ErrNotWritable) {
		t.Errorf("Set on read-only: err = %v, want ErrNotWritable", err)
	}
	if _, err := writeOnly.Get(d); !errors.Is(err, ErrNotReadable) {
		t.Errorf("Get on write-only: err = %v, want ErrNotReadable", err)
	}
	if n := d.Stats().Get("serial", OpFailedSet).Count; n != 1 {
		t.Errorf("failed_set stat count = %d, want 1", n)
	}
}

func TestFeatBadModifierSpecFailsEarly(t *testing.T) {
	if _, err := NewFeat("broken", FeatConfig{Limits: 42}); !errors.Is(err, convert.ErrBadSpec) {
		t.Fatalf("NewFeat with bad limits: err = %v, want ErrBadSpec", err)
	}
}
