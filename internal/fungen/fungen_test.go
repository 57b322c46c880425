package fungen

import (
	"context"
	"errors"
	"testing"

	"github.com/lantzproject/lantz-core/internal/convert"
	"github.com/lantzproject/lantz-core/internal/units"
)

func TestPowerOnDefaults(t *testing.T) {
	conn := NewSimConn()
	d, err := New("fungen1", conn)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer Release(d)

	idn, err := d.Get("idn")
	if err != nil {
		t.Fatalf("Get(idn) error = %v", err)
	}
	if idn != "LSG Serial #12345" {
		t.Errorf("idn = %q", idn)
	}

	freq, err := d.Get("frequency")
	if err != nil {
		t.Fatalf("Get(frequency) error = %v", err)
	}
	if freq != units.New(1000, "Hz") {
		t.Errorf("frequency = %v, want 1000 Hz", freq)
	}

	wave, err := d.Get("waveform")
	if err != nil {
		t.Fatalf("Get(waveform) error = %v", err)
	}
	if wave != "sine" {
		t.Errorf("waveform = %v, want sine", wave)
	}

	out, err := d.Get("output_enabled")
	if err != nil {
		t.Fatalf("Get(output_enabled) error = %v", err)
	}
	if out != false {
		t.Errorf("output_enabled = %v, want false", out)
	}
}

func TestSetWithUnits(t *testing.T) {
	d, err := NewSimulated("fungen1")
	if err != nil {
		t.Fatal(err)
	}
	defer Release(d)

	if err := d.Set("frequency", units.New(5, "kHz")); err != nil {
		t.Fatalf("Set(frequency) error = %v", err)
	}
	freq, err := d.Get("frequency")
	if err != nil {
		t.Fatal(err)
	}
	if freq != units.New(5000, "Hz") {
		t.Errorf("frequency = %v, want 5000 Hz", freq)
	}

	if err := d.Set("amplitude", 2.5); err != nil {
		t.Fatalf("Set(amplitude) error = %v", err)
	}
	amp, err := d.Get("amplitude")
	if err != nil {
		t.Fatal(err)
	}
	if amp != units.New(2.5, "V") {
		t.Errorf("amplitude = %v, want 2.5 V", amp)
	}
}

func TestLimitsRejectOutOfRange(t *testing.T) {
	d, err := NewSimulated("fungen1")
	if err != nil {
		t.Fatal(err)
	}
	defer Release(d)

	err = d.Set("amplitude", units.New(20, "V"))
	if !errors.Is(err, convert.ErrOutOfRange) {
		t.Errorf("Set(amplitude, 20V) error = %v, want ErrOutOfRange", err)
	}
	err = d.Set("frequency", 0.5)
	if !errors.Is(err, convert.ErrOutOfRange) {
		t.Errorf("Set(frequency, 0.5) error = %v, want ErrOutOfRange", err)
	}
}

func TestMappedValuesRejectUnknown(t *testing.T) {
	d, err := NewSimulated("fungen1")
	if err != nil {
		t.Fatal(err)
	}
	defer Release(d)

	if err := d.Set("waveform", "square"); err != nil {
		t.Fatalf("Set(waveform, square) error = %v", err)
	}
	if err := d.Set("waveform", "sawtooth"); !errors.Is(err, convert.ErrInvalidValue) {
		t.Errorf("Set(waveform, sawtooth) error = %v, want ErrInvalidValue", err)
	}
}

func TestDigitalLines(t *testing.T) {
	conn := NewSimConn()
	d, err := New("fungen1", conn)
	if err != nil {
		t.Fatal(err)
	}
	defer Release(d)

	if err := d.SetKeyed("dout", 3, true); err != nil {
		t.Fatalf("SetKeyed(dout, 3) error = %v", err)
	}
	v, err := d.GetKeyed("dout", 3)
	if err != nil {
		t.Fatal(err)
	}
	if v != true {
		t.Errorf("dout[3] = %v, want true", v)
	}

	// Line numbers outside the panel are rejected before any I/O.
	if _, err := d.GetKeyed("dout", 9); err == nil {
		t.Error("GetKeyed(dout, 9) should fail")
	}

	conn.SetDigitalInput(2, true)
	v, err = d.GetKeyed("din", 2)
	if err != nil {
		t.Fatal(err)
	}
	if v != true {
		t.Errorf("din[2] = %v, want true", v)
	}

	// din has no setter.
	if err := d.SetKeyed("din", 2, false); err == nil {
		t.Error("SetKeyed(din) should fail, feat is read-only")
	}
}

func TestActions(t *testing.T) {
	d, err := NewSimulated("fungen1")
	if err != nil {
		t.Fatal(err)
	}
	defer Release(d)

	errCount, err := d.Call("self_test")
	if err != nil {
		t.Fatalf("Call(self_test) error = %v", err)
	}
	if errCount != 0 {
		t.Errorf("self_test = %v, want 0", errCount)
	}

	if _, err := d.Call("calibrate"); err != nil {
		t.Errorf("Call(calibrate) error = %v", err)
	}

	if _, err := d.Call("sweep", units.New(1, "kHz"), units.New(10, "kHz"), 5); err != nil {
		t.Errorf("Call(sweep) error = %v", err)
	}

	// Sweep bounds apply per parameter.
	if _, err := d.Call("sweep", 0.1, units.New(10, "kHz"), 5); !errors.Is(err, convert.ErrOutOfRange) {
		t.Errorf("Call(sweep, 0.1 Hz) error = %v, want ErrOutOfRange", err)
	}

	// Wrong arity never reaches the instrument.
	if _, err := d.Call("sweep", 1.0); err == nil {
		t.Error("Call(sweep) with one argument should fail")
	}
}

func TestLifecycle(t *testing.T) {
	d, err := NewSimulated("fungen1")
	if err != nil {
		t.Fatal(err)
	}
	defer Release(d)

	ctx := context.Background()
	if err := d.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if err := d.Set("output_enabled", true); err != nil {
		t.Fatal(err)
	}
	if err := d.Finalize(ctx); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	out, err := d.Get("output_enabled")
	if err != nil {
		t.Fatal(err)
	}
	if out != false {
		t.Errorf("output_enabled after finalize = %v, want false", out)
	}
}

func TestNoLink(t *testing.T) {
	cls, err := Class()
	if err != nil {
		t.Fatal(err)
	}
	d := cls.New("orphan")
	defer d.Close()

	if _, err := d.Get("frequency"); !errors.Is(err, ErrNoLink) {
		t.Errorf("Get() without connection error = %v, want ErrNoLink", err)
	}
}

func TestReleasedDeviceLosesLink(t *testing.T) {
	d, err := NewSimulated("fungen1")
	if err != nil {
		t.Fatal(err)
	}
	Release(d)

	if _, err := d.Get("frequency"); !errors.Is(err, ErrNoLink) {
		t.Errorf("Get() after Release error = %v, want ErrNoLink", err)
	}
}

func TestSimConnProtocol(t *testing.T) {
	conn := NewSimConn()

	tests := []struct {
		cmd  string
		want string
	}{
		{"?IDN", "LSG Serial #12345"},
		{"?FRE", "1000.00"},
		{"!FRE 2500.5", "OK"},
		{"?FRE", "2500.50"},
		{"!WVF 2", "OK"},
		{"?WVF", "2"},
		{"!WVF 7", "ERROR"},
		{"!OUT 1", "OK"},
		{"?OUT", "1"},
		{"!DOU 1 1", "OK"},
		{"?DOU 1", "1"},
		{"?DOU 0", "ERROR"},
		{"!DOU 9 1", "ERROR"},
		{"?BOGUS", "ERROR"},
		{"!SWE 1 10 0.5", "OK"},
		{"!SWE 1 ten 0.5", "ERROR"},
		{"", "ERROR"},
	}
	for _, tt := range tests {
		got, err := conn.Query(tt.cmd)
		if err != nil {
			t.Fatalf("Query(%q) error = %v", tt.cmd, err)
		}
		if got != tt.want {
			t.Errorf("Query(%q) = %q, want %q", tt.cmd, got, tt.want)
		}
	}

	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Query("?IDN"); !errors.Is(err, ErrProtocol) {
		t.Errorf("Query() after Close error = %v, want ErrProtocol", err)
	}
}
