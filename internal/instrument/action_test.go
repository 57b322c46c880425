package instrument

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lantzproject/lantz-core/internal/convert"
	"github.com/lantzproject/lantz-core/internal/modifier"
	"github.com/lantzproject/lantz-core/internal/units"
)

func mustAction(t *testing.T, name string, cfg ActionConfig) *Action {
	t.Helper()
	a, err := NewAction(name, cfg)
	if err != nil {
		t.Fatalf("NewAction(%s): %v", name, err)
	}
	return a
}

func newActionTestDevice(t *testing.T, actions ...*Action) *Device {
	t.Helper()
	cls := NewClass("TestDriver")
	for _, a := range actions {
		if err := cls.AddAction(a); err != nil {
			t.Fatalf("AddAction(%s): %v", a.Name(), err)
		}
	}
	return cls.New("dut")
}

func TestActionCall(t *testing.T) {
	var seen []any
	a := mustAction(t, "sweep", ActionConfig{
		Do: func(_ *Device, args ...any) (any, error) {
			seen = append(seen[:0], args...)
			return "done", nil
		},
		Params: []string{"start", "stop"},
	})
	d := newActionTestDevice(t, a)

	result, err := a.Call(d, 1.0, 2.0)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != "done" {
		t.Fatalf("Call = %v, want done", result)
	}
	if len(seen) != 2 || seen[0] != 1.0 || seen[1] != 2.0 {
		t.Fatalf("args = %v", seen)
	}
	if n := d.Stats().Get("sweep", OpCall).Count; n != 1 {
		t.Errorf("call stat count = %d, want 1", n)
	}
}

func TestActionArity(t *testing.T) {
	a := mustAction(t, "sweep", ActionConfig{
		Do:     func(*Device, ...any) (any, error) { return nil, nil },
		Params: []string{"start", "stop"},
	})
	d := newActionTestDevice(t, a)

	if _, err := a.Call(d, 1.0); !errors.Is(err, ErrBadArguments) {
		t.Fatalf("Call with 1 arg: err = %v, want ErrBadArguments", err)
	}
	if _, err := a.Call(d, 1.0, 2.0, 3.0); !errors.Is(err, ErrBadArguments) {
		t.Fatalf("Call with 3 args: err = %v, want ErrBadArguments", err)
	}
}

func TestActionParamConversion(t *testing.T) {
	var seen []any
	a := mustAction(t, "move_to", ActionConfig{
		Do: func(_ *Device, args ...any) (any, error) {
			seen = append(seen[:0], args...)
			return nil, nil
		},
		Params: []string{"position", "mode"},
		ParamMods: map[string]ParamModifiers{
			"position": {
				Units:  "mm",
				Limits: convert.Range{Low: 0, High: 100},
			},
			"mode": {
				Values: convert.Mapping{"fast": 1, "slow": 0},
			},
		},
	})
	d := newActionTestDevice(t, a)

	if _, err := a.Call(d, units.New(2.0, "cm"), "fast"); err != nil {
		t.Fatalf("Call: %v", err)
	}
	pos, ok := seen[0].(float64)
	if !ok || pos != 20 {
		t.Fatalf("position arg = %v, want 20.0", seen[0])
	}
	if seen[1] != 1 {
		t.Fatalf("mode arg = %v, want 1", seen[1])
	}

	if _, err := a.Call(d, 200.0, "fast"); !errors.Is(err, convert.ErrOutOfRange) {
		t.Fatalf("out-of-range call: err = %v, want ErrOutOfRange", err)
	}
	if _, err := a.Call(d, 20.0, "warp"); !errors.Is(err, convert.ErrInvalidValue) {
		t.Fatalf("bad mode call: err = %v, want ErrInvalidValue", err)
	}
	if n := d.Stats().Get("move_to", OpFailedCall).Count; n != 2 {
		t.Errorf("failed_call stat count = %d, want 2", n)
	}
}

func TestActionDefaultParamModifiers(t *testing.T) {
	var seen []any
	a := mustAction(t, "set_window", ActionConfig{
		Do: func(_ *Device, args ...any) (any, error) {
			seen = append(seen[:0], args...)
			return nil, nil
		},
		Params: []string{"low", "high", "mode"},
		Default: ParamModifiers{
			Units:  "mm",
			Limits: convert.Range{Low: 0, High: 100},
		},
		ParamMods: map[string]ParamModifiers{
			"mode": {
				Values: convert.Mapping{"fast": 1, "slow": 0},
			},
		},
	})
	d := newActionTestDevice(t, a)

	if _, err := a.Call(d, units.New(1.0, "cm"), units.New(3.0, "cm"), "fast"); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if seen[0] != 10.0 || seen[1] != 30.0 {
		t.Fatalf("window args = %v, want [10 30]", seen[:2])
	}
	if seen[2] != 1 {
		t.Fatalf("mode arg = %v, want 1", seen[2])
	}

	// The defaults bind to the parameters without an explicit entry.
	if _, err := a.Call(d, 5.0, 200.0, "slow"); !errors.Is(err, convert.ErrOutOfRange) {
		t.Fatalf("out-of-range high: err = %v, want ErrOutOfRange", err)
	}
	// An explicit entry fully replaces the defaults, it does not merge.
	if _, err := a.Call(d, 5.0, 10.0, units.New(1.0, "mm")); !errors.Is(err, convert.ErrInvalidValue) {
		t.Fatalf("mode with default units: err = %v, want ErrInvalidValue", err)
	}
}

func TestActionReturnConversion(t *testing.T) {
	a := mustAction(t, "read_position", ActionConfig{
		Do: func(*Device, ...any) (any, error) {
			return 20.0, nil
		},
		Ret: ParamModifiers{Units: "mm"},
	})
	d := newActionTestDevice(t, a)

	result, err := a.Call(d)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	q, ok := result.(units.Quantity)
	if !ok {
		t.Fatalf("result = %T, want units.Quantity", result)
	}
	if q.Unit() != "mm" || q.Magnitude() != 20 {
		t.Fatalf("result = %v, want 20 mm", q)
	}
}

func TestActionPerDeviceParamOverride(t *testing.T) {
	a := mustAction(t, "jog", ActionConfig{
		Do:     func(*Device, ...any) (any, error) { return nil, nil },
		Params: []string{"distance"},
		ParamMods: map[string]ParamModifiers{
			"distance": {Limits: convert.Range{Low: 0, High: 10}},
		},
	})
	cls := NewClass("TestDriver")
	if err := cls.AddAction(a); err != nil {
		t.Fatal(err)
	}
	wide := cls.New("wide")
	strict := cls.New("strict")

	if err := a.SetParamModifier(wide, "distance", modifier.Limits, convert.Range{Low: 0, High: 1000}); err != nil {
		t.Fatalf("SetParamModifier: %v", err)
	}

	if _, err := a.Call(wide, 500.0); err != nil {
		t.Errorf("Call on overridden device: %v", err)
	}
	if _, err := a.Call(strict, 500.0); !errors.Is(err, convert.ErrOutOfRange) {
		t.Errorf("Call on default device: err = %v, want ErrOutOfRange", err)
	}

	if err := a.SetParamModifier(wide, "missing", modifier.Limits, nil); !errors.Is(err, ErrBadArguments) {
		t.Errorf("SetParamModifier on unknown param: err = %v, want ErrBadArguments", err)
	}
}

func TestActionSimulator(t *testing.T) {
	hardwareCalls := 0
	a := mustAction(t, "self_test", ActionConfig{
		Do: func(*Device, ...any) (any, error) {
			hardwareCalls++
			return "real", nil
		},
	})
	d := newActionTestDevice(t, a)
	d.AttachSimulator(&Simulator{
		Calls: map[string]func(*Device, ...any) (any, error){
			"self_test": func(*Device, ...any) (any, error) { return "simulated", nil },
		},
	})

	result, err := a.Call(d)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != "simulated" {
		t.Fatalf("Call = %v, want simulated", result)
	}
	if hardwareCalls != 0 {
		t.Errorf("hardware called %d times", hardwareCalls)
	}
}

func TestActionCallAsync(t *testing.T) {
	release := make(chan struct{})
	a := mustAction(t, "settle", ActionConfig{
		Do: func(*Device, ...any) (any, error) {
			<-release
			return 7, nil
		},
	})
	d := newActionTestDevice(t, a)

	fut := a.CallAsync(d)
	select {
	case <-fut.Done():
		t.Fatal("future settled before the action finished")
	default:
	}

	// A cancelled wait leaves the call running.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fut.Result(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Result with cancelled ctx: err = %v", err)
	}

	close(release)
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := fut.Result(ctx)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if got != 7 {
		t.Fatalf("Result = %v, want 7", got)
	}
}

func TestActionConfigValidation(t *testing.T) {
	if _, err := NewAction("nop", ActionConfig{}); !errors.Is(err, ErrBadArguments) {
		t.Errorf("missing Do: err = %v, want ErrBadArguments", err)
	}
	if _, err := NewAction("dup", ActionConfig{
		Do:     func(*Device, ...any) (any, error) { return nil, nil },
		Params: []string{"x", "x"},
	}); !errors.Is(err, ErrBadArguments) {
		t.Errorf("duplicate param: err = %v, want ErrBadArguments", err)
	}
	if _, err := NewAction("stray", ActionConfig{
		Do:        func(*Device, ...any) (any, error) { return nil, nil },
		Params:    []string{"x"},
		ParamMods: map[string]ParamModifiers{"y": {Units: "V"}},
	}); !errors.Is(err, ErrBadArguments) {
		t.Errorf("stray param mods: err = %v, want ErrBadArguments", err)
	}
}
