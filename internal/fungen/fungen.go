package fungen

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/lantzproject/lantz-core/internal/convert"
	"github.com/lantzproject/lantz-core/internal/instrument"
)

// Frequency and amplitude ranges of the LSG series hardware.
const (
	minFrequencyHz = 1.0
	maxFrequencyHz = 1e8
	maxAmplitudeV  = 10.0
	maxOffsetV     = 5.0
)

var (
	classOnce sync.Once
	class     *instrument.Class
	classErr  error

	connMu sync.RWMutex
	conns  = make(map[*instrument.Device]Conn)
)

// Class returns the shared LSG instrument class, building it on first use.
func Class() (*instrument.Class, error) {
	classOnce.Do(func() {
		class, classErr = buildClass()
	})
	if classErr != nil {
		return nil, fmt.Errorf("building fungen class: %w", classErr)
	}
	return class, nil
}

// New creates a device named name driving the generator behind conn.
// Release the device with Release when done.
func New(name string, conn Conn) (*instrument.Device, error) {
	cls, err := Class()
	if err != nil {
		return nil, err
	}
	d := cls.New(name)

	connMu.Lock()
	conns[d] = conn
	connMu.Unlock()

	return d, nil
}

// NewSimulated creates a device backed by the built-in protocol simulator.
func NewSimulated(name string) (*instrument.Device, error) {
	return New(name, NewSimConn())
}

// Release closes the device's connection and drops its per-device state.
func Release(d *instrument.Device) {
	connMu.Lock()
	conn := conns[d]
	delete(conns, d)
	connMu.Unlock()

	if conn != nil {
		conn.Close() //nolint:errcheck // Best effort on teardown
	}
	d.Close()
}

// connOf returns the connection registered for a device.
func connOf(d *instrument.Device) (Conn, error) {
	connMu.RLock()
	conn, ok := conns[d]
	connMu.RUnlock()
	if !ok {
		return nil, ErrNoLink
	}
	return conn, nil
}

// query sends one line and returns the response, mapping "ERROR" onto
// ErrProtocol.
func query(d *instrument.Device, cmd string) (string, error) {
	conn, err := connOf(d)
	if err != nil {
		return "", err
	}
	resp, err := conn.Query(cmd)
	if err != nil {
		return "", err
	}
	if resp == "ERROR" {
		return "", fmt.Errorf("%w: instrument rejected %q", ErrProtocol, cmd)
	}
	return resp, nil
}

// command sends one line and requires an "OK" response.
func command(d *instrument.Device, cmd string) error {
	resp, err := query(d, cmd)
	if err != nil {
		return err
	}
	if resp != "OK" {
		return fmt.Errorf("%w: unexpected response %q to %q", ErrProtocol, resp, cmd)
	}
	return nil
}

// queryFloat parses a float response.
func queryFloat(d *instrument.Device, cmd string) (any, error) {
	resp, err := query(d, cmd)
	if err != nil {
		return nil, err
	}
	v, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %w", ErrProtocol, resp, err)
	}
	return v, nil
}

// queryInt parses an integer response.
func queryInt(d *instrument.Device, cmd string) (any, error) {
	resp, err := query(d, cmd)
	if err != nil {
		return nil, err
	}
	v, err := strconv.Atoi(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %w", ErrProtocol, resp, err)
	}
	return v, nil
}

// setMagnitude formats a "!CMD value" line from a converted magnitude.
func setMagnitude(d *instrument.Device, cmd string, value any) error {
	v, ok := value.(float64)
	if !ok {
		return fmt.Errorf("%w: expected magnitude, got %T", convert.ErrInvalidValue, value)
	}
	return command(d, fmt.Sprintf("%s %s", cmd, strconv.FormatFloat(v, 'f', 2, 64)))
}

// setCode formats a "!CMD n" line from a mapped internal code.
func setCode(d *instrument.Device, cmd string, value any) error {
	n, ok := value.(int)
	if !ok {
		return fmt.Errorf("%w: expected mapped code, got %T", convert.ErrInvalidValue, value)
	}
	return command(d, fmt.Sprintf("%s %d", cmd, n))
}

// onOff maps the user-facing booleans onto the wire's 1/0.
func onOff() convert.Mapping {
	return convert.Mapping{true: 1, false: 0}
}

// lineKeys enumerates the valid digital line numbers.
func lineKeys() convert.Set {
	keys := make([]any, 0, digitalLines)
	for i := 1; i <= digitalLines; i++ {
		keys = append(keys, i)
	}
	return convert.NewSet(keys...)
}

// buildClass declares every feat and action of the LSG series.
func buildClass() (*instrument.Class, error) {
	cls := instrument.NewClass("LSGFunctionGenerator")

	idn, err := instrument.NewFeat("idn", instrument.FeatConfig{
		ReadOnce: true,
		Get: func(d *instrument.Device) (any, error) {
			return query(d, "?IDN")
		},
	})
	if err != nil {
		return nil, err
	}

	frequency, err := instrument.NewFeat("frequency", instrument.FeatConfig{
		Units:  "Hz",
		Limits: convert.Range{Low: minFrequencyHz, High: maxFrequencyHz},
		Get: func(d *instrument.Device) (any, error) {
			return queryFloat(d, "?FRE")
		},
		Set: func(d *instrument.Device, value any) error {
			return setMagnitude(d, "!FRE", value)
		},
	})
	if err != nil {
		return nil, err
	}

	amplitude, err := instrument.NewFeat("amplitude", instrument.FeatConfig{
		Units:  "V",
		Limits: convert.Range{Low: 0, High: maxAmplitudeV},
		Get: func(d *instrument.Device) (any, error) {
			return queryFloat(d, "?AMP")
		},
		Set: func(d *instrument.Device, value any) error {
			return setMagnitude(d, "!AMP", value)
		},
	})
	if err != nil {
		return nil, err
	}

	offset, err := instrument.NewFeat("offset", instrument.FeatConfig{
		Units:  "V",
		Limits: convert.Range{Low: -maxOffsetV, High: maxOffsetV},
		Get: func(d *instrument.Device) (any, error) {
			return queryFloat(d, "?OFF")
		},
		Set: func(d *instrument.Device, value any) error {
			return setMagnitude(d, "!OFF", value)
		},
	})
	if err != nil {
		return nil, err
	}

	waveform, err := instrument.NewFeat("waveform", instrument.FeatConfig{
		Values: convert.Mapping{"sine": 0, "square": 1, "triangle": 2, "ramp": 3},
		Get: func(d *instrument.Device) (any, error) {
			return queryInt(d, "?WVF")
		},
		Set: func(d *instrument.Device, value any) error {
			return setCode(d, "!WVF", value)
		},
	})
	if err != nil {
		return nil, err
	}

	outputEnabled, err := instrument.NewFeat("output_enabled", instrument.FeatConfig{
		Values: onOff(),
		Get: func(d *instrument.Device) (any, error) {
			return queryInt(d, "?OUT")
		},
		Set: func(d *instrument.Device, value any) error {
			return setCode(d, "!OUT", value)
		},
	})
	if err != nil {
		return nil, err
	}

	dout, err := instrument.NewDictFeat("dout", instrument.DictFeatConfig{
		Keys:   lineKeys(),
		Values: onOff(),
		Get: func(d *instrument.Device, key any) (any, error) {
			return queryInt(d, fmt.Sprintf("?DOU %d", key))
		},
		Set: func(d *instrument.Device, key, value any) error {
			n, ok := value.(int)
			if !ok {
				return fmt.Errorf("%w: expected mapped code, got %T", convert.ErrInvalidValue, value)
			}
			return command(d, fmt.Sprintf("!DOU %d %d", key, n))
		},
	})
	if err != nil {
		return nil, err
	}

	din, err := instrument.NewDictFeat("din", instrument.DictFeatConfig{
		Keys:   lineKeys(),
		Values: onOff(),
		Get: func(d *instrument.Device, key any) (any, error) {
			return queryInt(d, fmt.Sprintf("?DIN %d", key))
		},
	})
	if err != nil {
		return nil, err
	}

	initialize, err := instrument.NewAction("initialize", instrument.ActionConfig{
		Do: func(d *instrument.Device, _ ...any) (any, error) {
			// Verifies the link is up before the device joins a bench.
			_, err := query(d, "?IDN")
			return nil, err
		},
	})
	if err != nil {
		return nil, err
	}

	finalize, err := instrument.NewAction("finalize", instrument.ActionConfig{
		Do: func(d *instrument.Device, _ ...any) (any, error) {
			return nil, command(d, "!OUT 0")
		},
	})
	if err != nil {
		return nil, err
	}

	selfTest, err := instrument.NewAction("self_test", instrument.ActionConfig{
		Do: func(d *instrument.Device, _ ...any) (any, error) {
			// Returns the instrument's error count; zero means pass.
			return queryInt(d, "?TES")
		},
	})
	if err != nil {
		return nil, err
	}

	calibrate, err := instrument.NewAction("calibrate", instrument.ActionConfig{
		Do: func(d *instrument.Device, _ ...any) (any, error) {
			return nil, command(d, "!CAL")
		},
	})
	if err != nil {
		return nil, err
	}

	sweep, err := instrument.NewAction("sweep", instrument.ActionConfig{
		Params: []string{"start", "stop", "duration"},
		ParamMods: map[string]instrument.ParamModifiers{
			"start":    {Units: "Hz", Limits: convert.Range{Low: minFrequencyHz, High: maxFrequencyHz}},
			"stop":     {Units: "Hz", Limits: convert.Range{Low: minFrequencyHz, High: maxFrequencyHz}},
			"duration": {Units: "s", Limits: convert.Range{Low: 0.001, High: 3600}},
		},
		Do: func(d *instrument.Device, args ...any) (any, error) {
			start := args[0].(float64)
			stop := args[1].(float64)
			duration := args[2].(float64)
			return nil, command(d, fmt.Sprintf("!SWE %s %s %s",
				strconv.FormatFloat(start, 'f', 2, 64),
				strconv.FormatFloat(stop, 'f', 2, 64),
				strconv.FormatFloat(duration, 'f', 3, 64)))
		},
	})
	if err != nil {
		return nil, err
	}

	for _, f := range []*instrument.Feat{idn, frequency, amplitude, offset, waveform, outputEnabled} {
		if err := cls.AddFeat(f); err != nil {
			return nil, err
		}
	}
	for _, df := range []*instrument.DictFeat{dout, din} {
		if err := cls.AddDictFeat(df); err != nil {
			return nil, err
		}
	}
	for _, a := range []*instrument.Action{initialize, finalize, selfTest, calibrate, sweep} {
		if err := cls.AddAction(a); err != nil {
			return nil, err
		}
	}

	return cls, nil
}
