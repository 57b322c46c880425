package fungen

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Conn is the command channel to the generator. Every exchange is one
// command line and one response line; commands ("!") answer "OK" on
// success and "ERROR" otherwise.
//
// Implementations must be safe for concurrent use.
type Conn interface {
	Query(cmd string) (string, error)
	Close() error
}

// digitalLines is the number of digital I/O lines on the LSG front panel.
const digitalLines = 8

// SimConn emulates an LSG generator behind the wire protocol. It is the
// default transport for simulated benches and for tests.
type SimConn struct {
	mu        sync.Mutex
	closed    bool
	frequency float64
	amplitude float64
	offset    float64
	waveform  int
	output    bool
	dout      map[int]bool
	din       map[int]bool
}

// NewSimConn creates a simulator with power-on defaults: 1 kHz sine at
// 1 V amplitude, output disabled, all digital lines low.
func NewSimConn() *SimConn {
	return &SimConn{
		frequency: 1000,
		amplitude: 1,
		dout:      make(map[int]bool),
		din:       make(map[int]bool),
	}
}

// SetDigitalInput drives one simulated input line. Used by tests and
// demo scenarios to feed the read-only din feat.
func (c *SimConn) SetDigitalInput(line int, high bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.din[line] = high
}

// Close marks the connection closed; further queries fail.
func (c *SimConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Query dispatches one protocol line against the simulated state.
func (c *SimConn) Query(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", fmt.Errorf("%w: connection closed", ErrProtocol)
	}

	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "ERROR", nil
	}

	switch fields[0] {
	case "?IDN":
		return "LSG Serial #12345", nil
	case "?FRE":
		return formatFloat(c.frequency), nil
	case "!FRE":
		return c.setFloat(fields, &c.frequency), nil
	case "?AMP":
		return formatFloat(c.amplitude), nil
	case "!AMP":
		return c.setFloat(fields, &c.amplitude), nil
	case "?OFF":
		return formatFloat(c.offset), nil
	case "!OFF":
		return c.setFloat(fields, &c.offset), nil
	case "?WVF":
		return strconv.Itoa(c.waveform), nil
	case "!WVF":
		if len(fields) != 2 {
			return "ERROR", nil
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 || n > 3 {
			return "ERROR", nil
		}
		c.waveform = n
		return "OK", nil
	case "?OUT":
		return formatBool(c.output), nil
	case "!OUT":
		if len(fields) != 2 || !validBit(fields[1]) {
			return "ERROR", nil
		}
		c.output = fields[1] == "1"
		return "OK", nil
	case "?DOU":
		line, ok := parseLine(fields, 2)
		if !ok {
			return "ERROR", nil
		}
		return formatBool(c.dout[line]), nil
	case "!DOU":
		line, ok := parseLine(fields, 3)
		if !ok || !validBit(fields[2]) {
			return "ERROR", nil
		}
		c.dout[line] = fields[2] == "1"
		return "OK", nil
	case "?DIN":
		line, ok := parseLine(fields, 2)
		if !ok {
			return "ERROR", nil
		}
		return formatBool(c.din[line]), nil
	case "!CAL":
		return "OK", nil
	case "?TES":
		// Error count after power-on self test.
		return "0", nil
	case "!SWE":
		if len(fields) != 4 {
			return "ERROR", nil
		}
		for _, f := range fields[1:] {
			if _, err := strconv.ParseFloat(f, 64); err != nil {
				return "ERROR", nil
			}
		}
		return "OK", nil
	default:
		return "ERROR", nil
	}
}

// setFloat parses a one-argument float command into dst.
func (c *SimConn) setFloat(fields []string, dst *float64) string {
	if len(fields) != 2 {
		return "ERROR"
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return "ERROR"
	}
	*dst = v
	return "OK"
}

// parseLine extracts a digital line number from fields[1], requiring the
// exact field count.
func parseLine(fields []string, want int) (int, bool) {
	if len(fields) != want {
		return 0, false
	}
	line, err := strconv.Atoi(fields[1])
	if err != nil || line < 1 || line > digitalLines {
		return 0, false
	}
	return line, true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func validBit(s string) bool {
	return s == "0" || s == "1"
}
