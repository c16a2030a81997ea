// Package serialport opens the UART links to the ranger and motor bridge
// microcontrollers.
package serialport

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/teslashibe/go-follower/internal/config"
)

// DefaultBaudRate is used by both MCUs unless configured otherwise.
const DefaultBaudRate = 115200

// PortOptions describes the serial connection parameters for a device.
type PortOptions struct {
	Path        string        `json:"path"`
	BaudRate    int           `json:"baud_rate"`
	DataBits    int           `json:"data_bits"`
	StopBits    int           `json:"stop_bits"`
	Parity      string        `json:"parity"`
	ReadTimeout time.Duration `json:"read_timeout"`
}

// UnmarshalJSON accepts the read timeout as a duration string ("100ms") or nanoseconds.
func (o *PortOptions) UnmarshalJSON(data []byte) error {
	type plain PortOptions
	aux := struct {
		*plain
		ReadTimeout config.Duration `json:"read_timeout"`
	}{
		plain:       (*plain)(o),
		ReadTimeout: config.Duration(o.ReadTimeout),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	o.ReadTimeout = time.Duration(aux.ReadTimeout)
	return nil
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 100 * time.Millisecond
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	opts.Parity = parity

	return opts, nil
}

// Mode converts the options into the serial.Mode used by go.bug.st/serial.
func (o PortOptions) Mode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	} else {
		mode.StopBits = serial.OneStopBit
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// Port is the subset of serial.Port the device drivers use.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Open opens the configured device with its read timeout applied.
func Open(opts PortOptions) (serial.Port, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("serialport: no device path")
	}
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}
	normalized, _ := opts.Normalize()

	port, err := serial.Open(opts.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Path, err)
	}
	if err := port.SetReadTimeout(normalized.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", opts.Path, err)
	}
	return port, nil
}

// ListPorts returns the serial devices present on the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
