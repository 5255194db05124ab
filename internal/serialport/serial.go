// Package serialport opens the USB CDC serial link to a RetroWave board.
package serialport

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var ErrNoPort = errors.New("serialport: no port configured")

// Config selects the device. The board is USB CDC so the baud rate is not
// used on the wire, but some host drivers refuse to open without one.
type Config struct {
	Port string
	Baud int
}

// Port wraps a go.bug.st/serial port opened write-only for frames.
type Port struct {
	name   string
	port   serial.Port
	logger *slog.Logger
}

// Open opens the named serial device.
func Open(cfg Config, logger *slog.Logger) (*Port, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port == "" {
		return nil, ErrNoPort
	}
	baud := cfg.Baud
	if baud <= 0 {
		baud = 9600
	}
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(cfg.Port, mode)
	if err != nil {
		logger.Error("serial: failed to open port", "device", cfg.Port, "baud", baud, "err", err)
		return nil, fmt.Errorf("serialport: open %q: %w", cfg.Port, err)
	}
	logger.Info("serial: port opened", "device", cfg.Port, "baud", baud)
	return &Port{name: cfg.Port, port: p, logger: logger}, nil
}

func (p *Port) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Close closes the underlying serial port.
func (p *Port) Close() error {
	p.logger.Info("serial: closing port", "device", p.name)
	return p.port.Close()
}

// -------------------- Enumeration --------------------

// Info describes one serial port for listing.
type Info struct {
	Name    string
	Product string
	USB     bool
	VID     string
	PID     string
	Serial  string
}

func (i Info) String() string {
	if i.Product == "" {
		return i.Name
	}
	return i.Name + " | " + i.Product
}

// List returns the serial ports on this host, with USB details where the
// platform reports them.
func List() ([]Info, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil && len(details) > 0 {
		out := make([]Info, 0, len(details))
		for _, d := range details {
			out = append(out, Info{
				Name:    d.Name,
				Product: d.Product,
				USB:     d.IsUSB,
				VID:     d.VID,
				PID:     d.PID,
				Serial:  d.SerialNumber,
			})
		}
		return out, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: list: %w", err)
	}
	out := make([]Info, 0, len(names))
	for _, n := range names {
		out = append(out, Info{Name: n})
	}
	return out, nil
}

// Guess picks a likely RetroWave board: the first USB port whose product
// mentions RetroWave, else the only USB port present.
func Guess(ports []Info) (string, bool) {
	var usb []Info
	for _, p := range ports {
		if strings.Contains(strings.ToLower(p.Product), "retrowave") {
			return p.Name, true
		}
		if p.USB {
			usb = append(usb, p)
		}
	}
	if len(usb) == 1 {
		return usb[0].Name, true
	}
	return "", false
}
