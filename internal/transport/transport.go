// Package transport opens the byte sources the decoder reads from: a TCP
// or telnet serial bridge, a local serial port, or a capture file.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/muurk/aqualogic/internal/logging"
	"github.com/ziutek/telnet"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

// Kind selects the byte source type
type Kind string

const (
	KindTCP    Kind = "tcp"
	KindTelnet Kind = "telnet"
	KindSerial Kind = "serial"
	KindFile   Kind = "file"
)

// Defaults for the AquaLogic RS-485 bus
const (
	DefaultBaudRate    = 19200
	DefaultDialTimeout = 10 * time.Second
)

// Options describes a byte source
type Options struct {
	Kind        Kind
	Address     string // host:port, device path or file path
	BaudRate    int
	DialTimeout time.Duration
}

// String formats the options as a target URL
func (o Options) String() string {
	return fmt.Sprintf("%s://%s", o.Kind, o.Address)
}

// ParseTarget interprets a source string. Accepted forms:
//
//	tcp://host:port       telnet://host:port
//	serial:///dev/ttyUSB0 file://capture.bin
//	host:port             (tcp)
//	/dev/ttyUSB0, COM3    (serial)
func ParseTarget(target string) (Options, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return Options{}, &OpenError{Type: ErrTypeConfig, Err: fmt.Errorf("empty source")}
	}

	if scheme, rest, ok := strings.Cut(target, "://"); ok {
		kind := Kind(strings.ToLower(scheme))
		switch kind {
		case KindTCP, KindTelnet, KindSerial, KindFile:
		default:
			return Options{}, &OpenError{Type: ErrTypeConfig, Kind: kind, Target: target,
				Err: fmt.Errorf("unknown source scheme %q", scheme)}
		}
		if kind == KindTCP || kind == KindTelnet {
			if u, err := url.Parse(target); err == nil && u.Host != "" {
				rest = u.Host
			}
		}
		if rest == "" {
			return Options{}, &OpenError{Type: ErrTypeConfig, Kind: kind, Target: target,
				Err: fmt.Errorf("missing address")}
		}
		return Options{Kind: kind, Address: rest}, nil
	}

	if strings.HasPrefix(target, "/dev/") || strings.HasPrefix(strings.ToUpper(target), "COM") {
		return Options{Kind: KindSerial, Address: target}, nil
	}
	if _, _, err := net.SplitHostPort(target); err == nil {
		return Options{Kind: KindTCP, Address: target}, nil
	}
	return Options{Kind: KindFile, Address: target}, nil
}

// Open opens the byte source described by opts. For network sources ctx
// bounds the dial; it has no effect once the source is open.
func Open(ctx context.Context, opts Options) (io.ReadWriteCloser, error) {
	if opts.Address == "" {
		return nil, &OpenError{Type: ErrTypeConfig, Kind: opts.Kind, Err: fmt.Errorf("missing address")}
	}
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	var (
		rwc io.ReadWriteCloser
		err error
	)
	switch opts.Kind {
	case KindTCP:
		rwc, err = dialTCP(ctx, opts.Address, timeout)
	case KindTelnet:
		rwc, err = dialTelnet(opts.Address, timeout)
	case KindSerial:
		rwc, err = openSerial(opts.Address, opts.BaudRate)
	case KindFile:
		rwc, err = os.Open(opts.Address)
	default:
		return nil, &OpenError{Type: ErrTypeConfig, Kind: opts.Kind, Target: opts.Address,
			Err: fmt.Errorf("unknown source kind %q", opts.Kind)}
	}
	if err != nil {
		oe := classify(opts.Kind, opts.Address, err)
		logging.Warn("Failed to open byte source",
			zap.String("source", opts.String()),
			zap.String("type", oe.Type.String()),
			zap.Bool("retryable", oe.Retryable),
			zap.Error(err),
		)
		return nil, oe
	}

	logging.LogConnection(opts.String(), "opened")
	return rwc, nil
}

func dialTCP(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return d.DialContext(ctx, "tcp", address)
}

// dialTelnet connects to a bridge that speaks telnet (IAC sequences are
// stripped from the byte stream)
func dialTelnet(address string, timeout time.Duration) (*telnet.Conn, error) {
	return telnet.DialTimeout("tcp", address, timeout)
}

// openSerial opens a local port at the bus settings: 8 data bits, no
// parity, two stop bits. Reads block until data arrives; Close unblocks them.
func openSerial(path string, baud int) (serial.Port, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	}
	return serial.Open(path, mode)
}

// ListSerialPorts returns the serial ports present on this machine
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
