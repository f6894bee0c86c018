package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"syscall"

	"go.bug.st/serial"
)

// ErrorType represents the category of error that occurred while opening a
// byte source
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout indicates the dial timed out
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the bridge refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeNotFound indicates the serial port or file does not exist
	ErrTypeNotFound
	// ErrTypePermission indicates the port or file is not accessible
	ErrTypePermission
	// ErrTypeBusy indicates the serial port is held by another process
	ErrTypeBusy
	// ErrTypeConfig indicates invalid source options
	ErrTypeConfig
	// ErrTypeUnknown indicates an unknown or unexpected error
	ErrTypeUnknown
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeNotFound:
		return "Not Found"
	case ErrTypePermission:
		return "Permission Denied"
	case ErrTypeBusy:
		return "Port Busy"
	case ErrTypeConfig:
		return "Configuration Error"
	case ErrTypeUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// OpenError represents a failure to open a byte source
type OpenError struct {
	Type      ErrorType // Category of error
	Kind      Kind      // Source kind being opened
	Target    string    // Address, port or path
	Err       error     // Underlying error (if any)
	Retryable bool      // Whether reconnecting later may succeed
}

// Error implements the error interface
func (e *OpenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: open %s %s: %v", e.Type, e.Kind, e.Target, e.Err)
	}
	return fmt.Sprintf("%s: open %s %s", e.Type, e.Kind, e.Target)
}

// Unwrap returns the underlying error for error chain inspection
func (e *OpenError) Unwrap() error {
	return e.Err
}

// classify wraps err in an OpenError with a category derived from it
func classify(kind Kind, target string, err error) *OpenError {
	oe := &OpenError{Type: ErrTypeUnknown, Kind: kind, Target: target, Err: err}

	var portErr *serial.PortError
	var dnsErr *net.DNSError
	var opErr *net.OpError

	switch {
	case errors.As(err, &portErr):
		switch portErr.Code() {
		case serial.PortNotFound:
			oe.Type = ErrTypeNotFound
		case serial.PermissionDenied:
			oe.Type = ErrTypePermission
		case serial.PortBusy:
			oe.Type, oe.Retryable = ErrTypeBusy, true
		case serial.InvalidSpeed, serial.InvalidDataBits, serial.InvalidParity, serial.InvalidStopBits:
			oe.Type = ErrTypeConfig
		}
	case os.IsTimeout(err):
		oe.Type, oe.Retryable = ErrTypeTimeout, true
	case errors.As(err, &dnsErr):
		oe.Type, oe.Retryable = ErrTypeDNS, dnsErr.IsTemporary
	case errors.Is(err, syscall.ECONNREFUSED):
		oe.Type, oe.Retryable = ErrTypeConnectionRefused, true
	case errors.As(err, &opErr):
		oe.Type, oe.Retryable = ErrTypeNetwork, true
	case errors.Is(err, fs.ErrNotExist):
		oe.Type = ErrTypeNotFound
	case errors.Is(err, fs.ErrPermission):
		oe.Type = ErrTypePermission
	}
	return oe
}

// IsRetryable reports whether err is an OpenError worth retrying
func IsRetryable(err error) bool {
	var oe *OpenError
	if errors.As(err, &oe) {
		return oe.Retryable
	}
	return false
}
