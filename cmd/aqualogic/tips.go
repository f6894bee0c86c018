package main

import (
	"errors"

	"github.com/muurk/aqualogic/internal/transport"
)

// troubleshootingTips returns hints for a failure to open a byte source
func troubleshootingTips(err error) []string {
	var oe *transport.OpenError
	if !errors.As(err, &oe) {
		return nil
	}

	switch oe.Type {
	case transport.ErrTypeTimeout, transport.ErrTypeNetwork:
		return []string{
			"Check the bridge is powered and on the same network",
			"Verify the address and port in the bridge's web page",
			"Try a longer --config source.dial_timeout",
		}
	case transport.ErrTypeConnectionRefused:
		return []string{
			"The host answered but nothing listens on that port",
			"Serial-to-network bridges commonly use port 8899 or 23",
			"Some bridges accept only one client; close other connections",
		}
	case transport.ErrTypeDNS:
		return []string{
			"Check the hostname, or use the bridge's IP address",
			"Run 'aqualogic discover' to find advertised bridges",
		}
	case transport.ErrTypeNotFound:
		if oe.Kind == transport.KindSerial {
			return []string{
				"Run 'aqualogic ports' to list serial ports",
				"Check the RS-485 adapter is plugged in",
			}
		}
		return []string{"Check the file path"}
	case transport.ErrTypePermission:
		return []string{
			"Add your user to the dialout (Linux) or uucp group",
			"Or run with sufficient privileges",
		}
	case transport.ErrTypeBusy:
		return []string{
			"Another program holds the port; stop it and retry",
		}
	case transport.ErrTypeConfig:
		return []string{
			"Sources look like tcp://host:port, telnet://host:port, /dev/ttyUSB0 or a file path",
		}
	default:
		return nil
	}
}
