package serial

import (
	"runtime"
	"strings"

	"obdscan/pkg/log"

	bugst "go.bug.st/serial"
	"go.uber.org/zap"
)

// adapter name fragments, most specific first
var adapterHints = []string{"rfcomm", "OBD", "ttyUSB", "ttyACM", "usbserial", "wchusbserial", "COM"}

// detectPlatformSerialDev picks the most likely OBD adapter among the
// serial ports of the machine, falling back to the platform default.
func detectPlatformSerialDev() string {
	ports, err := bugst.GetPortsList()
	if err != nil {
		log.Warn("Failed to enumerate serial ports", zap.Error(err))
	}
	if p := pickPort(ports); p != "" {
		log.Info("Detected serial port", zap.String("port", p), zap.Strings("candidates", ports))
		return p
	}
	return defaultPort(runtime.GOOS)
}

func pickPort(ports []string) string {
	for _, hint := range adapterHints {
		for _, p := range ports {
			if strings.Contains(p, hint) {
				return p
			}
		}
	}
	return ""
}

func defaultPort(goos string) string {
	switch goos {
	case "windows":
		return "COM3"
	case "darwin":
		return "/dev/tty.usbserial"
	}
	return "/dev/ttyUSB0"
}
