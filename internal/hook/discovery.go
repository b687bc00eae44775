package hook

import (
	"bufio"
	"io"
	"strings"
)

// VirtualDeviceName is the name of the uinput device used for injection.
// Discovery skips it so injected input is never read back as user input.
const VirtualDeviceName = "macrorec virtual input"

// DeviceInfo describes one input device from /proc/bus/input/devices.
type DeviceInfo struct {
	Name     string
	Path     string
	Keyboard bool
	Mouse    bool
}

// parseDeviceList parses the /proc/bus/input/devices format and returns
// the keyboards and pointing devices that have an event handler.
func parseDeviceList(r io.Reader) ([]DeviceInfo, error) {
	var (
		devices         []DeviceInfo
		current         DeviceInfo
		hasMouseHandler bool
	)

	flush := func() {
		if current.Path != "" && current.Name != VirtualDeviceName {
			if hasMouseHandler {
				current.Mouse = true
			}
			if current.Keyboard || current.Mouse {
				devices = append(devices, current)
			}
		}
		current = DeviceInfo{}
		hasMouseHandler = false
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			flush()

		// N: Name="Logitech USB Receiver"
		case strings.HasPrefix(line, "N: Name="):
			current.Name = strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)

		// H: Handlers=sysrq kbd event3 leds
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
				switch {
				case strings.HasPrefix(part, "event"):
					current.Path = "/dev/input/" + part
				case strings.HasPrefix(part, "mouse"):
					hasMouseHandler = true
				}
			}

		// B: KEY=... (capability bitmap, long for keyboards)
		case strings.HasPrefix(line, "B: KEY="):
			if len(strings.TrimPrefix(line, "B: KEY=")) > 20 {
				current.Keyboard = true
			}

		// B: REL=... relative axes
		case strings.HasPrefix(line, "B: REL="):
			if strings.Trim(strings.TrimPrefix(line, "B: REL="), "0 ") != "" {
				current.Mouse = true
			}
		}
	}
	flush()

	return devices, scanner.Err()
}
