//go:build !linux

package hook

import "fmt"

func newPlatformProvider(opts Options) (Provider, error) {
	return nil, fmt.Errorf("evdev backend requires linux: %w", ErrNotAvailable)
}
