//go:build !linux

package notify

func newPlatformNotifier() (Notifier, error) {
	return nil, ErrUnavailable
}
