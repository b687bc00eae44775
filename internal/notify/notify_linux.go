//go:build linux

package notify

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyBusName   = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyMethod    = notifyBusName + ".Notify"
	notifyTimeoutMs = 5000
)

// dbusNotifier replaces its previous notification so repeated
// interruptions do not stack up.
type dbusNotifier struct {
	conn *dbus.Conn
	obj  dbus.BusObject

	mu     sync.Mutex
	lastID uint32
}

func newPlatformNotifier() (Notifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: connect session bus: %v", ErrUnavailable, err)
	}
	var owned bool
	if err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, notifyBusName).Store(&owned); err != nil || !owned {
		conn.Close()
		return nil, fmt.Errorf("%w: no notification server", ErrUnavailable)
	}
	return &dbusNotifier{
		conn: conn,
		obj:  conn.Object(notifyBusName, notifyPath),
	}, nil
}

func (n *dbusNotifier) Notify(summary, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	call := n.obj.Call(notifyMethod, 0,
		AppName,
		n.lastID,
		"input-mouse",
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{},
		int32(notifyTimeoutMs),
	)
	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	n.lastID = id
	return nil
}

func (n *dbusNotifier) Close() error {
	return n.conn.Close()
}
