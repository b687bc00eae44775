//go:build linux

package hook

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const uinputPath = "/dev/uinput"

// uinput ioctls from linux/uinput.h.
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetRelBit  = 0x40045566
	uiSetAbsBit  = 0x40045567
)

const (
	busVirtual = 0x06

	uinputNameSize = 80
	absCount       = 64
	// sizeof(struct uinput_user_dev)
	uinputUserDevSize = uinputNameSize + 8 + 4 + 4*absCount*4
)

// uinputDevice is a virtual keyboard and absolute pointer.
type uinputDevice struct {
	mu sync.Mutex
	fd int
}

func openUinput(name string, width, height int32) (*uinputDevice, error) {
	fd, err := unix.Open(uinputPath, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", uinputPath, err)
	}
	dev := &uinputDevice{fd: fd}
	if err := dev.setup(name, width, height); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return dev, nil
}

func (d *uinputDevice) setup(name string, width, height int32) error {
	bits := []struct {
		req  uintptr
		vals []uintptr
	}{
		{uiSetEvBit, []uintptr{evSyn, evKey, evRel, evAbs}},
		{uiSetRelBit, []uintptr{relWheel, relHWheel}},
		{uiSetAbsBit, []uintptr{absX, absY}},
	}
	for _, b := range bits {
		for _, v := range b.vals {
			if err := ioctl(d.fd, b.req, v); err != nil {
				return fmt.Errorf("uinput setup: %w", err)
			}
		}
	}
	for code := range codeNames {
		if err := ioctl(d.fd, uiSetKeyBit, uintptr(code)); err != nil {
			return fmt.Errorf("uinput key bit %d: %w", code, err)
		}
	}
	for code := range charCodes {
		if err := ioctl(d.fd, uiSetKeyBit, uintptr(code)); err != nil {
			return fmt.Errorf("uinput key bit %d: %w", code, err)
		}
	}
	for _, code := range buttonCodes {
		if err := ioctl(d.fd, uiSetKeyBit, uintptr(code)); err != nil {
			return fmt.Errorf("uinput button bit %d: %w", code, err)
		}
	}

	// struct uinput_user_dev: name, input_id, ff_effects_max, absmax,
	// absmin, absfuzz, absflat
	buf := make([]byte, uinputUserDevSize)
	copy(buf[:uinputNameSize-1], name)
	binary.LittleEndian.PutUint16(buf[uinputNameSize:], busVirtual)
	binary.LittleEndian.PutUint16(buf[uinputNameSize+2:], 0x1)
	binary.LittleEndian.PutUint16(buf[uinputNameSize+4:], 0x1)
	binary.LittleEndian.PutUint16(buf[uinputNameSize+6:], 0x1)
	absMax := uinputNameSize + 8 + 4
	binary.LittleEndian.PutUint32(buf[absMax+4*absX:], uint32(width-1))
	binary.LittleEndian.PutUint32(buf[absMax+4*absY:], uint32(height-1))
	if _, err := unix.Write(d.fd, buf); err != nil {
		return fmt.Errorf("uinput write device: %w", err)
	}
	if err := ioctl(d.fd, uiDevCreate, 0); err != nil {
		return fmt.Errorf("uinput create: %w", err)
	}
	// udev needs a moment before the new node accepts events.
	time.Sleep(100 * time.Millisecond)
	return nil
}

func ioctl(fd int, req, arg uintptr) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, arg); errno != 0 {
		return errno
	}
	return nil
}

type rawEvent struct {
	typ, code uint16
	value     int32
}

// write sends the events followed by SYN_REPORT.
func (d *uinputDevice) write(events ...rawEvent) error {
	buf := make([]byte, 0, (len(events)+1)*inputEventSize)
	now := time.Now()
	for _, ev := range append(events, rawEvent{typ: evSyn, code: synReport}) {
		var b [inputEventSize]byte
		binary.LittleEndian.PutUint64(b[0:], uint64(now.Unix()))
		binary.LittleEndian.PutUint64(b[8:], uint64(now.Nanosecond()/1000))
		binary.LittleEndian.PutUint16(b[16:], ev.typ)
		binary.LittleEndian.PutUint16(b[18:], ev.code)
		binary.LittleEndian.PutUint32(b[20:], uint32(ev.value))
		buf = append(buf, b[:]...)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return ErrClosed
	}
	if _, err := unix.Write(d.fd, buf); err != nil {
		return fmt.Errorf("uinput write: %w", err)
	}
	return nil
}

func (d *uinputDevice) moveTo(x, y int32) error {
	return d.write(
		rawEvent{typ: evAbs, code: absX, value: x},
		rawEvent{typ: evAbs, code: absY, value: y},
	)
}

func (d *uinputDevice) key(code uint16, pressed bool) error {
	var v int32 = keyReleased
	if pressed {
		v = keyPressed
	}
	return d.write(rawEvent{typ: evKey, code: code, value: v})
}

func (d *uinputDevice) scroll(dx, dy int32) error {
	var events []rawEvent
	if dy != 0 {
		events = append(events, rawEvent{typ: evRel, code: relWheel, value: dy})
	}
	if dx != 0 {
		events = append(events, rawEvent{typ: evRel, code: relHWheel, value: dx})
	}
	if len(events) == 0 {
		return nil
	}
	return d.write(events...)
}

// Close destroys the virtual device.
func (d *uinputDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	ioctl(d.fd, uiDevDestroy, 0)
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}
