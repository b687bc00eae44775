//go:build linux

package hook

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"macrorec/internal/macro"
)

const devicesPath = "/proc/bus/input/devices"

// Linux input_event types and codes.
const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03

	synReport = 0

	relX      = 0x00
	relY      = 0x01
	relHWheel = 0x06
	relWheel  = 0x08

	absX = 0x00
	absY = 0x01

	keyReleased = 0
	keyPressed  = 1
	keyRepeated = 2
)

// inputEventSize is sizeof(struct input_event) on 64-bit kernels.
const inputEventSize = 24

// pollTimeout bounds how long a reader blocks before checking for
// uninstall.
const pollTimeout = 50 * time.Millisecond

type evdevProvider struct {
	opts Options
	log  *slog.Logger

	ptr  *pointer
	keys *modifiers

	mu     sync.Mutex
	hooks  map[*evdevHook]struct{}
	out    *uinputDevice
	closed bool
}

func newPlatformProvider(opts Options) (Provider, error) {
	return &evdevProvider{
		opts:  opts,
		log:   opts.Logger.With("component", "evdev"),
		ptr:   newPointer(int32(opts.ScreenWidth), int32(opts.ScreenHeight)),
		keys:  &modifiers{},
		hooks: make(map[*evdevHook]struct{}),
	}, nil
}

// pointer tracks the cursor position from relative and absolute motion,
// clamped to the screen.
type pointer struct {
	mu   sync.Mutex
	x, y int32
	w, h int32
}

func newPointer(w, h int32) *pointer {
	return &pointer{x: w / 2, y: h / 2, w: w, h: h}
}

func (p *pointer) move(dx, dy int32) (int32, int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.x = clamp(p.x+dx, 0, p.w-1)
	p.y = clamp(p.y+dy, 0, p.h-1)
	return p.x, p.y
}

func (p *pointer) set(x, y int32) (int32, int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.x = clamp(x, 0, p.w-1)
	p.y = clamp(y, 0, p.h-1)
	return p.x, p.y
}

func (p *pointer) position() (int32, int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.x, p.y
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// modifiers is the keyboard state shared by every reader.
type modifiers struct {
	mu       sync.Mutex
	shift    int
	capsLock bool
}

func (m *modifiers) update(code uint16, value int32) (shift, caps bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch code {
	case keyLeftShift, keyRightShift:
		switch value {
		case keyPressed:
			m.shift++
		case keyReleased:
			if m.shift > 0 {
				m.shift--
			}
		}
	case keyCapsLock:
		if value == keyPressed {
			m.capsLock = !m.capsLock
		}
	}
	return m.shift > 0, m.capsLock
}

// Install opens every configured or discovered device and starts one
// reader per device.
func (p *evdevProvider) Install(sink Sink) (Hook, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	paths := p.opts.Devices
	if len(paths) == 0 {
		found, err := discoverDevices()
		if err != nil {
			return nil, fmt.Errorf("discover input devices: %w", errors.Join(ErrNotAvailable, err))
		}
		for _, d := range found {
			paths = append(paths, d.Path)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no keyboard or mouse devices found: %w", ErrNotAvailable)
	}

	h := &evdevHook{p: p, sink: sink, stop: make(chan struct{})}
	for _, path := range paths {
		fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			p.log.Warn("cannot open input device", "path", path, "error", err)
			continue
		}
		r := &deviceReader{path: path, fd: fd, hook: h}
		r.loadAbsInfo()
		h.readers = append(h.readers, r)
	}
	if len(h.readers) == 0 {
		return nil, fmt.Errorf("cannot read input devices (need to be in 'input' group or run as root): %w", ErrNotAvailable)
	}

	p.mu.Lock()
	p.hooks[h] = struct{}{}
	p.mu.Unlock()

	for _, r := range h.readers {
		h.wg.Add(1)
		go r.run()
	}
	p.log.Debug("input hook installed", "devices", len(h.readers))
	return h, nil
}

func discoverDevices() ([]DeviceInfo, error) {
	f, err := os.Open(devicesPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseDeviceList(f)
}

type evdevHook struct {
	p       *evdevProvider
	sink    Sink
	readers []*deviceReader
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// Uninstall stops every reader and waits for them to exit. Readers wake at
// least once per poll timeout, so this returns within that bound.
func (h *evdevHook) Uninstall() error {
	h.once.Do(func() {
		close(h.stop)
		h.wg.Wait()
		h.p.mu.Lock()
		delete(h.p.hooks, h)
		h.p.mu.Unlock()
	})
	return nil
}

func (h *evdevHook) stopped() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

type absRange struct {
	min, max int32
	ok       bool
}

type deviceReader struct {
	path string
	fd   int
	hook *evdevHook
	absX absRange
	absY absRange

	// pending motion within one SYN_REPORT frame
	dx, dy         int32
	ax, ay         int32
	axSet, aySet   bool
	relMoved       bool
	wheelX, wheelY int32
}

// loadAbsInfo reads the absolute axis ranges via EVIOCGABS.
func (r *deviceReader) loadAbsInfo() {
	r.absX = readAbsRange(r.fd, absX)
	r.absY = readAbsRange(r.fd, absY)
}

func readAbsRange(fd int, axis uintptr) absRange {
	// struct input_absinfo: value, minimum, maximum, fuzz, flat, resolution
	var info [6]int32
	req := uintptr(0x80184540) + axis // EVIOCGABS(axis)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(unsafe.Pointer(&info))); errno != 0 {
		return absRange{}
	}
	if info[2] <= info[1] {
		return absRange{}
	}
	return absRange{min: info[1], max: info[2], ok: true}
}

func (r *deviceReader) run() {
	h := r.hook
	log := h.p.log
	defer h.wg.Done()
	defer unix.Close(r.fd)

	buf := make([]byte, inputEventSize*64)
	fds := []unix.PollFd{{Fd: int32(r.fd), Events: unix.POLLIN}}

	for !h.stopped() {
		n, err := unix.Poll(fds, int(pollTimeout/time.Millisecond))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			log.Warn("poll input device", "path", r.path, "error", err)
			return
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			log.Warn("input device went away", "path", r.path)
			return
		}

		n, err = unix.Read(r.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			log.Warn("read input device", "path", r.path, "error", err)
			return
		}
		for off := 0; off+inputEventSize <= n; off += inputEventSize {
			if h.stopped() {
				return
			}
			ev := buf[off : off+inputEventSize]
			r.handle(
				binary.LittleEndian.Uint16(ev[16:18]),
				binary.LittleEndian.Uint16(ev[18:20]),
				int32(binary.LittleEndian.Uint32(ev[20:24])),
			)
		}
	}
}

func (r *deviceReader) handle(typ, code uint16, value int32) {
	p := r.hook.p
	switch typ {
	case evRel:
		switch code {
		case relX:
			r.dx += value
			r.relMoved = true
		case relY:
			r.dy += value
			r.relMoved = true
		case relWheel:
			r.wheelY += value
		case relHWheel:
			r.wheelX += value
		}

	case evAbs:
		switch code {
		case absX:
			if r.absX.ok {
				r.ax = scaleAbs(value, r.absX, p.ptr.w)
				r.axSet = true
			}
		case absY:
			if r.absY.ok {
				r.ay = scaleAbs(value, r.absY, p.ptr.h)
				r.aySet = true
			}
		}

	case evKey:
		if b, ok := buttonForCode(code); ok {
			if value == keyRepeated {
				return
			}
			x, y := p.ptr.position()
			r.emit(Input{Kind: InputClick, X: x, Y: y, Button: b, Pressed: value == keyPressed})
			return
		}
		if code >= btnLeft {
			// touch and tool buttons
			return
		}
		shift, caps := p.keys.update(code, value)
		in := Input{Kind: InputKeyDown, Code: code, Char: KeyChar(code, shift, caps)}
		if value == keyReleased {
			in.Kind = InputKeyUp
		}
		in.Name, _ = KeyName(code)
		r.emit(in)

	case evSyn:
		if code != synReport {
			return
		}
		r.flush()
	}
}

func (r *deviceReader) flush() {
	p := r.hook.p
	if r.axSet || r.aySet || r.relMoved {
		var x, y int32
		if r.axSet || r.aySet {
			x, y = p.ptr.position()
			if r.axSet {
				x = r.ax
			}
			if r.aySet {
				y = r.ay
			}
			x, y = p.ptr.set(x, y)
		} else {
			x, y = p.ptr.move(r.dx, r.dy)
		}
		r.emit(Input{Kind: InputMove, X: x, Y: y})
	}
	if r.wheelX != 0 || r.wheelY != 0 {
		x, y := p.ptr.position()
		r.emit(Input{Kind: InputScroll, X: x, Y: y, DX: r.wheelX, DY: r.wheelY})
	}
	r.dx, r.dy, r.wheelX, r.wheelY = 0, 0, 0, 0
	r.axSet, r.aySet, r.relMoved = false, false, false
}

func scaleAbs(v int32, rng absRange, size int32) int32 {
	span := int64(rng.max - rng.min)
	return int32(int64(v-rng.min) * int64(size-1) / span)
}

func (r *deviceReader) emit(in Input) {
	in.At = time.Now()
	r.hook.sink(in)
}

func (p *evdevProvider) device() (*uinputDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.out != nil {
		return p.out, nil
	}
	dev, err := openUinput(VirtualDeviceName, p.ptr.w, p.ptr.h)
	if err != nil {
		return nil, fmt.Errorf("create virtual input device: %w", errors.Join(ErrNotAvailable, err))
	}
	p.out = dev
	p.log.Debug("virtual input device created", "name", VirtualDeviceName)
	return dev, nil
}

// MoveTo warps the pointer to an absolute screen position.
func (p *evdevProvider) MoveTo(x, y int32) error {
	dev, err := p.device()
	if err != nil {
		return err
	}
	x, y = p.ptr.set(x, y)
	return dev.moveTo(x, y)
}

// Button presses or releases a mouse button.
func (p *evdevProvider) Button(b macro.Button, pressed bool) error {
	code, ok := buttonCodes[b]
	if !ok {
		return fmt.Errorf("button %s: %w", b, ErrUnmappedKey)
	}
	dev, err := p.device()
	if err != nil {
		return err
	}
	return dev.key(code, pressed)
}

// Scroll emits wheel steps.
func (p *evdevProvider) Scroll(dx, dy int32) error {
	dev, err := p.device()
	if err != nil {
		return err
	}
	return dev.scroll(dx, dy)
}

// Key presses or releases a key. Characters needing shift are typed with
// shift held around the press.
func (p *evdevProvider) Key(k macro.KeyToken, pressed bool) error {
	stroke, ok := strokeFor(k)
	if !ok {
		return fmt.Errorf("key %s: %w", k, ErrUnmappedKey)
	}
	dev, err := p.device()
	if err != nil {
		return err
	}
	if !pressed {
		return dev.key(stroke.code, false)
	}
	if stroke.shift {
		if err := dev.key(keyLeftShift, true); err != nil {
			return err
		}
		defer dev.key(keyLeftShift, false)
	}
	return dev.key(stroke.code, true)
}

// Close uninstalls every hook and destroys the virtual device.
func (p *evdevProvider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	hooks := make([]*evdevHook, 0, len(p.hooks))
	for h := range p.hooks {
		hooks = append(hooks, h)
	}
	out := p.out
	p.out = nil
	p.mu.Unlock()

	for _, h := range hooks {
		h.Uninstall()
	}
	if out != nil {
		return out.Close()
	}
	return nil
}
