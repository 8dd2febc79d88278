package subscribe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"unsafe"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/hoppxi/backlightd/internal/backlight"
	"github.com/hoppxi/backlightd/internal/sysfs"
)

// DefaultInputDevices matches every evdev node.
const DefaultInputDevices = "/dev/input/event*"

// linux/input-event-codes.h
const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03
	evMsc = 0x04
	evSw  = 0x05

	btnMouse         = 0x110
	btnTask          = 0x117
	btnToolFinger    = 0x145
	btnToolQuinttap  = 0x148
	btnTouch         = 0x14a
	btnToolDoubletap = 0x14d
	btnToolTripletap = 0x14e
	btnToolQuadtap   = 0x14f
	absMtSlot        = 0x2f
	absMtToolY       = 0x3d
	swLid            = 0x00
)

// inputEventSize is sizeof(struct input_event): a timeval followed by
// type (u16), code (u16) and value (s32).
var inputEventSize = int(unsafe.Sizeof(unix.Timeval{})) + 8

// classify maps a raw evdev record to a controller event. ok is false for
// records that carry no meaning on their own.
func classify(etype, code uint16, value int32) (ev backlight.Event, ok bool) {
	switch etype {
	case evSyn, evMsc:
		return ev, false
	case evRel:
		return backlight.Event{Kind: backlight.EventPointer}, true
	case evAbs:
		if code >= absMtSlot && code <= absMtToolY {
			return backlight.Event{Kind: backlight.EventTouch}, true
		}
		return backlight.Event{Kind: backlight.EventPointer}, true
	case evKey:
		switch {
		case code >= btnMouse && code <= btnTask:
			return backlight.Event{Kind: backlight.EventPointer}, true
		case code == btnTouch || code == btnToolFinger:
			return backlight.Event{Kind: backlight.EventTouch}, true
		case code == btnToolDoubletap || code == btnToolTripletap ||
			code == btnToolQuadtap || code == btnToolQuinttap:
			return backlight.Event{Kind: backlight.EventGesture}, true
		}
		return backlight.Event{Kind: backlight.EventKeyboard}, true
	case evSw:
		if code != swLid {
			return backlight.Event{Kind: backlight.EventOther}, true
		}
		if value != 0 {
			return backlight.LidToggle(backlight.LidClosed), true
		}
		return backlight.LidToggle(backlight.LidOpen), true
	}
	return backlight.Event{Kind: backlight.EventOther}, true
}

// decode splits a buffer of input_event records and calls fn for each one.
// A trailing partial record is ignored.
func decode(buf []byte, fn func(etype, code uint16, value int32)) {
	off := inputEventSize - 8
	for len(buf) >= inputEventSize {
		rec := buf[:inputEventSize]
		buf = buf[inputEventSize:]
		fn(
			binary.NativeEndian.Uint16(rec[off:off+2]),
			binary.NativeEndian.Uint16(rec[off+2:off+4]),
			int32(binary.NativeEndian.Uint32(rec[off+4:off+8])),
		)
	}
}

// ioctl request numbers, asm-generic/ioctl.h encoding.
const iocRead = 2

func eviocgbit(ev, size uint) uint { return iocRead<<30 | size<<16 | 'E'<<8 | (0x20 + ev) }
func eviocgsw(size uint) uint      { return iocRead<<30 | size<<16 | 'E'<<8 | 0x1b }

// lidFromSwitches turns EVIOCGBIT(EV_SW) and EVIOCGSW bitmasks into the
// current lid state. ok is false when the device has no lid switch.
func lidFromSwitches(caps, state uint32) (ev backlight.Event, ok bool) {
	if caps&(1<<swLid) == 0 {
		return ev, false
	}
	if state&(1<<swLid) != 0 {
		return backlight.LidToggle(backlight.LidClosed), true
	}
	return backlight.LidToggle(backlight.LidOpen), true
}

func openEvdev(path string) (int, error) {
	return unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
}

func readSwitches(fd int) (caps, state uint32, err error) {
	caps, err = unix.IoctlGetUint32(fd, eviocgbit(evSw, 4))
	if err != nil || caps == 0 {
		return caps, 0, err
	}
	state, err = unix.IoctlGetUint32(fd, eviocgsw(4))
	return caps, state, err
}

// inputSet is the epoll set of open evdev nodes. It is owned by one
// goroutine.
type inputSet struct {
	epfd     int
	pattern  string
	withLid  bool
	devices  map[int32]string
	open     func(path string) (int, error)
	switches func(fd int) (caps, state uint32, err error)
}

func newInputSet(pattern string, withLid bool) (*inputSet, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll: %w", err)
	}
	return &inputSet{
		epfd:     epfd,
		pattern:  pattern,
		withLid:  withLid,
		devices:  map[int32]string{},
		open:     openEvdev,
		switches: readSwitches,
	}, nil
}

func (s *inputSet) has(path string) bool {
	for _, p := range s.devices {
		if p == path {
			return true
		}
	}
	return false
}

// add opens path and registers it. With withLid set, a device carrying a
// lid switch reports its current state through emit.
func (s *inputSet) add(path string, emit func(backlight.Event)) error {
	fd, err := s.open(path)
	if err != nil {
		return err
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		unix.Close(fd)
		return err
	}
	s.devices[int32(fd)] = path

	if s.withLid {
		caps, state, err := s.switches(fd)
		if err != nil {
			log.Debug().Err(err).Str("device", path).Msg("cannot query switches")
		} else if lid, ok := lidFromSwitches(caps, state); ok {
			log.Info().Str("device", path).Stringer("lid", lid.Lid).Msg("initial lid state")
			emit(lid)
		}
	}
	return nil
}

func (s *inputSet) remove(fd int32) {
	unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	unix.Close(int(fd))
	delete(s.devices, fd)
}

// handle adds nodes matching the pattern as they appear. Chmod is followed
// too since udev may fix permissions after creating the node.
func (s *inputSet) handle(e fsnotify.Event, emit func(backlight.Event)) {
	if !e.Has(fsnotify.Create) && !e.Has(fsnotify.Chmod) {
		return
	}
	if ok, _ := filepath.Match(s.pattern, e.Name); !ok || s.has(e.Name) {
		return
	}
	if err := s.add(e.Name, emit); err != nil {
		log.Debug().Err(err).Str("device", e.Name).Msg("skipping input device")
		return
	}
	log.Info().Str("device", e.Name).Msg("input device added")
}

// poll waits up to timeout milliseconds and emits the events read from
// ready devices. Devices that fail to read are dropped.
func (s *inputSet) poll(timeout int, ready []unix.EpollEvent, buf []byte, emit func(backlight.Event)) error {
	n, err := unix.EpollWait(s.epfd, ready, timeout)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("epoll wait: %w", err)
	}

	for _, r := range ready[:n] {
		fd := int(r.Fd)
		for {
			m, err := unix.Read(fd, buf)
			if err != nil && (errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)) {
				break
			}
			if err != nil || m <= 0 {
				log.Warn().Err(err).Str("device", s.devices[r.Fd]).Msg("input device gone")
				s.remove(r.Fd)
				break
			}
			decode(buf[:m], func(etype, code uint16, value int32) {
				ev, ok := classify(etype, code, value)
				if !ok || ev.Kind == backlight.EventOther {
					return
				}
				if ev.Kind == backlight.EventLidToggle && !s.withLid {
					return
				}
				emit(ev)
			})
		}
	}
	return nil
}

func (s *inputSet) close() {
	for fd := range s.devices {
		unix.Close(int(fd))
	}
	unix.Close(s.epfd)
}

// InputEvents reads every evdev node matching pattern and emits controller
// events until stop is closed. Nodes created later in the same directory are
// picked up. Lid switch records are dropped unless withLid is set; with it,
// the current lid state is emitted first.
func InputEvents(stop <-chan struct{}, pattern string, withLid bool) (<-chan backlight.Event, error) {
	paths, err := sysfs.FS.Glob(pattern)
	if err != nil {
		return nil, err
	}

	set, err := newInputSet(pattern, withLid)
	if err != nil {
		return nil, err
	}

	out := make(chan backlight.Event, 64)
	var initial []backlight.Event
	for _, p := range paths {
		if err := set.add(p, func(ev backlight.Event) { initial = append(initial, ev) }); err != nil {
			log.Debug().Err(err).Str("device", p).Msg("skipping input device")
		}
	}
	if len(set.devices) == 0 {
		set.close()
		return nil, fmt.Errorf("no readable input devices match %s", pattern)
	}
	log.Info().Int("devices", len(set.devices)).Str("pattern", pattern).Msg("watching input devices")

	var hotplug <-chan fsnotify.Event
	var hotplugErrs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(filepath.Dir(pattern))
	}
	if err != nil {
		log.Warn().Err(err).Str("dir", filepath.Dir(pattern)).Msg("input hotplug disabled")
		if watcher != nil {
			watcher.Close()
			watcher = nil
		}
	} else {
		hotplug, hotplugErrs = watcher.Events, watcher.Errors
	}

	go func() {
		defer close(out)
		defer set.close()
		if watcher != nil {
			defer watcher.Close()
		}

		emit := func(ev backlight.Event) {
			select {
			case out <- ev:
			case <-stop:
			}
		}
		for _, ev := range initial {
			emit(ev)
		}

		ready := make([]unix.EpollEvent, 16)
		buf := make([]byte, inputEventSize*64)

		for {
			select {
			case <-stop:
				return
			default:
			}

		pending:
			for {
				select {
				case e, ok := <-hotplug:
					if !ok {
						hotplug = nil
						continue
					}
					set.handle(e, emit)
				case err, ok := <-hotplugErrs:
					if !ok {
						hotplugErrs = nil
						continue
					}
					log.Warn().Err(err).Msg("input hotplug watcher")
				default:
					break pending
				}
			}

			if err := set.poll(250, ready, buf, emit); err != nil {
				log.Error().Err(err).Msg("input")
				return
			}

			if len(set.devices) == 0 {
				log.Error().Msg("input: all devices removed")
				return
			}
		}
	}()

	return out, nil
}
