package subscribe

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// isBacklightChange reports whether a kobject uevent is a brightness change
// on a backlight device whose path contains match.
func isBacklightChange(msg, match string) bool {
	var subsystem, action, devpath string
	for _, part := range strings.Split(msg, "\x00") {
		switch {
		case strings.HasPrefix(part, "SUBSYSTEM="):
			subsystem = strings.TrimPrefix(part, "SUBSYSTEM=")
		case strings.HasPrefix(part, "ACTION="):
			action = strings.TrimPrefix(part, "ACTION=")
		case strings.HasPrefix(part, "DEVPATH="):
			devpath = strings.TrimPrefix(part, "DEVPATH=")
		}
	}
	return subsystem == "backlight" && action == "change" && strings.Contains(devpath, match)
}

// BacklightChanges signals when the kernel reports a brightness change on a
// backlight device matching match. Bursts are coalesced.
func BacklightChanges(stop <-chan struct{}, match string) (<-chan struct{}, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, err
	}
	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: 1, // kernel broadcast uevents
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}
	// bounded receive so stop is noticed
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, err
	}

	events := make(chan struct{}, 1)

	go func() {
		defer unix.Close(fd)
		buf := make([]byte, 4096)
		for {
			select {
			case <-stop:
				return
			default:
			}

			n, _, err := unix.Recvfrom(fd, buf, 0)
			if err != nil {
				if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
					continue
				}
				log.Warn().Err(err).Msg("uevent: netlink recv error")
				continue
			}

			if isBacklightChange(string(buf[:n]), match) {
				nonBlock(events)
			}
		}
	}()

	return events, nil
}

func nonBlock(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
