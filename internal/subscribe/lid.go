package subscribe

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"

	"github.com/hoppxi/backlightd/internal/backlight"
)

const (
	upowerDest      = "org.freedesktop.UPower"
	upowerPath      = "/org/freedesktop/UPower"
	propertiesIface = "org.freedesktop.DBus.Properties"
	propsChanged    = propertiesIface + ".PropertiesChanged"
)

var errNoLidChange = errors.New("LidIsClosed not in signal")

// lidFromSignal extracts the lid state from a UPower PropertiesChanged
// signal. If LidIsClosed was only invalidated, refresh is used to read it.
func lidFromSignal(signal *dbus.Signal, refresh func() (bool, error)) (bool, error) {
	if signal.Name != propsChanged {
		return false, fmt.Errorf("unexpected signal: %v", signal.Name)
	}
	var name string
	var changed map[string]dbus.Variant
	var invalidated []string
	if err := dbus.Store(signal.Body, &name, &changed, &invalidated); err != nil {
		return false, fmt.Errorf("invalid PropertiesChanged body: %w", err)
	}
	if variant, ok := changed["LidIsClosed"]; ok {
		if closed, ok := variant.Value().(bool); ok {
			return closed, nil
		}
		return false, fmt.Errorf("unexpected LidIsClosed type %T", variant.Value())
	}
	for _, invalid := range invalidated {
		if invalid == "LidIsClosed" {
			return refresh()
		}
	}
	return false, errNoLidChange
}

func lidEvent(closed bool) backlight.Event {
	if closed {
		return backlight.LidToggle(backlight.LidClosed)
	}
	return backlight.LidToggle(backlight.LidOpen)
}

// LidEvents follows the UPower LidIsClosed property on the system bus. The
// current state is emitted first.
func LidEvents(stop <-chan struct{}) (<-chan backlight.Event, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}

	obj := conn.Object(upowerDest, upowerPath)
	readClosed := func() (bool, error) {
		var closed bool
		if err := obj.StoreProperty(upowerDest+".LidIsClosed", &closed); err != nil {
			return false, fmt.Errorf("could not store LidIsClosed property: %w", err)
		}
		return closed, nil
	}

	var present bool
	if err := obj.StoreProperty(upowerDest+".LidIsPresent", &present); err != nil {
		conn.Close()
		return nil, err
	}
	if !present {
		conn.Close()
		return nil, errors.New("no lid present")
	}

	closed, err := readClosed()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(upowerPath),
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchSender(upowerDest),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, upowerDest),
	); err != nil {
		conn.Close()
		return nil, err
	}

	signals := make(chan *dbus.Signal, 10)
	conn.Signal(signals)

	out := make(chan backlight.Event, 4)
	out <- lidEvent(closed)
	log.Info().Bool("closed", closed).Msg("following UPower lid state")

	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-stop:
				return
			case signal, ok := <-signals:
				if !ok {
					log.Error().Msg("lid: system bus connection closed")
					return
				}
				closed, err := lidFromSignal(signal, readClosed)
				if err != nil {
					if !errors.Is(err, errNoLidChange) {
						log.Warn().Err(err).Msg("lid: ignoring signal")
					}
					continue
				}
				select {
				case out <- lidEvent(closed):
				case <-stop:
					return
				}
			}
		}
	}()

	return out, nil
}
