package watchers

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hoppxi/backlightd/internal/backlight"
)

// ErrSourcesClosed is returned by Run when the event channel closes before
// stop, meaning an event source has gone away.
var ErrSourcesClosed = errors.New("event sources closed")

// Controller is the part of backlight.Controller the watcher drives.
type Controller interface {
	ProcessEvent(backlight.Event)
	Update() error
	CurrentBrightness() uint32
	Lid() backlight.LidState
	Idle() time.Duration
	OutputPath() string
	SourcePath() string
}

// Status is a point-in-time view of the controller.
type Status struct {
	Session    string `json:"session"`
	Brightness uint32 `json:"brightness"`
	Lid        string `json:"lid"`
	IdleMs     int64  `json:"idle_ms"`
	Output     string `json:"output"`
	Source     string `json:"source"`
	Updates    uint64 `json:"updates"`
	LastEvent  string `json:"last_event,omitempty"`
}

// BacklightWatcher owns a Controller: it feeds it events and ticks it at a
// fixed interval. Only Status may be called from other goroutines.
type BacklightWatcher struct {
	ctrl     Controller
	events   <-chan backlight.Event
	changes  <-chan struct{}
	interval time.Duration
	session  string

	mu     sync.RWMutex
	status Status
}

// NewBacklightWatcher builds a watcher. changes may be nil.
func NewBacklightWatcher(ctrl Controller, events <-chan backlight.Event, changes <-chan struct{}, interval time.Duration, session string) *BacklightWatcher {
	if interval <= 0 {
		interval = backlight.DefaultInterval
	}
	w := &BacklightWatcher{
		ctrl:     ctrl,
		events:   events,
		changes:  changes,
		interval: interval,
		session:  session,
	}
	w.publish("", false)
	return w
}

// Run drives the controller until stop is closed or an update fails.
func (w *BacklightWatcher) Run(stop <-chan struct{}) error {
	log.Info().Dur("interval", w.interval).Msg("starting backlight watcher")

	if err := w.step(""); err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	events := w.events
	for {
		select {
		case <-stop:
			log.Info().Msg("stopping backlight watcher")
			return nil

		case ev, ok := <-events:
			if !ok {
				return sourcesClosed(stop)
			}
			w.ctrl.ProcessEvent(ev)
			last, open := w.drain(events, ev)
			if err := w.step(last.Kind.String()); err != nil {
				return err
			}
			if !open {
				return sourcesClosed(stop)
			}

		case <-w.changes:
			log.Debug().Msg("source brightness changed")
			if err := w.step(""); err != nil {
				return err
			}

		case <-ticker.C:
			if err := w.step(""); err != nil {
				return err
			}
		}
	}
}

// drain feeds every event already queued to the controller so a burst costs
// a single Update. It reports the last event and whether events is still open.
func (w *BacklightWatcher) drain(events <-chan backlight.Event, last backlight.Event) (backlight.Event, bool) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return last, false
			}
			w.ctrl.ProcessEvent(ev)
			last = ev
		default:
			return last, true
		}
	}
}

func sourcesClosed(stop <-chan struct{}) error {
	select {
	case <-stop:
		return nil
	default:
		return ErrSourcesClosed
	}
}

func (w *BacklightWatcher) step(event string) error {
	if err := w.ctrl.Update(); err != nil {
		return err
	}
	w.publish(event, true)
	return nil
}

func (w *BacklightWatcher) publish(event string, updated bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	updates := w.status.Updates
	if updated {
		updates++
	}
	if event == "" {
		event = w.status.LastEvent
	}
	w.status = Status{
		Session:    w.session,
		Brightness: w.ctrl.CurrentBrightness(),
		Lid:        w.ctrl.Lid().String(),
		IdleMs:     w.ctrl.Idle().Milliseconds(),
		Output:     w.ctrl.OutputPath(),
		Source:     w.ctrl.SourcePath(),
		Updates:    updates,
		LastEvent:  event,
	}
}

// Status returns the snapshot taken after the most recent update.
func (w *BacklightWatcher) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}
