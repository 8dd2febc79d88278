// Package backlight dims and blanks a backlight according to user activity
// and lid state.
//
// A Controller is not safe for concurrent use. It is meant to be owned by a
// single loop that feeds it events and calls Update on a fixed cadence.
package backlight

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hoppxi/backlightd/internal/sysfs"
)

const (
	// DefaultInterval is the base tick interval. The dim and off timeouts are
	// multiples of it.
	DefaultInterval = 10 * time.Second

	// DimmedBrightness is written once the dim timeout has passed.
	DimmedBrightness uint32 = 1

	DefaultOutputDevice = "display-pipe"
	DefaultSourceDevice = "apple-panel-bl"

	brightnessAttr    = "brightness"
	maxBrightnessAttr = "max_brightness"
)

// DimTimeout returns the idle time after which the output is dimmed.
func DimTimeout(interval time.Duration) time.Duration { return 3 * interval }

// OffTimeout returns the idle time after which the output is switched off.
func OffTimeout(interval time.Duration) time.Duration { return 6 * interval }

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options configure a Controller. Zero values select the defaults.
type Options struct {
	ClassDir     string
	OutputDevice string
	SourceDevice string
	Interval     time.Duration

	// Builder derives the lookup table from the devices' max_brightness.
	// When nil, DefaultLookupTable is used.
	Builder TableBuilder

	Clock  Clock
	Logger *zerolog.Logger
}

func (o *Options) setDefaults() {
	if o.ClassDir == "" {
		o.ClassDir = sysfs.ClassBacklight
	}
	if o.OutputDevice == "" {
		o.OutputDevice = DefaultOutputDevice
	}
	if o.SourceDevice == "" {
		o.SourceDevice = DefaultSourceDevice
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}
	if o.Logger == nil {
		o.Logger = &log.Logger
	}
}

// Controller tracks idle time and lid state and drives the output backlight.
type Controller struct {
	lastActive time.Time
	current    uint32
	lid        LidState

	output     *sysfs.Attr
	outputPath string
	sourcePath string

	table    LookupTable
	dimAfter time.Duration
	offAfter time.Duration
	clock    Clock
	logger   zerolog.Logger
}

// New discovers the output and source devices, opens the output for writing
// and seeds the current brightness from it.
func New(opts Options) (*Controller, error) {
	opts.setDefaults()

	outputPath, err := findDevice(opts.ClassDir, opts.OutputDevice)
	if err != nil {
		return nil, err
	}
	sourcePath, err := findDevice(opts.ClassDir, opts.SourceDevice)
	if err != nil {
		return nil, err
	}

	table := DefaultLookupTable
	if opts.Builder != nil {
		srcMax, err := readAttr(sourcePath, maxBrightnessAttr)
		if err != nil {
			return nil, err
		}
		outMax, err := readAttr(outputPath, maxBrightnessAttr)
		if err != nil {
			return nil, err
		}
		table, err = opts.Builder(srcMax, outMax)
		if err != nil {
			return nil, fmt.Errorf("build lookup table: %w", err)
		}
	}

	output, err := sysfs.OpenAttr(outputPath, brightnessAttr)
	if err != nil {
		return nil, &DeviceError{Kind: ErrAttributeWrite, Path: outputPath, Err: err}
	}
	current, err := readAttr(outputPath, brightnessAttr)
	if err != nil {
		output.Close()
		return nil, err
	}

	c := &Controller{
		lastActive: opts.Clock.Now(),
		current:    current,
		lid:        LidOpen,
		output:     output,
		outputPath: outputPath,
		sourcePath: sourcePath,
		table:      table,
		dimAfter:   DimTimeout(opts.Interval),
		offAfter:   OffTimeout(opts.Interval),
		clock:      opts.Clock,
		logger:     opts.Logger.With().Str("component", "backlight").Logger(),
	}

	c.logger.Info().
		Str("output", outputPath).
		Str("source", sourcePath).
		Uint32("brightness", current).
		Int("table_size", table.Len()).
		Msg("backlight controller ready")

	return c, nil
}

// ProcessEvent records activity and lid transitions. It never touches the
// device; the next Update applies the result.
func (c *Controller) ProcessEvent(ev Event) {
	switch {
	case ev.Kind.IsActivity():
		c.touch()
	case ev.Kind == EventLidToggle:
		c.lid = ev.Lid
		c.logger.Info().Stringer("lid", ev.Lid).Msg("lid switch event")
		if ev.Lid == LidOpen {
			c.touch()
		}
	}
}

// Update recomputes the target brightness and writes it if it changed.
func (c *Controller) Update() error {
	target, err := c.target()
	if err != nil {
		return err
	}
	if target == c.current {
		return nil
	}
	if err := c.output.WriteUint(target); err != nil {
		return &DeviceError{Kind: ErrAttributeWrite, Path: c.output.Path(), Err: err}
	}
	c.logger.Debug().
		Uint32("from", c.current).
		Uint32("to", target).
		Dur("idle", c.Idle()).
		Msg("brightness changed")
	c.current = target
	return nil
}

func (c *Controller) target() (uint32, error) {
	idle := c.Idle()
	switch {
	case c.lid == LidClosed:
		return 0, nil
	case idle < c.dimAfter:
		reading, err := readAttr(c.sourcePath, brightnessAttr)
		if err != nil {
			return 0, err
		}
		v, err := c.table.Lookup(reading)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", c.sourcePath, err)
		}
		return v, nil
	case idle < c.offAfter:
		return DimmedBrightness, nil
	default:
		return 0, nil
	}
}

// CurrentBrightness returns the last value written to the output.
func (c *Controller) CurrentBrightness() uint32 { return c.current }

// Lid returns the last reported lid state.
func (c *Controller) Lid() LidState { return c.lid }

// Idle returns the time since the last activity, truncated to milliseconds.
func (c *Controller) Idle() time.Duration {
	idle := c.clock.Now().Sub(c.lastActive)
	if idle < 0 {
		return 0
	}
	return idle.Truncate(time.Millisecond)
}

// OutputPath is the directory of the device being written.
func (c *Controller) OutputPath() string { return c.outputPath }

// SourcePath is the directory of the device whose brightness is followed.
func (c *Controller) SourcePath() string { return c.sourcePath }

// Close releases the output handle. The last written value stays on the device.
func (c *Controller) Close() error {
	return c.output.Close()
}

func (c *Controller) touch() {
	if now := c.clock.Now(); now.After(c.lastActive) {
		c.lastActive = now
	}
}

func findDevice(classDir, pattern string) (string, error) {
	path, err := sysfs.FindDevice(classDir, pattern)
	if err != nil {
		return "", &DeviceError{Kind: ErrDeviceNotFound, Path: classDir, Err: err}
	}
	return path, nil
}

func readAttr(dir, attr string) (uint32, error) {
	v, err := sysfs.ReadAttr(dir, attr)
	if err != nil {
		return 0, &DeviceError{Kind: ErrAttributeRead, Path: dir + "/" + attr, Err: err}
	}
	return v, nil
}
