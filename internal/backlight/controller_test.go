package backlight

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hoppxi/backlightd/internal/sysfs"
	"github.com/hoppxi/backlightd/internal/sysfs/sysfstest"
)

const (
	outputDir = "/sys/class/backlight/228600000.display-pipe"
	sourceDir = "/sys/class/backlight/apple-panel-bl"
	interval  = 10 * time.Second
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	fs    *sysfstest.FakeFS
	clock *fakeClock
	ctrl  *Controller
}

func newFixture(t *testing.T, initial, source uint32) *fixture {
	t.Helper()
	old := sysfs.FS
	fake := sysfstest.New()
	sysfs.FS = fake
	t.Cleanup(func() { sysfs.FS = old })

	fake.Set(outputDir+"/brightness", fmt.Sprintf("%d\n", initial))
	fake.Set(outputDir+"/max_brightness", "255\n")
	fake.Set(sourceDir+"/brightness", fmt.Sprintf("%d\n", source))
	fake.Set(sourceDir+"/max_brightness", "511\n")

	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	logger := zerolog.New(io.Discard)
	ctrl, err := New(Options{Interval: interval, Clock: clock, Logger: &logger})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { ctrl.Close() })
	return &fixture{fs: fake, clock: clock, ctrl: ctrl}
}

func (f *fixture) writes() []string {
	return f.fs.Writes(outputDir + "/brightness")
}

func (f *fixture) setSource(v uint32) {
	f.fs.Set(sourceDir+"/brightness", strconv.FormatUint(uint64(v), 10)+"\n")
}

func (f *fixture) update(t *testing.T) {
	t.Helper()
	if err := f.ctrl.Update(); err != nil {
		t.Fatalf("Update error: %v", err)
	}
}

func lookup(t *testing.T, i uint32) uint32 {
	t.Helper()
	v, err := DefaultLookupTable.Lookup(i)
	if err != nil {
		t.Fatalf("Lookup(%d) error: %v", i, err)
	}
	return v
}

func TestNewSeedsState(t *testing.T) {
	f := newFixture(t, 50, 300)

	if got := f.ctrl.CurrentBrightness(); got != 50 {
		t.Fatalf("expected initial brightness 50, got %d", got)
	}
	if f.ctrl.Lid() != LidOpen {
		t.Fatalf("expected lid open, got %v", f.ctrl.Lid())
	}
	if f.ctrl.Idle() != 0 {
		t.Fatalf("expected zero idle, got %v", f.ctrl.Idle())
	}
	if f.ctrl.OutputPath() != outputDir || f.ctrl.SourcePath() != sourceDir {
		t.Fatalf("unexpected paths: %s %s", f.ctrl.OutputPath(), f.ctrl.SourcePath())
	}
	if len(f.writes()) != 0 {
		t.Fatalf("construction must not write, got %q", f.writes())
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(fs *sysfstest.FakeFS)
		want  error
	}{
		{
			name:  "missing output device",
			setup: func(fs *sysfstest.FakeFS) { fs.Remove(outputDir + "/brightness"); fs.Remove(outputDir + "/max_brightness") },
			want:  ErrDeviceNotFound,
		},
		{
			name:  "missing source device",
			setup: func(fs *sysfstest.FakeFS) { fs.Remove(sourceDir + "/brightness"); fs.Remove(sourceDir + "/max_brightness") },
			want:  ErrDeviceNotFound,
		},
		{
			name:  "unparsable initial brightness",
			setup: func(fs *sysfstest.FakeFS) { fs.Set(outputDir+"/brightness", "bright\n") },
			want:  ErrAttributeRead,
		},
		{
			name:  "negative initial brightness",
			setup: func(fs *sysfstest.FakeFS) { fs.Set(outputDir+"/brightness", "-4\n") },
			want:  ErrAttributeRead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := sysfs.FS
			fake := sysfstest.New()
			sysfs.FS = fake
			defer func() { sysfs.FS = old }()

			fake.Set(outputDir+"/brightness", "50\n")
			fake.Set(outputDir+"/max_brightness", "255\n")
			fake.Set(sourceDir+"/brightness", "300\n")
			fake.Set(sourceDir+"/max_brightness", "511\n")
			tt.setup(fake)

			logger := zerolog.New(io.Discard)
			_, err := New(Options{Logger: &logger})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNewWithBuilder(t *testing.T) {
	old := sysfs.FS
	fake := sysfstest.New()
	sysfs.FS = fake
	defer func() { sysfs.FS = old }()

	fake.Set(outputDir+"/brightness", "0\n")
	fake.Set(outputDir+"/max_brightness", "100\n")
	fake.Set(sourceDir+"/brightness", "3\n")
	fake.Set(sourceDir+"/max_brightness", "4\n")

	var gotSrc, gotOut uint32
	builder := func(srcMax, outMax uint32) (LookupTable, error) {
		gotSrc, gotOut = srcMax, outMax
		return NewLookupTable([]uint32{0, 10, 20, 70, 100})
	}

	logger := zerolog.New(io.Discard)
	ctrl, err := New(Options{Builder: builder, Logger: &logger})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer ctrl.Close()

	if gotSrc != 4 || gotOut != 100 {
		t.Fatalf("builder called with (%d, %d), want (4, 100)", gotSrc, gotOut)
	}
	if err := ctrl.Update(); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if ctrl.CurrentBrightness() != 70 {
		t.Fatalf("expected 70 from custom table, got %d", ctrl.CurrentBrightness())
	}
}

func TestTargetByIdleBucket(t *testing.T) {
	dim := DimTimeout(interval)
	off := OffTimeout(interval)

	tests := []struct {
		name string
		idle time.Duration
		want func(t *testing.T) uint32
	}{
		{name: "fresh", idle: 0, want: func(t *testing.T) uint32 { return lookup(t, 300) }},
		{name: "just before dim", idle: dim - time.Millisecond, want: func(t *testing.T) uint32 { return lookup(t, 300) }},
		{name: "exactly dim", idle: dim, want: func(*testing.T) uint32 { return DimmedBrightness }},
		{name: "between dim and off", idle: dim + (off-dim)/2, want: func(*testing.T) uint32 { return DimmedBrightness }},
		{name: "just before off", idle: off - time.Millisecond, want: func(*testing.T) uint32 { return DimmedBrightness }},
		{name: "exactly off", idle: off, want: func(*testing.T) uint32 { return 0 }},
		{name: "long idle", idle: 24 * time.Hour, want: func(*testing.T) uint32 { return 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 77, 300)
			f.clock.Advance(tt.idle)
			f.update(t)
			if got, want := f.ctrl.CurrentBrightness(), tt.want(t); got != want {
				t.Fatalf("idle %v: expected %d got %d", tt.idle, want, got)
			}
		})
	}
}

func TestLidClosedForcesZero(t *testing.T) {
	for _, idle := range []time.Duration{0, DimTimeout(interval), OffTimeout(interval) * 2} {
		t.Run(idle.String(), func(t *testing.T) {
			f := newFixture(t, 50, 300)
			f.clock.Advance(idle)
			f.ctrl.ProcessEvent(LidToggle(LidClosed))
			f.update(t)
			if f.ctrl.CurrentBrightness() != 0 {
				t.Fatalf("expected 0 with lid closed, got %d", f.ctrl.CurrentBrightness())
			}
		})
	}
}

func TestLidCloseWritesZeroOnce(t *testing.T) {
	f := newFixture(t, 50, 300)
	f.ctrl.ProcessEvent(LidToggle(LidClosed))
	f.update(t)
	f.update(t)

	writes := f.writes()
	if len(writes) != 1 || writes[0] != "0\n" {
		t.Fatalf("expected a single write of 0, got %q", writes)
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	f := newFixture(t, 50, 300)
	f.update(t)
	f.update(t)
	f.clock.Advance(time.Second)
	f.update(t)

	writes := f.writes()
	if len(writes) != 1 {
		t.Fatalf("expected 1 write, got %q", writes)
	}
	want := strconv.FormatUint(uint64(lookup(t, 300)), 10) + "\n"
	if writes[0] != want {
		t.Fatalf("expected write %q got %q", want, writes[0])
	}
}

func TestNoWriteWhenTargetMatchesInitial(t *testing.T) {
	f := newFixture(t, lookup(t, 300), 300)
	f.update(t)
	if len(f.writes()) != 0 {
		t.Fatalf("expected no write, got %q", f.writes())
	}
}

func TestLookupFollowsSource(t *testing.T) {
	f := newFixture(t, 0, 0)
	for _, r := range []uint32{1, 100, 255, 511} {
		f.setSource(r)
		f.update(t)
		if got, want := f.ctrl.CurrentBrightness(), lookup(t, r); got != want {
			t.Fatalf("source %d: expected %d got %d", r, want, got)
		}
	}
}

func TestIdleToOffWritesOnce(t *testing.T) {
	f := newFixture(t, 50, 300)
	f.clock.Advance(OffTimeout(interval) + time.Second)
	f.update(t)
	f.update(t)

	if f.ctrl.CurrentBrightness() != 0 {
		t.Fatalf("expected 0 after off timeout, got %d", f.ctrl.CurrentBrightness())
	}
	if writes := f.writes(); len(writes) != 1 {
		t.Fatalf("expected exactly one write, got %q", writes)
	}
}

func TestActivityRestoresBrightness(t *testing.T) {
	f := newFixture(t, 50, 300)
	f.clock.Advance(DimTimeout(interval))
	f.update(t)
	if f.ctrl.CurrentBrightness() != DimmedBrightness {
		t.Fatalf("expected dimmed, got %d", f.ctrl.CurrentBrightness())
	}

	for _, kind := range []EventKind{EventPointer, EventKeyboard, EventGesture, EventTouch} {
		f.clock.Advance(OffTimeout(interval))
		f.update(t)
		if f.ctrl.CurrentBrightness() != 0 {
			t.Fatalf("expected off before %v, got %d", kind, f.ctrl.CurrentBrightness())
		}
		f.ctrl.ProcessEvent(Event{Kind: kind})
		if f.ctrl.Idle() != 0 {
			t.Fatalf("%v did not reset idle", kind)
		}
		f.update(t)
		if got, want := f.ctrl.CurrentBrightness(), lookup(t, 300); got != want {
			t.Fatalf("after %v: expected %d got %d", kind, want, got)
		}
	}
}

func TestProcessEventDoesNotWrite(t *testing.T) {
	f := newFixture(t, 50, 300)
	f.ctrl.ProcessEvent(Event{Kind: EventKeyboard})
	f.ctrl.ProcessEvent(LidToggle(LidClosed))
	f.ctrl.ProcessEvent(Event{Kind: EventOther})
	if len(f.writes()) != 0 {
		t.Fatalf("ProcessEvent wrote %q", f.writes())
	}
}

func TestOtherEventIsIgnored(t *testing.T) {
	f := newFixture(t, 50, 300)
	f.clock.Advance(DimTimeout(interval))
	f.ctrl.ProcessEvent(Event{Kind: EventOther})
	f.update(t)
	if f.ctrl.CurrentBrightness() != DimmedBrightness {
		t.Fatalf("other event counted as activity: %d", f.ctrl.CurrentBrightness())
	}
}

func TestLidOpenResetsIdle(t *testing.T) {
	f := newFixture(t, 50, 300)
	f.ctrl.ProcessEvent(LidToggle(LidClosed))
	f.update(t)
	f.clock.Advance(OffTimeout(interval) * 3)
	f.update(t)

	f.ctrl.ProcessEvent(LidToggle(LidOpen))
	f.clock.Advance(DimTimeout(interval) - time.Second)
	f.update(t)

	got := f.ctrl.CurrentBrightness()
	if got != lookup(t, 300) || got == 0 || got == DimmedBrightness {
		t.Fatalf("expected lookup value after lid open, got %d", got)
	}
}

func TestLidCloseKeepsIdle(t *testing.T) {
	f := newFixture(t, 50, 300)
	f.clock.Advance(DimTimeout(interval))
	f.ctrl.ProcessEvent(LidToggle(LidClosed))
	if f.ctrl.Idle() != DimTimeout(interval) {
		t.Fatalf("lid close must not reset idle, got %v", f.ctrl.Idle())
	}
}

func TestLastActiveNeverMovesBackward(t *testing.T) {
	f := newFixture(t, 50, 300)
	f.clock.Advance(time.Minute)
	f.ctrl.ProcessEvent(Event{Kind: EventKeyboard})
	f.clock.Advance(-30 * time.Second)
	f.ctrl.ProcessEvent(Event{Kind: EventKeyboard})
	f.clock.Advance(30 * time.Second)
	if f.ctrl.Idle() != 0 {
		t.Fatalf("expected idle measured from the later activity, got %v", f.ctrl.Idle())
	}
}

func TestUpdateErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		want  error
	}{
		{
			name:  "source missing",
			setup: func(f *fixture) { f.fs.Remove(sourceDir + "/brightness") },
			want:  ErrAttributeRead,
		},
		{
			name:  "source garbage",
			setup: func(f *fixture) { f.fs.Set(sourceDir+"/brightness", "n/a\n") },
			want:  ErrAttributeRead,
		},
		{
			name:  "source out of range",
			setup: func(f *fixture) { f.setSource(uint32(DefaultLookupTable.Len())) },
			want:  ErrLookupOutOfRange,
		},
		{
			name:  "write fails",
			setup: func(f *fixture) { f.fs.WriteErr = errors.New("no such device") },
			want:  ErrAttributeWrite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 50, 300)
			tt.setup(f)
			err := f.ctrl.Update()
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if f.ctrl.CurrentBrightness() != 50 {
				t.Fatalf("failed update changed brightness to %d", f.ctrl.CurrentBrightness())
			}
		})
	}
}

func TestSourceNotReadWhileIdle(t *testing.T) {
	f := newFixture(t, 50, 300)
	f.fs.Remove(sourceDir + "/brightness")
	f.clock.Advance(DimTimeout(interval))
	f.update(t)
	f.ctrl.ProcessEvent(LidToggle(LidClosed))
	f.update(t)
}
