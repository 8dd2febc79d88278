package backlight

// EventKind identifies the variant of an Event.
type EventKind int

const (
	EventOther EventKind = iota
	EventPointer
	EventKeyboard
	EventGesture
	EventTouch
	EventLidToggle
)

func (k EventKind) String() string {
	switch k {
	case EventPointer:
		return "pointer"
	case EventKeyboard:
		return "keyboard"
	case EventGesture:
		return "gesture"
	case EventTouch:
		return "touch"
	case EventLidToggle:
		return "lid"
	default:
		return "other"
	}
}

// IsActivity reports whether the event counts as user activity.
func (k EventKind) IsActivity() bool {
	switch k {
	case EventPointer, EventKeyboard, EventGesture, EventTouch:
		return true
	}
	return false
}

// LidState is the position of the lid switch.
type LidState int

const (
	LidOpen LidState = iota
	LidClosed
)

func (s LidState) String() string {
	if s == LidClosed {
		return "closed"
	}
	return "open"
}

// Event is one input or session event fed to the controller.
// Lid is only meaningful for EventLidToggle.
type Event struct {
	Kind EventKind
	Lid  LidState
}

// LidToggle returns a lid switch event.
func LidToggle(state LidState) Event {
	return Event{Kind: EventLidToggle, Lid: state}
}
