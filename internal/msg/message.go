// Package msg defines the fixed-shape events passed between interrupt
// handlers, the scheduler and tasks.
package msg

// Kind tags the payload carried by a Message.
type Kind int

const (
	KindInterruptXHCI Kind = iota
	KindInterruptLAPICTimer
	KindTimerTimeout
	KindKeyPush
	KindLayer
	KindLayerFinish
	KindMouseMove
	KindMouseButton
	KindWindowActive
)

func (k Kind) String() string {
	switch k {
	case KindInterruptXHCI:
		return "InterruptXHCI"
	case KindInterruptLAPICTimer:
		return "InterruptLAPICTimer"
	case KindTimerTimeout:
		return "TimerTimeout"
	case KindKeyPush:
		return "KeyPush"
	case KindLayer:
		return "Layer"
	case KindLayerFinish:
		return "LayerFinish"
	case KindMouseMove:
		return "MouseMove"
	case KindMouseButton:
		return "MouseButton"
	case KindWindowActive:
		return "WindowActive"
	default:
		return "Unknown"
	}
}

// LayerOperation selects what a Layer message asks the compositor to do.
type LayerOperation int

const (
	LayerMove LayerOperation = iota
	LayerMoveRelative
	LayerDraw
	LayerDrawArea
)

// TimerArg is the payload of KindTimerTimeout.
type TimerArg struct {
	Timeout uint64
	Value   int
}

// KeyboardArg is the payload of KindKeyPush.
type KeyboardArg struct {
	Modifier uint8
	Keycode  uint8
	ASCII    byte
	Press    bool
}

// LayerArg is the payload of KindLayer.
type LayerArg struct {
	Op      LayerOperation
	LayerID uint
	X, Y    int
	W, H    int
}

// MouseMoveArg is the payload of KindMouseMove.
type MouseMoveArg struct {
	X, Y    int
	DX, DY  int
	Buttons uint8
}

// MouseButtonArg is the payload of KindMouseButton.
type MouseButtonArg struct {
	X, Y   int
	Press  bool
	Button int
}

// WindowActiveArg is the payload of KindWindowActive.
type WindowActiveArg struct {
	Activate bool
}

// Message is copied by value. Only the payload matching Kind is meaningful.
// SrcTask is zero for messages raised by hardware.
type Message struct {
	Kind    Kind
	SrcTask uint64

	Timer        TimerArg
	Keyboard     KeyboardArg
	Layer        LayerArg
	MouseMove    MouseMoveArg
	MouseButton  MouseButtonArg
	WindowActive WindowActiveArg
}

// Timeout builds a KindTimerTimeout message.
func Timeout(deadline uint64, value int) Message {
	return Message{
		Kind:  KindTimerTimeout,
		Timer: TimerArg{Timeout: deadline, Value: value},
	}
}

// KeyPush builds a KindKeyPush message sent by task src.
func KeyPush(src uint64, ascii byte, press bool) Message {
	return Message{
		Kind:     KindKeyPush,
		SrcTask:  src,
		Keyboard: KeyboardArg{ASCII: ascii, Press: press},
	}
}
