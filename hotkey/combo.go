package hotkey

// Linux input event codes from linux/input-event-codes.h.
const (
	evKey      = 1
	keyPress   = 1
	keyRelease = 0
	keyLCtrl   = 29
	keyRCtrl   = 97
	keyLShift  = 42
	keyRShift  = 54
	keySpace   = 57
)

// combo tracks modifier state across raw key events and reports when the
// Ctrl+Shift+Space chord goes down or comes back up. Auto-repeat events
// (value 2) only keep the held state.
type combo struct {
	ctrl, shift, space bool
}

func (c *combo) feed(code uint16, value int32) (down, up bool) {
	pressed := value == keyPress
	released := value == keyRelease

	switch code {
	case keyLCtrl, keyRCtrl:
		c.ctrl = pressed || (!released && c.ctrl)
	case keyLShift, keyRShift:
		c.shift = pressed || (!released && c.shift)
	case keySpace:
		if pressed && !c.space && c.ctrl && c.shift {
			c.space = true
			return true, false
		}
		if released && c.space {
			c.space = false
			return false, true
		}
	}
	return false, false
}

// signal delivers without blocking; a pending edge is enough.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
