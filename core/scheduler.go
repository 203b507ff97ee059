package core

// Timer is a housekeeping event keyed on Ticker.Elapsed.
type Timer struct {
	WakeTime uint64
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SFDone       = 0
	SFReschedule = 1
)

// TimerList keeps timers sorted by WakeTime. It is dispatched from the
// main loop, never from interrupt context.
type TimerList struct {
	head *Timer
}

// Schedule adds a timer to the list
func (l *TimerList) Schedule(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	l.insert(t)
}

// insert keeps equal WakeTimes in insertion order
func (l *TimerList) insert(t *Timer) {
	if l.head == nil || t.WakeTime < l.head.WakeTime {
		t.Next = l.head
		l.head = t
		return
	}

	current := l.head
	for current.Next != nil && current.Next.WakeTime <= t.WakeTime {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Cancel removes t if it is scheduled.
func (l *TimerList) Cancel(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for p := &l.head; *p != nil; p = &(*p).Next {
		if *p == t {
			*p = t.Next
			t.Next = nil
			return
		}
	}
}

// Next returns the earliest WakeTime, or false if the list is empty.
func (l *TimerList) Next() (uint64, bool) {
	if l.head == nil {
		return 0, false
	}
	return l.head.WakeTime, true
}

// Dispatch runs every timer due at now. A handler that returns
// SFReschedule must have moved its WakeTime past now.
func (l *TimerList) Dispatch(now uint64) {
	for l.head != nil && l.head.WakeTime <= now {
		timer := l.head
		l.head = timer.Next
		timer.Next = nil

		if timer.Handler(timer) == SFReschedule {
			if timer.WakeTime <= now {
				timer.WakeTime = now + 1
			}
			l.insert(timer)
		}
	}
}
