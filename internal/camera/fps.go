package camera

import "time"

// fpsCounter estimates frame rate over rolling one second windows.
type fpsCounter struct {
	count       int
	windowStart time.Time
	current     int
}

// tick counts one frame at now and reports whether a window closed.
func (f *fpsCounter) tick(now time.Time) bool {
	if f.windowStart.IsZero() {
		f.windowStart = now
	}
	f.count++
	if now.Sub(f.windowStart) < time.Second {
		return false
	}
	f.current = f.count
	f.count = 0
	f.windowStart = now
	return true
}
