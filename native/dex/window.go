package dex

import (
	"github.com/holiman/uint256"

	"earthexchange/native/fixed"
)

const (
	// WindowDays is the number of daily slots retained per window: the
	// in-progress day plus seven completed days.
	WindowDays = 8
	// TrailingDays is the number of completed days summed for reward weighting.
	TrailingDays = WindowDays - 1
)

// Window is a fixed-length ring of daily totals. The slot under cursor holds
// the in-progress day; older days sit behind it.
type Window struct {
	slots  [WindowDays]uint256.Int
	cursor uint8
}

// Rotate advances the window by days, zeroing every slot that enters the
// in-progress position. Advancing by WindowDays or more resets the window.
func (w *Window) Rotate(days uint64) {
	if days == 0 {
		return
	}
	if days >= WindowDays {
		*w = Window{}
		return
	}
	for i := uint64(0); i < days; i++ {
		w.cursor = (w.cursor + 1) % WindowDays
		w.slots[w.cursor] = uint256.Int{}
	}
}

// Day returns the total recorded age days ago; age 0 is today.
func (w *Window) Day(age int) uint256.Int {
	if age < 0 || age >= WindowDays {
		return uint256.Int{}
	}
	idx := (int(w.cursor) - age + WindowDays) % WindowDays
	return w.slots[idx]
}

// Record adds amount to today's slot.
func (w *Window) Record(amount uint256.Int) error {
	sum, err := fixed.Add(w.slots[w.cursor], amount)
	if err != nil {
		return err
	}
	w.slots[w.cursor] = sum
	return nil
}

// Trailing sums the completed days, excluding today.
func (w *Window) Trailing() (uint256.Int, error) {
	total := uint256.Int{}
	for age := 1; age <= TrailingDays; age++ {
		var err error
		if total, err = fixed.Add(total, w.Day(age)); err != nil {
			return uint256.Int{}, err
		}
	}
	return total, nil
}

// Days returns the slots ordered from today backwards.
func (w *Window) Days() []uint256.Int {
	out := make([]uint256.Int, WindowDays)
	for age := 0; age < WindowDays; age++ {
		out[age] = w.Day(age)
	}
	return out
}

// windowFromDays rebuilds a window from Days() output.
func windowFromDays(days []uint256.Int) Window {
	var w Window
	for age := 0; age < WindowDays && age < len(days); age++ {
		w.slots[(WindowDays-age)%WindowDays] = days[age]
	}
	return w
}

// rollForward brings windows last updated on *last up to day.
func rollForward(last *uint64, day uint64, windows ...*Window) {
	if day <= *last {
		return
	}
	elapsed := day - *last
	for _, w := range windows {
		w.Rotate(elapsed)
	}
	*last = day
}

func dayIndex(unix int64) uint64 {
	if unix <= 0 {
		return 0
	}
	return uint64(unix) / secondsPerDay
}
