package store

import (
	"fmt"
	"strings"
)

// evaluate classifies a tank against the thresholds and returns the new
// status plus a human-readable message. It is a pure function of its inputs.
//
// Classification: any temperature or level excursion outside its band is an
// alert; an error adjustment above ErrorMax on its own is only a warning.
func evaluate(t *Tank, th Thresholds) (Status, string) {
	var problems []string
	outOfBand := false

	if t.Temperature != nil {
		if *t.Temperature > th.TempHigh {
			problems = append(problems, fmt.Sprintf("temperature too high: %g", *t.Temperature))
			outOfBand = true
		} else if *t.Temperature < th.TempLow {
			problems = append(problems, fmt.Sprintf("temperature too low: %g", *t.Temperature))
			outOfBand = true
		}
	}

	if t.Level != nil {
		if *t.Level > th.LevelHigh {
			problems = append(problems, fmt.Sprintf("level too high: %g", *t.Level))
			outOfBand = true
		} else if *t.Level < th.LevelLow {
			problems = append(problems, fmt.Sprintf("level too low: %g", *t.Level))
			outOfBand = true
		}
	}

	if t.Error > th.ErrorMax {
		problems = append(problems, fmt.Sprintf("error adjustment too large: %g", t.Error))
	}

	if len(problems) == 0 {
		return StatusNormal, ""
	}
	if outOfBand {
		return StatusAlert, strings.Join(problems, "; ")
	}
	return StatusWarning, strings.Join(problems, "; ")
}

// checkHighLevelAlarm updates the edge-triggered high-level latch. It
// returns true only on the false-to-true transition; clearing the latch is
// silent.
func checkHighLevelAlarm(t *Tank) bool {
	if t.Level == nil {
		return false
	}
	if *t.Level > t.HighLimit {
		if !t.AlarmShown {
			t.AlarmShown = true
			return true
		}
		return false
	}
	t.AlarmShown = false
	return false
}
