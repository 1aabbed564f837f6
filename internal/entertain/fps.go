package entertain

import "time"

// fpsWindow accumulates per-second frame-rate samples over a sliding window
// of 60 seconds and reports a summary roughly every five seconds.
type fpsWindow struct {
	windowStart time.Time
	frames      int
	samples     []float64
	lastLog     time.Time
}

const fpsSampleCap = 60

func newFPSWindow(now time.Time) *fpsWindow {
	return &fpsWindow{windowStart: now, lastLog: now}
}

// FPSSummary is the windowed frame-rate report.
type FPSSummary struct {
	Avg, Min, Max float64
}

// tick records one processed frame. It returns a non-nil summary when a
// log-worthy interval (>=5s) has elapsed.
func (w *fpsWindow) tick(now time.Time) *FPSSummary {
	w.frames++
	elapsed := now.Sub(w.windowStart)
	if elapsed < time.Second {
		return nil
	}

	fps := float64(w.frames) / elapsed.Seconds()
	w.samples = append(w.samples, fps)
	if len(w.samples) > fpsSampleCap {
		w.samples = w.samples[len(w.samples)-fpsSampleCap:]
	}
	w.windowStart = now
	w.frames = 0

	if now.Sub(w.lastLog) < 5*time.Second {
		return nil
	}
	w.lastLog = now

	s := &FPSSummary{Min: w.samples[0], Max: w.samples[0]}
	var sum float64
	for _, v := range w.samples {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Avg = sum / float64(len(w.samples))
	return s
}
