package ffmpeg

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var (
	// durationPattern matches the banner ffmpeg prints on stderr, e.g.
	// "  Duration: 00:01:40.00, start: 0.000000, bitrate: 1205 kb/s".
	durationPattern = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2})(?:\.(\d+))?`)
	// outTimePattern matches the -progress pipe:1 key=value stream.
	// Despite the name, out_time_ms carries microseconds.
	outTimePattern = regexp.MustCompile(`^out_time_ms=(-?\d+)`)
)

// ParseLine inspects a single line of ffmpeg output. It reports a newly
// learned duration (seconds) or, given the currently known duration, an
// elapsed time from the progress stream. Lines carrying neither report
// nothing.
func ParseLine(line string) (duration, elapsed float64, hasDuration, hasElapsed bool) {
	if m := outTimePattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
		us, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || us < 0 {
			return 0, 0, false, false
		}
		return 0, float64(us) / 1e6, false, true
	}
	if m := durationPattern.FindStringSubmatch(line); m != nil {
		hours, _ := strconv.Atoi(m[1])
		minutes, _ := strconv.Atoi(m[2])
		seconds, _ := strconv.Atoi(m[3])
		total := float64(hours*3600 + minutes*60 + seconds)
		if m[4] != "" {
			frac, err := strconv.ParseFloat("0."+m[4], 64)
			if err == nil {
				total += frac
			}
		}
		return total, 0, true, false
	}
	return 0, 0, false, false
}

// State folds parsed lines into a progress fraction. Duration is sticky:
// once learned (or seeded) it never changes, so a later stream banner
// cannot rescale progress mid-job. Elapsed samples are taken as-is; ffmpeg
// does not promise monotonic output and the fraction simply re-emits what
// the latest sample implies.
type State struct {
	mu       sync.Mutex
	duration float64
	elapsed  float64
}

// NewState returns a State, optionally seeded with a duration the caller
// already knows (a windowed encode knows its window length before ffmpeg
// prints anything).
func NewState(durationSeconds float64) *State {
	s := &State{}
	if durationSeconds > 0 {
		s.duration = durationSeconds
	}
	return s
}

// Observe feeds one output line through the parser. It returns the current
// fraction in [0, 1] and whether this line produced a new fraction.
func (s *State) Observe(line string) (float64, bool) {
	duration, elapsed, hasDuration, hasElapsed := ParseLine(line)

	s.mu.Lock()
	defer s.mu.Unlock()
	if hasDuration && s.duration == 0 && duration > 0 {
		s.duration = duration
	}
	if !hasElapsed {
		return s.fractionLocked(), false
	}
	s.elapsed = elapsed
	if s.duration == 0 {
		// Progress cannot be computed until a duration is known.
		return 0, false
	}
	return s.fractionLocked(), true
}

// Duration returns the known total duration in seconds, zero when unknown.
func (s *State) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Fraction returns the latest progress fraction in [0, 1].
func (s *State) Fraction() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fractionLocked()
}

func (s *State) fractionLocked() float64 {
	if s.duration <= 0 {
		return 0
	}
	fraction := s.elapsed / s.duration
	if fraction > 1 {
		return 1
	}
	if fraction < 0 {
		return 0
	}
	return fraction
}
