package link

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rice5941/nakuru/pkg/keys"
)

// Text lines the keypad prints next to the JSON protocol.
var (
	reTopDead   = regexp.MustCompile(`^\(key:(\d+)\) topDead:(\d+) \([^)]*\) bottomDead:(\d+)`)
	reThreshold = regexp.MustCompile(`^\(key:(\d+)\) distanceRate:([0-9.]+) threshold:(\d+)$`)
	reFailed    = regexp.MustCompile(`^\(key:(\d+)\) calibration failed: (.+)$`)
	reScanRate  = regexp.MustCompile(`^ScanRate: ([0-9.]+)Hz$`)
)

// reports assembles calibration results, which span two lines per key.
// It is used only by the reading goroutine.
type reports struct {
	pending map[int]keys.Calibration
}

// parse returns a message for a completed report line.
func (r *reports) parse(line string) (Message, bool) {
	if m := reTopDead.FindStringSubmatch(line); m != nil {
		id := atoi(m[1])
		if r.pending == nil {
			r.pending = make(map[int]keys.Calibration)
		}
		r.pending[id] = keys.Calibration{
			ID:         id,
			TopDead:    uint16(atoi(m[2])),
			BottomDead: uint16(atoi(m[3])),
		}
		return Message{}, false
	}

	if m := reThreshold.FindStringSubmatch(line); m != nil {
		c, ok := r.take(atoi(m[1]))
		if !ok {
			return Message{}, false
		}
		rate, _ := strconv.ParseFloat(m[2], 32)
		c.DistanceRate = float32(rate)
		c.Threshold = uint16(atoi(m[3]))
		return Message{Calibration: &c}, true
	}

	if m := reFailed.FindStringSubmatch(line); m != nil {
		c, ok := r.take(atoi(m[1]))
		if !ok {
			return Message{}, false
		}
		c.Err = failure(m[2])
		return Message{Calibration: &c}, true
	}

	if m := reScanRate.FindStringSubmatch(line); m != nil {
		hz, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Message{}, false
		}
		return Message{ScanRate: hz}, true
	}

	return Message{}, false
}

// failure rebuilds a printed calibration error, keeping the sentinel
// reachable through errors.Is.
func failure(text string) error {
	sentinel := keys.ErrCalibrationInconsistent
	if !strings.HasSuffix(text, sentinel.Error()) {
		return errors.New(text)
	}
	prefix := strings.TrimSuffix(strings.TrimSuffix(text, sentinel.Error()), ": ")
	if prefix == "" {
		return sentinel
	}
	return fmt.Errorf("%s: %w", prefix, sentinel)
}

func (r *reports) take(id int) (keys.Calibration, bool) {
	c, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return c, ok
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
