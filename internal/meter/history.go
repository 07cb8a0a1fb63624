package meter

// History keeps the most recent readings in insertion order, evicting the
// oldest entry once capacity is reached.
type History struct {
	buf   []Reading
	start int
	size  int
}

// NewHistory allocates a history of the given capacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		panic("history capacity must be positive")
	}
	return &History{buf: make([]Reading, capacity)}
}

// Push appends r, evicting the oldest reading when full.
func (h *History) Push(r Reading) {
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = r
		h.size++
		return
	}
	h.buf[h.start] = r
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of stored readings.
func (h *History) Len() int { return h.size }

// Cap returns the maximum number of readings kept.
func (h *History) Cap() int { return len(h.buf) }

// Latest returns the newest reading.
func (h *History) Latest() (Reading, bool) {
	if h.size == 0 {
		return Reading{}, false
	}
	return h.at(h.size - 1), true
}

// Items returns a copy ordered oldest to newest.
func (h *History) Items() []Reading {
	out := make([]Reading, h.size)
	for i := range out {
		out[i] = h.at(i)
	}
	return out
}

// MeanPower averages power over the stored readings, optionally leaving out
// the newest one. The second value is the number of readings averaged.
func (h *History) MeanPower(excludeLatest bool) (float64, int) {
	n := h.size
	if excludeLatest && n > 0 {
		n--
	}
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += h.at(i).Power
	}
	return sum / float64(n), n
}

func (h *History) at(i int) Reading {
	return h.buf[(h.start+i)%len(h.buf)]
}
