package monitor

// history is a fixed-capacity FIFO of status records. Once full, each push
// overwrites the oldest entry.
type history struct {
	buf   []StatusRecord
	start int
	size  int
}

func newHistory(capacity int) history {
	return history{buf: make([]StatusRecord, capacity)}
}

func (h *history) push(r StatusRecord) {
	if len(h.buf) == 0 {
		return
	}
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = r
		h.size++
		return
	}
	h.buf[h.start] = r
	h.start = (h.start + 1) % len(h.buf)
}

// records returns the entries oldest first.
func (h *history) records() []StatusRecord {
	out := make([]StatusRecord, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}
