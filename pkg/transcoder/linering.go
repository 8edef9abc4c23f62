package transcoder

import "sync"

// lineRing keeps the last N diagnostic lines of a process for failure logs.
type lineRing struct {
	mu    sync.Mutex
	lines []string
	head  int
	full  bool
}

func newLineRing(capacity int) *lineRing {
	if capacity < 1 {
		capacity = 20
	}
	return &lineRing{lines: make([]string, capacity)}
}

func (r *lineRing) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.head == 0 {
		r.full = true
	}
}

// snapshot returns the buffered lines, oldest first.
func (r *lineRing) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]string, r.head)
		copy(out, r.lines[:r.head])
		return out
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.head:]...)
	out = append(out, r.lines[:r.head]...)
	return out
}
