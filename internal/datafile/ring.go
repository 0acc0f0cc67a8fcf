package datafile

// lineRing is a bounded ring of formatted record lines. It holds the
// candidate retention set for the next rotation, so the file can be
// rewritten without re-reading disk. The oldest line is evicted
// silently once the ring is full.
type lineRing struct {
	lines []string
	size  int
	head  int // next write position
	count int // current count, up to size
}

func newLineRing(size int) *lineRing {
	return &lineRing{
		lines: make([]string, size),
		size:  size,
	}
}

func (r *lineRing) push(line string) {
	r.lines[r.head] = line
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// snapshot returns the buffered lines oldest first.
func (r *lineRing) snapshot() []string {
	out := make([]string, 0, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.head - r.count + i + r.size) % r.size
		out = append(out, r.lines[idx])
	}
	return out
}

func (r *lineRing) reset() {
	r.head = 0
	r.count = 0
}

func (r *lineRing) len() int { return r.count }
