package shm

// ByteRing is a plain byte-granularity SPSC ring used to stage PCM ahead
// of the A2DP SBC encoder (spec.md §4.4), where data arrives and leaves in
// encoder-frame-sized chunks rather than whole audio frames and the
// capacity/overrun bookkeeping in Buffer would be the wrong shape.
type ByteRing struct {
	data []byte
	w, r int // write/read cursors, mod len(data); single-threaded use only
}

func NewByteRing(capacity int) *ByteRing {
	return &ByteRing{data: make([]byte, capacity)}
}

func (r *ByteRing) Len() int {
	n := r.w - r.r
	if n < 0 {
		n += len(r.data)
	}
	return n
}

func (r *ByteRing) Free() int { return len(r.data) - r.Len() - 1 }

// Write appends p, truncating to available space. Returns bytes written.
func (r *ByteRing) Write(p []byte) int {
	n := len(p)
	if free := r.Free(); n > free {
		n = free
	}
	for i := 0; i < n; i++ {
		r.data[r.w] = p[i]
		r.w = (r.w + 1) % len(r.data)
	}
	return n
}

// Read copies up to len(p) queued bytes into p without consuming them.
// Call Discard to advance the read cursor once the caller has used them.
func (r *ByteRing) Read(p []byte) int {
	n := r.Len()
	if n > len(p) {
		n = len(p)
	}
	rd := r.r
	for i := 0; i < n; i++ {
		p[i] = r.data[rd]
		rd = (rd + 1) % len(r.data)
	}
	return n
}

func (r *ByteRing) Discard(n int) {
	if n > r.Len() {
		n = r.Len()
	}
	r.r = (r.r + n) % len(r.data)
}
