package bluetooth

// WeightRing is a circular buffer of recent weights.
type WeightRing struct {
	buf   []float64
	pos   int
	count int
}

func NewWeightRing(capacity int) *WeightRing {
	if capacity < 1 {
		capacity = 1
	}
	return &WeightRing{
		buf: make([]float64, capacity),
	}
}

func (r *WeightRing) Push(val float64) {
	r.buf[r.pos] = val
	r.pos = (r.pos + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Values returns all stored values in chronological order.
func (r *WeightRing) Values() []float64 {
	if r.count == 0 {
		return nil
	}
	result := make([]float64, r.count)
	if r.count < len(r.buf) {
		copy(result, r.buf[:r.count])
	} else {
		n := copy(result, r.buf[r.pos:])
		copy(result[n:], r.buf[:r.pos])
	}
	return result
}

// Last returns the most recent value, or 0 if empty.
func (r *WeightRing) Last() float64 {
	if r.count == 0 {
		return 0
	}
	return r.buf[(r.pos-1+len(r.buf))%len(r.buf)]
}

func (r *WeightRing) Len() int {
	return r.count
}
