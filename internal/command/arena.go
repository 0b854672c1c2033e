package command

const chunkSize = 4096

// arena hands out byte regions from fixed chunks. A region never moves
// once handed out; reset makes every chunk reusable.
type arena struct {
	chunks [][]byte
	cur    int
}

func (a *arena) alloc(n int) []byte {
	if n == 0 {
		return nil
	}
	if n > chunkSize {
		return make([]byte, n)
	}
	for a.cur < len(a.chunks) {
		c := a.chunks[a.cur]
		if cap(c)-len(c) >= n {
			start := len(c)
			a.chunks[a.cur] = c[:start+n]
			region := c[start : start+n : start+n]
			clear(region)
			return region
		}
		a.cur++
	}
	c := make([]byte, n, chunkSize)
	a.chunks = append(a.chunks, c)
	return c[:n:n]
}

func (a *arena) reset() {
	for i := range a.chunks {
		a.chunks[i] = a.chunks[i][:0]
	}
	a.cur = 0
}
