package service

// History кольцевой буфер последних N цифр с частотами по 10 корзинам.
// Добавление O(1): вытесняемая цифра вычитается из частот.
type History struct {
	buf   []int
	start int
	size  int
	freq  [10]int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 30
	}
	return &History{buf: make([]int, capacity)}
}

func (h *History) Cap() int { return len(h.buf) }

func (h *History) Len() int { return h.size }

// Push добавляет цифру, при заполненном буфере вытесняет самую старую.
func (h *History) Push(d int) {
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = d
		h.size++
		h.freq[d]++
		return
	}
	old := h.buf[h.start]
	h.freq[old]--
	h.buf[h.start] = d
	h.freq[d]++
	h.start = (h.start + 1) % len(h.buf)
}

// Digits от старой к новой.
func (h *History) Digits() []int {
	out := make([]int, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Last самая свежая цифра.
func (h *History) Last() (int, bool) {
	if h.size == 0 {
		return 0, false
	}
	return h.buf[(h.start+h.size-1)%len(h.buf)], true
}

func (h *History) Frequencies() [10]int { return h.freq }

// Percentages доля каждой цифры в окне, 0..100.
func (h *History) Percentages() [10]float64 {
	var out [10]float64
	if h.size == 0 {
		return out
	}
	for i, n := range h.freq {
		out[i] = float64(n) * 100 / float64(h.size)
	}
	return out
}

func (h *History) Reset() {
	h.start, h.size = 0, 0
	h.freq = [10]int{}
}
