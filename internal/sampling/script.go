package sampling

// Script is a deterministic Sampler that replays queued values. Each method
// consumes from its own queue; once a queue is empty Default is returned
// (for IntN, 0). Bernoulli consumes a uniform and compares it against p.
type Script struct {
	Uniforms     []float64
	Ints         []int
	Exponentials []float64
	Gammas       []float64
	Default      float64

	// Calls counts draws by method name.
	Calls map[string]int
}

func (s *Script) record(name string) {
	if s.Calls == nil {
		s.Calls = make(map[string]int)
	}
	s.Calls[name]++
}

func pop(q *[]float64, def float64) float64 {
	if len(*q) == 0 {
		return def
	}
	v := (*q)[0]
	*q = (*q)[1:]
	return v
}

func (s *Script) Float64() float64 {
	s.record("Float64")
	return pop(&s.Uniforms, s.Default)
}

func (s *Script) Bernoulli(p float64) bool {
	s.record("Bernoulli")
	return pop(&s.Uniforms, s.Default) < p
}

func (s *Script) IntN(n int) int {
	s.record("IntN")
	if len(s.Ints) == 0 || n <= 0 {
		return 0
	}
	v := s.Ints[0]
	s.Ints = s.Ints[1:]
	return v % n
}

func (s *Script) Exponential(loc, scale float64) float64 {
	s.record("Exponential")
	return pop(&s.Exponentials, s.Default)
}

func (s *Script) Gamma(shape, loc, scale float64) float64 {
	s.record("Gamma")
	return pop(&s.Gammas, s.Default)
}
