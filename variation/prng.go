package variation

import "math"

// LCG constants (Knuth, MMIX). The increment is odd so state 0 is not a
// fixed point.
const (
	lcgMultiplier uint64 = 6364136223846793005
	lcgIncrement  uint64 = 1442695040888963407
)

// alphanumeric is the alphabet used for unique ids and hashes.
const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// PRNG is a seeded linear-congruential generator.
//
// The whole state is one uint64 and every output is a pure function of the
// previous state, so the same seed always replays the same sequence. A PRNG
// belongs to exactly one variant and must not be shared between goroutines.
type PRNG struct {
	state uint64
}

// NewPRNG creates a generator for the given seed.
//
// The seed is scrambled with a SplitMix64 finaliser before use. Neighbouring
// seeds therefore start far apart in the sequence, and seed 0 still yields a
// non-constant stream.
func NewPRNG(seed int64) *PRNG {
	return &PRNG{state: splitmix64(uint64(seed))}
}

// splitmix64 is a bijective 64-bit mixer.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

func (p *PRNG) step() uint64 {
	p.state = p.state*lcgMultiplier + lcgIncrement
	return p.state
}

// Next returns a float64 in [0, 1) built from the top 53 bits of the state.
func (p *PRNG) Next() float64 {
	return float64(p.step()>>11) / (1 << 53)
}

// Range returns a float64 in [min, max).
func (p *PRNG) Range(min, max float64) float64 {
	return min + p.Next()*(max-min)
}

// Int returns an integer in [min, max], inclusive of both bounds.
// Swapped bounds are accepted.
func (p *PRNG) Int(min, max int) int {
	if min > max {
		min, max = max, min
	}
	span := float64(max - min + 1)
	v := min + int(p.Next()*span)
	if v > max {
		v = max
	}
	return v
}

// Bool returns true with probability prob.
func (p *PRNG) Bool(prob float64) bool {
	return p.Next() < prob
}

// Gaussian returns a standard normal sample (Box-Muller).
func (p *PRNG) Gaussian() float64 {
	u1 := p.Next()
	if u1 < 1e-12 {
		u1 = 1e-12
	}
	u2 := p.Next()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// Alphanumeric returns a random string of n characters from [A-Za-z0-9].
func (p *PRNG) Alphanumeric(n int) string {
	if n <= 0 {
		return ""
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphanumeric[p.Int(0, len(alphanumeric)-1)]
	}
	return string(buf)
}
