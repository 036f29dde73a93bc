package phantom

import (
	"math"
	"math/rand/v2"
	"sync"
)

// Detector simulates the intensity readings of an X-ray detector: a base
// level of 100 perturbed by uniform noise of NoiseLevel*100.
type Detector struct {
	NoiseLevel float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDetector returns a detector with a deterministic noise source.
func NewDetector(noiseLevel float64, seed uint64) *Detector {
	return &Detector{
		NoiseLevel: noiseLevel,
		rng:        rand.New(rand.NewPCG(seed, seed)),
	}
}

// Reading returns one intensity reading rounded to two decimals.
func (d *Detector) Reading() float64 {
	d.mu.Lock()
	u := d.rng.Float64()*2 - 1
	d.mu.Unlock()

	return math.Round((100+u*d.NoiseLevel*100)*100) / 100
}
