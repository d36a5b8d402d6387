package alerts

import (
	"sync"

	"github.com/markcheno/go-talib"
)

const (
	volumeWindowSize = 30
	volumeMinSamples = 5
)

// VolumeWindow keeps a bounded ring of recent volume samples per symbol
// and serves the rolling average for spike detection. It is owned by
// whoever builds the alert engine and passed in explicitly, so separate
// engine instances never share history.
type VolumeWindow struct {
	mu      sync.Mutex
	samples map[string][]float64
}

func NewVolumeWindow() *VolumeWindow {
	return &VolumeWindow{samples: make(map[string][]float64)}
}

// Observe appends a volume sample, evicting the oldest once the ring
// holds volumeWindowSize entries.
func (w *VolumeWindow) Observe(symbol string, volume float64) {
	if volume <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	ring := append(w.samples[symbol], volume)
	if len(ring) > volumeWindowSize {
		ring = ring[len(ring)-volumeWindowSize:]
	}
	w.samples[symbol] = ring
}

// Average returns the rolling average of the stored samples. It
// reports false until volumeMinSamples have been observed, so a spike
// can never fire off a near-empty window.
func (w *VolumeWindow) Average(symbol string) (float64, bool) {
	w.mu.Lock()
	ring := append([]float64(nil), w.samples[symbol]...)
	w.mu.Unlock()
	if len(ring) < volumeMinSamples {
		return 0, false
	}
	sma := talib.Sma(ring, len(ring))
	avg := sma[len(sma)-1]
	if avg <= 0 {
		return 0, false
	}
	return avg, true
}
