package birdtracker

import (
	"fmt"
	"strings"
)

type bayerChannel int

const (
	bayerRed bayerChannel = iota
	bayerGreen
	bayerBlue
)

// bayerLayout maps (x%2, y%2) to the colour sampled there.
type bayerLayout [2][2]bayerChannel

var bayerLayouts = map[string]bayerLayout{
	// indexed [y%2][x%2]
	"RGGB": {{bayerRed, bayerGreen}, {bayerGreen, bayerBlue}},
	"BGGR": {{bayerBlue, bayerGreen}, {bayerGreen, bayerRed}},
	"GRBG": {{bayerGreen, bayerRed}, {bayerBlue, bayerGreen}},
	"GBRG": {{bayerGreen, bayerBlue}, {bayerRed, bayerGreen}},
}

// bayerLuminance demosaics a colour-filter-array image bilinearly and returns
// (R + G + B) / 3 per pixel. A channel the pixel samples itself is taken as is;
// the others are the mean of that channel over the clamped 3x3 neighbourhood.
func bayerLuminance(data []float64, width, height int, pattern string) ([]float64, error) {
	layout, ok := bayerLayouts[strings.ToUpper(strings.TrimSpace(pattern))]
	if !ok {
		return nil, fmt.Errorf("unsupported Bayer pattern %q", pattern)
	}
	if len(data) < width*height {
		return nil, fmt.Errorf("bayer data has %d samples, want %d", len(data), width*height)
	}

	out := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			own := layout[y%2][x%2]
			var sum [3]float64
			var n [3]int
			for dy := -1; dy <= 1; dy++ {
				yy := clampInt(y+dy, 0, height-1)
				for dx := -1; dx <= 1; dx++ {
					xx := clampInt(x+dx, 0, width-1)
					ch := layout[yy%2][xx%2]
					sum[ch] += data[yy*width+xx]
					n[ch]++
				}
			}

			var lum float64
			for ch := bayerRed; ch <= bayerBlue; ch++ {
				switch {
				case ch == own:
					lum += data[y*width+x]
				case n[ch] > 0:
					lum += sum[ch] / float64(n[ch])
				}
			}
			out[y*width+x] = lum / 3
		}
	}
	return out, nil
}
