package birdtracker

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	fitsRecordSize = 80
	fitsBlockCards = 36

	// maxFitsPixels bounds NAXIS1*NAXIS2 before the pixel buffer is allocated.
	maxFitsPixels = 1 << 28
)

// fitsHeader holds the keywords needed to decode a primary HDU image.
type fitsHeader struct {
	bitpix  int
	naxis   int
	width   int
	height  int
	bzero   float64
	bscale  float64
	keyword map[string]string
}

// ReadFitsFrame decodes the primary image of a FITS file into an 8-bit frame.
func ReadFitsFrame(path string) (Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return Frame{}, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	return readFitsFrame(f)
}

// ReadFitsFrameBytes decodes an in-memory FITS image.
func ReadFitsFrameBytes(data []byte) (Frame, error) {
	return readFitsFrame(bytes.NewReader(data))
}

func readFitsFrame(r io.Reader) (Frame, error) {
	h, err := readFitsHeader(r)
	if err != nil {
		return Frame{}, err
	}
	if h.naxis < 2 || h.width <= 0 || h.height <= 0 {
		return Frame{}, fmt.Errorf("invalid FITS: NAXIS=%d, NAXIS1=%d, NAXIS2=%d", h.naxis, h.width, h.height)
	}
	if h.width > maxFitsPixels/h.height {
		return Frame{}, fmt.Errorf("invalid FITS: %dx%d image exceeds %d pixels", h.width, h.height, maxFitsPixels)
	}

	n := h.width * h.height
	bpp := intAbs(h.bitpix) / 8
	if bpp == 0 {
		return Frame{}, fmt.Errorf("unsupported BITPIX: %d", h.bitpix)
	}
	raw := make([]byte, n*bpp)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Frame{}, fmt.Errorf("reading %d-bit pixel data: %w", h.bitpix, err)
	}

	values := make([]float64, n)
	for i := 0; i < n; i++ {
		var v float64
		switch h.bitpix {
		case 8:
			v = float64(raw[i])
		case 16:
			v = float64(int16(binary.BigEndian.Uint16(raw[i*2:])))
		case 32:
			v = float64(int32(binary.BigEndian.Uint32(raw[i*4:])))
		case -32:
			v = float64(math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:])))
		default:
			return Frame{}, fmt.Errorf("unsupported BITPIX: %d", h.bitpix)
		}
		values[i] = v*h.bscale + h.bzero
	}

	if pattern := h.keyword["BAYERPAT"]; pattern != "" {
		if values, err = bayerLuminance(values, h.width, h.height, pattern); err != nil {
			return Frame{}, err
		}
	}

	lo, hi := fitsDisplayRange(h)
	frame := NewFrame(h.width, h.height)
	scale := 255 / (hi - lo)
	for i, v := range values {
		frame.Pix[i] = uint8(clampFloat64((v-lo)*scale, 0, 255))
	}
	return frame, nil
}

// fitsDisplayRange maps physical values onto 0..255. DATAMIN/DATAMAX win when present.
func fitsDisplayRange(h fitsHeader) (float64, float64) {
	lo, okLo := parseFitsFloat(h.keyword["DATAMIN"])
	hi, okHi := parseFitsFloat(h.keyword["DATAMAX"])
	if okLo && okHi && hi > lo {
		return lo, hi
	}
	switch h.bitpix {
	case 8:
		return 0, 255
	case -32:
		return 0, 1
	default:
		return 0, 65535
	}
}

func readFitsHeader(r io.Reader) (fitsHeader, error) {
	h := fitsHeader{bscale: 1, keyword: make(map[string]string)}
	card := make([]byte, fitsRecordSize)

	for {
		for i := 0; i < fitsBlockCards; i++ {
			if _, err := io.ReadFull(r, card); err != nil {
				return h, fmt.Errorf("reading FITS header record: %w", err)
			}
			record := string(card)
			key := strings.TrimSpace(record[:8])
			if key == "END" {
				if rest := fitsBlockCards - 1 - i; rest > 0 {
					if _, err := io.CopyN(io.Discard, r, int64(rest*fitsRecordSize)); err != nil {
						return h, fmt.Errorf("skipping FITS header padding: %w", err)
					}
				}
				return h, nil
			}
			if record[8] != '=' || record[9] != ' ' {
				continue
			}
			value := parseFitsValue(strings.TrimSpace(strings.SplitN(record[10:], "/", 2)[0]))
			h.keyword[strings.ToUpper(key)] = value

			switch key {
			case "BITPIX":
				h.bitpix, _ = strconv.Atoi(value)
			case "NAXIS":
				h.naxis, _ = strconv.Atoi(value)
			case "NAXIS1":
				h.width, _ = strconv.Atoi(value)
			case "NAXIS2":
				h.height, _ = strconv.Atoi(value)
			case "BZERO":
				h.bzero, _ = strconv.ParseFloat(value, 64)
			case "BSCALE":
				h.bscale, _ = strconv.ParseFloat(value, 64)
			}
		}
	}
}

func parseFitsValue(rawValue string) string {
	if strings.HasPrefix(rawValue, "'") {
		if end := strings.LastIndex(rawValue, "'"); end > 0 {
			return strings.TrimRight(rawValue[1:end], " ")
		}
		return strings.Trim(rawValue, "' ")
	}
	return rawValue
}

func parseFitsFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func clampFloat64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
