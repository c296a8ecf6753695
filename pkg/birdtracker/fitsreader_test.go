package birdtracker

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fitsCard(key, value string) string {
	if key == "END" {
		return fmt.Sprintf("%-80s", "END")
	}
	return fmt.Sprintf("%-8s= %-70s", key, value)
}

func buildFits(t *testing.T, cards []string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, c := range cards {
		if len(c) != fitsRecordSize {
			t.Fatalf("card %q is %d bytes", c, len(c))
		}
		buf.WriteString(c)
	}
	buf.WriteString(fitsCard("END", ""))
	for buf.Len()%(fitsRecordSize*fitsBlockCards) != 0 {
		buf.WriteByte(' ')
	}
	buf.Write(data)
	return buf.Bytes()
}

func TestReadFitsFrame16Bit(t *testing.T) {
	values := []uint16{0, 65535, 32768, 300}
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[i*2:], uint16(int16(int32(v)-32768)))
	}
	raw := buildFits(t, []string{
		fitsCard("SIMPLE", "T"),
		fitsCard("BITPIX", "16"),
		fitsCard("NAXIS", "2"),
		fitsCard("NAXIS1", "2"),
		fitsCard("NAXIS2", "2"),
		fitsCard("BZERO", "32768"),
		fitsCard("OBJECT", "'Moon    ' / target"),
	}, data)

	f, err := ReadFitsFrameBytes(raw)
	if err != nil {
		t.Fatalf("ReadFitsFrameBytes returned error: %v", err)
	}
	if f.Width != 2 || f.Height != 2 {
		t.Fatalf("frame is %dx%d, want 2x2", f.Width, f.Height)
	}
	want := []uint8{0, 255, 127, 1}
	for i, w := range want {
		if f.Pix[i] != w {
			t.Fatalf("pixel %d = %d, want %d", i, f.Pix[i], w)
		}
	}
}

func TestReadFitsFrameDataRange(t *testing.T) {
	raw := buildFits(t, []string{
		fitsCard("SIMPLE", "T"),
		fitsCard("BITPIX", "8"),
		fitsCard("NAXIS", "2"),
		fitsCard("NAXIS1", "3"),
		fitsCard("NAXIS2", "1"),
		fitsCard("DATAMIN", "10"),
		fitsCard("DATAMAX", "20"),
	}, []byte{5, 15, 30})

	path := filepath.Join(t.TempDir(), "frame.fits")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write fits: %v", err)
	}
	f, err := ReadFitsFrame(path)
	if err != nil {
		t.Fatalf("ReadFitsFrame returned error: %v", err)
	}
	if f.Pix[0] != 0 || f.Pix[1] != 127 || f.Pix[2] != 255 {
		t.Fatalf("pixels = %v, want [0 127 255]", f.Pix)
	}
}

func TestReadFitsFrameErrors(t *testing.T) {
	if _, err := ReadFitsFrameBytes([]byte(strings.Repeat(" ", 100))); err == nil {
		t.Fatal("expected error for truncated header")
	}
	raw := buildFits(t, []string{
		fitsCard("SIMPLE", "T"),
		fitsCard("BITPIX", "16"),
		fitsCard("NAXIS", "2"),
		fitsCard("NAXIS1", "4"),
		fitsCard("NAXIS2", "4"),
	}, []byte{0, 1})
	if _, err := ReadFitsFrameBytes(raw); err == nil {
		t.Fatal("expected error for truncated pixel data")
	}
	raw = buildFits(t, []string{fitsCard("SIMPLE", "T"), fitsCard("NAXIS", "0")}, nil)
	if _, err := ReadFitsFrameBytes(raw); err == nil {
		t.Fatal("expected error for missing image")
	}

	for _, dims := range [][2]string{{"-4", "4"}, {"4", "-4"}, {"65536", "65536"}, {"9223372036854775807", "2"}} {
		raw = buildFits(t, []string{
			fitsCard("SIMPLE", "T"),
			fitsCard("BITPIX", "8"),
			fitsCard("NAXIS", "2"),
			fitsCard("NAXIS1", dims[0]),
			fitsCard("NAXIS2", dims[1]),
		}, make([]byte, 16))
		if _, err := ReadFitsFrameBytes(raw); err == nil {
			t.Fatalf("expected error for NAXIS1=%s NAXIS2=%s", dims[0], dims[1])
		}
	}
}
