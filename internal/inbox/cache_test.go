package inbox

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if buf.Len() < minImageBytes {
		t.Fatalf("test image too small: %d bytes", buf.Len())
	}
	return buf.Bytes()
}

func newTestCache(ttl time.Duration) (*Cache, *time.Time) {
	c := New(ttl)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestPutGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(300 * time.Second)
	data := testPNG(t)

	if !c.Put("u1", [][]byte{data}) {
		t.Fatalf("Put() rejected a valid image")
	}
	got := c.Get("u1")
	if !bytes.Equal(got, data) {
		t.Fatalf("Get() returned %d bytes, want %d", len(got), len(data))
	}
}

func TestPutReturnsFirstOfMultiImagePayload(t *testing.T) {
	c, _ := newTestCache(300 * time.Second)
	first := testPNG(t)
	second := testPNG(t)

	if !c.Put("u1", [][]byte{first, second}) {
		t.Fatalf("Put() rejected a valid payload")
	}
	if got := c.Get("u1"); !bytes.Equal(got, first) {
		t.Fatalf("Get() did not return the first buffer")
	}
}

func TestPutRejectsGarbage(t *testing.T) {
	c, _ := newTestCache(300 * time.Second)

	if c.Put("u1", [][]byte{[]byte("tiny")}) {
		t.Fatalf("Put() accepted an undersized payload")
	}
	if c.Put("u1", [][]byte{bytes.Repeat([]byte{0xAB}, 4096)}) {
		t.Fatalf("Put() accepted non-image bytes")
	}
	if got := c.Get("u1"); got != nil {
		t.Fatalf("Get() after rejected Put returned %d bytes", len(got))
	}
}

func TestTTLBoundary(t *testing.T) {
	c, now := newTestCache(300 * time.Second)
	c.Put("u1", [][]byte{testPNG(t)})

	*now = now.Add(299 * time.Second)
	if c.Get("u1") == nil {
		t.Fatalf("entry expired before the TTL elapsed")
	}

	// At exactly the TTL the entry must be treated as absent.
	*now = now.Add(time.Second)
	if c.Get("u1") != nil {
		t.Fatalf("entry still retrievable at the TTL boundary")
	}
}

func TestLookupFallbackChain(t *testing.T) {
	data := testPNG(t)

	t.Run("group scoped reconstruction", func(t *testing.T) {
		c, _ := newTestCache(300 * time.Second)
		c.Put("g1_u1", [][]byte{data})
		if c.Lookup("u1-missing", "g1", "u1") == nil {
			t.Fatalf("Lookup() missed the reconstructed group key")
		}
	})

	t.Run("prefix scan", func(t *testing.T) {
		c, _ := newTestCache(300 * time.Second)
		c.Put("u1_extra", [][]byte{data})
		if c.Lookup("u1", "", "") == nil {
			t.Fatalf("Lookup() missed the prefixed key")
		}
	})

	t.Run("suffix scan", func(t *testing.T) {
		c, _ := newTestCache(300 * time.Second)
		c.Put("g9_u1", [][]byte{data})
		if c.Lookup("u1", "", "") == nil {
			t.Fatalf("Lookup() missed the suffixed key")
		}
	})

	t.Run("compound key split", func(t *testing.T) {
		c, _ := newTestCache(300 * time.Second)
		c.Put("u1", [][]byte{data})
		if c.Lookup("g1_u1", "", "") == nil {
			t.Fatalf("Lookup() missed the split key part")
		}
	})

	t.Run("miss", func(t *testing.T) {
		c, _ := newTestCache(300 * time.Second)
		c.Put("someone-else", [][]byte{data})
		if c.Lookup("u1", "", "") != nil {
			t.Fatalf("Lookup() fabricated a hit")
		}
	})
}

func TestLookupDoesNotConsume(t *testing.T) {
	c, _ := newTestCache(300 * time.Second)
	c.Put("u1", [][]byte{testPNG(t)})

	if c.Lookup("u1", "", "") == nil {
		t.Fatalf("first Lookup() missed")
	}
	if c.Lookup("u1", "", "") == nil {
		t.Fatalf("second Lookup() missed: entry was consumed")
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	c, now := newTestCache(300 * time.Second)
	data := testPNG(t)
	c.Put("old", [][]byte{data})

	*now = now.Add(200 * time.Second)
	c.Put("fresh", [][]byte{data})

	*now = now.Add(150 * time.Second)
	if removed := c.Sweep(); removed != 1 {
		t.Fatalf("Sweep() removed %d entries, want 1", removed)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d after sweep, want 1", c.Len())
	}
	if c.Get("fresh") == nil {
		t.Fatalf("fresh entry removed by sweep")
	}
}
