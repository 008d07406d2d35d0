package proto

import "testing"

func TestReadDecimal(t *testing.T) {
	cases := []struct {
		in       string
		pos      int
		wantVal  uint32
		wantNext int
	}{
		{"123 456", 0, 123, 3},
		{"0 1", 0, 0, 1},
		{"65535\n", 0, 65535, 5},
	}
	for _, c := range cases {
		val, next := ReadDecimal([]byte(c.in), c.pos)
		if val != c.wantVal || next != c.wantNext {
			t.Fatalf("ReadDecimal(%q, %d) = (%d, %d), want (%d, %d)",
				c.in, c.pos, val, next, c.wantVal, c.wantNext)
		}
	}
}

func TestReadHexColorGrayscale(t *testing.T) {
	argb, next := ReadHexColor([]byte("7f\n"), 0)
	if argb != 0x007f7f7f {
		t.Fatalf("grayscale: got %#08x, want 0x007f7f7f", argb)
	}
	if next != 2 {
		t.Fatalf("grayscale: next = %d, want 2", next)
	}
}

func TestReadHexColorRGB(t *testing.T) {
	argb, next := ReadHexColor([]byte("abcdef\n"), 0)
	if argb != 0xffabcdef {
		t.Fatalf("rgb: got %#08x, want 0xffabcdef", argb)
	}
	if next != 6 {
		t.Fatalf("rgb: next = %d, want 6", next)
	}
}

func TestReadHexColorRGBA(t *testing.T) {
	argb, next := ReadHexColor([]byte("11223344\n"), 0)
	if argb != 0x44112233 {
		t.Fatalf("rgba: got %#08x, want 0x44112233", argb)
	}
	if next != 8 {
		t.Fatalf("rgba: next = %d, want 8", next)
	}
}

func TestReadHexColorCaseInsensitive(t *testing.T) {
	lower, _ := ReadHexColor([]byte("ABCDEF\n"), 0)
	upper, _ := ReadHexColor([]byte("abcdef\n"), 0)
	if lower != upper {
		t.Fatalf("expected case-insensitive hex parse, got %#08x vs %#08x", lower, upper)
	}
}

func TestReadHexColorPastEndOfBufferDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("ReadHexColor panicked on a position past the end of b: %v", r)
		}
	}()

	// pos already at len(b): no digits left to peek at in any direction.
	if _, next := ReadHexColor([]byte("x"), 1); next < 1 {
		t.Fatalf("expected next >= pos, got %d", next)
	}

	// Exactly one byte available, at pos 0: every peek from pos+1 onward
	// runs off the end.
	if _, next := ReadHexColor([]byte("7"), 0); next < 0 {
		t.Fatalf("expected a non-negative next, got %d", next)
	}
}
