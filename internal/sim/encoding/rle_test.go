package encoding

import "testing"

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint16, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 10, 10, 10, 300)

	enc := EncodeRLE(in)
	out, err := DecodeRLE[uint16](enc, len(in))
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_RejectsOverflow(t *testing.T) {
	enc := EncodeRLE([]uint16{300, 300})
	if _, err := DecodeRLE[uint8](enc, 10); err == nil {
		t.Fatalf("expected id overflow error for uint8")
	}
	if _, err := DecodeRLE[uint16](enc, 1); err == nil {
		t.Fatalf("expected limit error")
	}
	if _, err := DecodeRLE[uint8]("!!not base64", 10); err == nil {
		t.Fatalf("expected base64 error")
	}
}
