package comm

import (
	"bytes"
	"testing"
)

func TestCodecScalarRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeInt(&buf, -42); err != nil {
		t.Fatalf("writeInt: %v", err)
	}
	if err := writeDouble(&buf, 3.14159265); err != nil {
		t.Fatalf("writeDouble: %v", err)
	}
	if err := writeBool(&buf, true); err != nil {
		t.Fatalf("writeBool: %v", err)
	}

	gotInt, err := readInt(&buf)
	if err != nil || gotInt != -42 {
		t.Fatalf("readInt = %d, %v, want -42, nil", gotInt, err)
	}
	gotDouble, err := readDouble(&buf)
	if err != nil || gotDouble != 3.14159265 {
		t.Fatalf("readDouble = %v, %v, want 3.14159265, nil", gotDouble, err)
	}
	gotBool, err := readBool(&buf)
	if err != nil || !gotBool {
		t.Fatalf("readBool = %v, %v, want true, nil", gotBool, err)
	}
}

func TestCodecArrayRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	ints := []int32{1, -2, 3, 0, 2147483647}
	if err := writeInts(&buf, ints); err != nil {
		t.Fatalf("writeInts: %v", err)
	}
	out := make([]int32, len(ints))
	if err := readInts(&buf, out); err != nil {
		t.Fatalf("readInts: %v", err)
	}
	for i := range ints {
		if out[i] != ints[i] {
			t.Fatalf("readInts[%d] = %d, want %d", i, out[i], ints[i])
		}
	}

	doubles := []float64{0.0, -1.5, 1e300, -1e-300}
	buf.Reset()
	if err := writeDoubles(&buf, doubles); err != nil {
		t.Fatalf("writeDoubles: %v", err)
	}
	dout := make([]float64, len(doubles))
	if err := readDoubles(&buf, dout); err != nil {
		t.Fatalf("readDoubles: %v", err)
	}
	for i := range doubles {
		if dout[i] != doubles[i] {
			t.Fatalf("readDoubles[%d] = %v, want %v", i, dout[i], doubles[i])
		}
	}
}

func TestCodecStringRoundTrip(t *testing.T) {
	cases := []string{"", "hello", "multi-byte: éè中文", "with\x00embedded-looking text"}
	for _, s := range cases {
		var buf bytes.Buffer
		if err := writeString(&buf, s); err != nil {
			t.Fatalf("writeString(%q): %v", s, err)
		}
		got, err := readString(&buf)
		if err != nil {
			t.Fatalf("readString after writeString(%q): %v", s, err)
		}
		if got != s {
			t.Fatalf("readString = %q, want %q", got, s)
		}
	}
}

func TestCodecChecksumDetectsDesync(t *testing.T) {
	payload := int32sToBytes([]int32{1, 2, 3})

	var buf bytes.Buffer
	if err := writeChecksum(&buf, payload); err != nil {
		t.Fatalf("writeChecksum: %v", err)
	}
	if err := verifyChecksum(&buf, payload); err != nil {
		t.Fatalf("verifyChecksum on matching payload: %v", err)
	}

	buf.Reset()
	if err := writeChecksum(&buf, payload); err != nil {
		t.Fatalf("writeChecksum: %v", err)
	}
	wrongPayload := int32sToBytes([]int32{1, 2, 4})
	if err := verifyChecksum(&buf, wrongPayload); err == nil {
		t.Fatalf("verifyChecksum on mismatched payload: want error, got nil")
	}
}
