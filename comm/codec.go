package comm

// Frame codec (C1): fixed-width and length-prefixed payloads on a byte
// stream. There is no type tag and no length envelope around scalars or
// arrays — sender and receiver agree on shape by call-site contract, not by
// parsing (§4.2). Multi-byte scalars are little-endian; this is a
// same-architecture wire format by design (§6).

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/OneOfOne/xxhash"
)

func writeInt(w io.Writer, v int32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	_, err := w.Write(b[:])
	return err
}

func readInt(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

func writeBool(w io.Writer, v bool) error {
	b := byte(0)
	if v {
		b = 1
	}
	_, err := w.Write([]byte{b})
	return err
}

func readBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func writeDouble(w io.Writer, v float64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	_, err := w.Write(b[:])
	return err
}

func readDouble(r io.Reader) (float64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:])), nil
}

func writeInts(w io.Writer, vs []int32) error {
	buf := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	_, err := w.Write(buf)
	return err
}

func readInts(r io.Reader, out []int32) error {
	buf := make([]byte, 4*len(out))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return nil
}

func writeDoubles(w io.Writer, vs []float64) error {
	buf := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	_, err := w.Write(buf)
	return err
}

func readDoubles(r io.Reader, out []float64) error {
	buf := make([]byte, 8*len(out))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return nil
}

// writeString sends a size_t length (including the trailing NUL) followed
// by that many bytes, the last of which is the NUL terminator (§4.2, §6).
func writeString(w io.Writer, s string) error {
	size := uint64(len(s) + 1)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], size)
	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	buf := make([]byte, size)
	copy(buf, s)
	// buf[len(s)] is already the zero byte (NUL)
	_, err := w.Write(buf)
	return err
}

func readString(r io.Reader) (string, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", err
	}
	size := binary.LittleEndian.Uint64(b[:])
	if size == 0 {
		return "", fmt.Errorf("readString: size prefix is zero, expected >= 1 (NUL terminator)")
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf[:size-1]), nil
}

func int32sToBytes(vs []int32) []byte {
	buf := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func float64sToBytes(vs []float64) []byte {
	buf := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// checksum/verify — optional, gated by Config.VerifyFrames (§11 domain
// stack). Appended after the payload, never part of the default wire
// format.

func writeChecksum(w io.Writer, payload []byte) error {
	sum := xxhash.Checksum64(payload)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], sum)
	_, err := w.Write(b[:])
	return err
}

func verifyChecksum(r io.Reader, payload []byte) error {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	want := binary.LittleEndian.Uint64(b[:])
	got := xxhash.Checksum64(payload)
	if want != got {
		return fmt.Errorf("frame checksum mismatch: wire=%x computed=%x (desynchronized sender/receiver contract)", want, got)
	}
	return nil
}
