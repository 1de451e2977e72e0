// Package wire implements the small length-prefixed wire vocabulary shared
// by every TCP message in the transfer protocol: big-endian u32/u64
// integers, a u16-length-prefixed UTF-8 string, and a raw byte blob.
// There are no delimiters and no self-describing types; callers must
// already know the shape of the message they are reading.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxStringLen is the longest string a u16 length prefix can describe;
// WriteString rejects anything longer.
const MaxStringLen = 1<<16 - 1

// WriteU32 writes a big-endian 32-bit integer.
func WriteU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadU32 reads a big-endian 32-bit integer.
func ReadU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteU64 writes a big-endian 64-bit integer.
func WriteU64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadU64 reads a big-endian 64-bit integer.
func ReadU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteString writes a u16 length prefix followed by the UTF-8 bytes of s.
func WriteString(w io.Writer, s string) error {
	if len(s) > MaxStringLen {
		return fmt.Errorf("wire: string too long: %d bytes", len(s))
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadString reads a u16-length-prefixed UTF-8 string.
func ReadString(r io.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteBlob writes exactly len(data) raw bytes, with no length prefix —
// the caller is expected to have already communicated the length (e.g.
// via a preceding u32 size field).
func WriteBlob(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}

// ReadBlob reads exactly n raw bytes.
func ReadBlob(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
