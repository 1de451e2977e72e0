package wire

import (
	"bytes"
	"io"
	"testing"
)

func TestU32RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteU32(&buf, 0xdeadbeef); err != nil {
		t.Fatalf("WriteU32: %v", err)
	}
	got, err := ReadU32(&buf)
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if got != 0xdeadbeef {
		t.Fatalf("got %x, want %x", got, 0xdeadbeef)
	}
}

func TestU64RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := uint64(1) << 40
	if err := WriteU64(&buf, want); err != nil {
		t.Fatalf("WriteU64: %v", err)
	}
	got, err := ReadU64(&buf)
	if err != nil {
		t.Fatalf("ReadU64: %v", err)
	}
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := "REQUEST_FILE_INFO hello world.txt"
	if err := WriteString(&buf, want); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	got, err := ReadString(&buf)
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := bytes.Repeat([]byte{0x42}, 1000)
	if err := WriteBlob(&buf, want); err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	got, err := ReadBlob(&buf, len(want))
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("blob mismatch")
	}
}

func TestReadStringEOFMidFrame(t *testing.T) {
	// Length prefix claims 10 bytes but only 2 are present.
	buf := bytes.NewReader([]byte{0x00, 0x0a, 'h', 'i'})
	if _, err := ReadString(buf); err != io.ErrUnexpectedEOF {
		t.Fatalf("got err %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestWriteStringTooLong(t *testing.T) {
	var buf bytes.Buffer
	longStr := string(make([]byte, MaxStringLen+1))
	if err := WriteString(&buf, longStr); err == nil {
		t.Fatalf("expected error for oversized string")
	}
}
