package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/cockroachdb/errors"

	"distritree/pkg/common"
)

func TestEncodeDecode(t *testing.T) {
	buf := new(bytes.Buffer)
	key := EncodeKey(1000)
	val := []byte("hello")

	if err := Encode(buf, OpInsert, key, val); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	pkg, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if pkg.Op != OpInsert {
		t.Errorf("got op %v, want %v", pkg.Op, OpInsert)
	}
	if !bytes.Equal(pkg.Key, []byte{0, 0, 0, 0, 0, 0, 0x03, 0xE8}) {
		t.Errorf("key mismatch: got %v", pkg.Key)
	}
	if !bytes.Equal(pkg.Value, val) {
		t.Errorf("value mismatch: got %q", string(pkg.Value))
	}
}

func TestDecodeInvalidMagic(t *testing.T) {
	buf := bytes.NewReader([]byte{0x00, OpInsert, 0, 8, 0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o'})
	_, err := Decode(buf)
	if !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("expected invalid magic error, got %v", err)
	}
}

func TestDecodeRejectsHugeValue(t *testing.T) {
	buf := bytes.NewReader([]byte{MagicNumber, OpInsert, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := Decode(buf); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected too large error, got %v", err)
	}
}

func TestEncodeDecodeEmptyKeyValue(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := Encode(buf, OpSnapshot, []byte{}, []byte{}); err != nil {
		t.Fatalf("Encode empty failed: %v", err)
	}
	pkg, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if pkg.Op != OpSnapshot || len(pkg.Key) != 0 || len(pkg.Value) != 0 {
		t.Errorf("unexpected result: %+v", pkg)
	}
}

func TestRoundtripAllOps(t *testing.T) {
	ops := []byte{OpInsert, OpSearch, OpScanSearch, OpRange, OpScanRange, OpSnapshot, OpClear}
	key := EncodeKey(-42)
	val := []byte("test-value")

	for _, op := range ops {
		if OpName(op) == "unknown" {
			t.Errorf("op %v has no name", op)
		}
		buf := new(bytes.Buffer)
		if err := Encode(buf, op, key, val); err != nil {
			t.Errorf("Encode op %v failed: %v", op, err)
			continue
		}
		pkg, err := Decode(buf)
		if err != nil {
			t.Errorf("Decode op %v failed: %v", op, err)
			continue
		}
		if pkg.Op != op {
			t.Errorf("op %v: got %v", op, pkg.Op)
		}
	}
}

func TestKeyRoundtrip(t *testing.T) {
	for _, k := range []int64{0, 1, -1, 1 << 62, -(1 << 62)} {
		got, err := DecodeKey(EncodeKey(common.KeyType(k)))
		if err != nil {
			t.Fatalf("DecodeKey(%d): %v", k, err)
		}
		if int64(got) != k {
			t.Errorf("got %d, want %d", got, k)
		}
	}
	if _, err := DecodeKey([]byte{1, 2, 3}); !errors.Is(err, ErrBadKey) {
		t.Errorf("expected bad key error, got %v", err)
	}
}

func TestDecodeIncompleteHeader(t *testing.T) {
	r := bytes.NewReader([]byte{MagicNumber, 0x01}) // only 2 bytes
	_, err := Decode(r)
	if err != io.ErrUnexpectedEOF {
		t.Errorf("expected unexpected EOF for incomplete header, got %v", err)
	}
}
