package protocol

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"distritree/pkg/common"
)

// [Magic 1B] [Op 1B] [KeyLen 2B] [ValLen 4B] [Key] [Value]
const (
	MagicNumber = 0x44
	HeaderSize  = 8

	// MaxValueSize bounds the body a peer may announce.
	MaxValueSize = 64 << 20

	OpInsert     = 0x01 // Key=key, Value=payload
	OpSearch     = 0x02 // Key=key
	OpScanSearch = 0x03 // Key=key
	OpRange      = 0x04 // Key=start, Value=end
	OpScanRange  = 0x05 // Key=start, Value=end
	OpSnapshot   = 0x06
	OpClear      = 0x07

	RespOK  = 0x00
	RespErr = 0xFF
	RespVal = 0x01
)

var (
	ErrInvalidMagic = errors.New("invalid magic number")
	ErrTooLarge     = errors.New("packet too large")
	ErrBadKey       = errors.New("key must be 8 bytes")
)

type Packet struct {
	Op    byte
	Key   []byte
	Value []byte
}

func Encode(w io.Writer, op byte, key []byte, value []byte) error {
	if len(key) > 0xFFFF || len(value) > MaxValueSize {
		return ErrTooLarge
	}
	header := make([]byte, HeaderSize)
	header[0] = MagicNumber
	header[1] = op
	binary.BigEndian.PutUint16(header[2:4], uint16(len(key)))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(value)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(key) > 0 {
		if _, err := w.Write(key); err != nil {
			return err
		}
	}
	if len(value) > 0 {
		if _, err := w.Write(value); err != nil {
			return err
		}
	}
	return nil
}

func Decode(r io.Reader) (*Packet, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	if header[0] != MagicNumber {
		return nil, ErrInvalidMagic
	}

	op := header[1]
	kLen := binary.BigEndian.Uint16(header[2:4])
	vLen := binary.BigEndian.Uint32(header[4:8])
	if vLen > MaxValueSize {
		return nil, errors.Wrapf(ErrTooLarge, "value length %d", vLen)
	}

	key := make([]byte, kLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}

	val := make([]byte, vLen)
	if _, err := io.ReadFull(r, val); err != nil {
		return nil, err
	}

	return &Packet{Op: op, Key: key, Value: val}, nil
}

// EncodeKey renders a key as 8 big-endian bytes.
func EncodeKey(k common.KeyType) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(k))
	return buf
}

func DecodeKey(b []byte) (common.KeyType, error) {
	if len(b) != 8 {
		return 0, errors.Wrapf(ErrBadKey, "got %d bytes", len(b))
	}
	return common.KeyType(binary.BigEndian.Uint64(b)), nil
}

// OpName is used in logs.
func OpName(op byte) string {
	switch op {
	case OpInsert:
		return "insert"
	case OpSearch:
		return "search"
	case OpScanSearch:
		return "scan_search"
	case OpRange:
		return "range"
	case OpScanRange:
		return "scan_range"
	case OpSnapshot:
		return "snapshot"
	case OpClear:
		return "clear"
	default:
		return "unknown"
	}
}
