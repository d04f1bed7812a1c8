package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
	"time"
)

// Type tags. Their relative order fixes how mixed-type tuples sort.
const (
	tagString byte = 0x02
	tagTime   byte = 0x03
	tagBool   byte = 0x04
	tagInt    byte = 0x05
)

// Prefix matches every string component that starts with it. It may only be
// the last component of a lookup prefix.
type Prefix string

// EncodeKey encodes a tuple so that byte-wise comparison of two encodings
// orders them like the tuples themselves, component by component.
func EncodeKey(parts ...any) ([]byte, error) {
	var buf bytes.Buffer
	for i, p := range parts {
		if err := encodePart(&buf, p, i == len(parts)-1); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func mustEncode(parts ...any) []byte {
	b, err := EncodeKey(parts...)
	if err != nil {
		panic(err)
	}
	return b
}

func encodePart(buf *bytes.Buffer, p any, last bool) error {
	switch v := p.(type) {
	case Prefix:
		if !last {
			return fmt.Errorf("store: Prefix must be the last key component")
		}
		buf.WriteByte(tagString)
		writeEscaped(buf, string(v))
		return nil
	case string:
		writeString(buf, v)
		return nil
	case []byte:
		buf.WriteByte(tagString)
		writeEscaped(buf, string(v))
		buf.WriteByte(0x00)
		return nil
	case time.Time:
		buf.WriteByte(tagTime)
		writeOrderedInt(buf, v.UTC().UnixNano())
		return nil
	case bool:
		buf.WriteByte(tagBool)
		if v {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		return nil
	case int:
		buf.WriteByte(tagInt)
		writeOrderedInt(buf, int64(v))
		return nil
	case int64:
		buf.WriteByte(tagInt)
		writeOrderedInt(buf, v)
		return nil
	}

	// Named string types such as models.Gender.
	rv := reflect.ValueOf(p)
	if rv.Kind() == reflect.String {
		writeString(buf, rv.String())
		return nil
	}
	return fmt.Errorf("store: unsupported key component %T", p)
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte(tagString)
	writeEscaped(buf, s)
	buf.WriteByte(0x00)
}

// writeEscaped doubles 0x00 as 0x00 0xFF so the terminator stays unambiguous
// and shorter strings still sort first.
func writeEscaped(buf *bytes.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		buf.WriteByte(s[i])
		if s[i] == 0x00 {
			buf.WriteByte(0xFF)
		}
	}
}

func writeOrderedInt(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v)^(1<<63))
	buf.Write(b[:])
}

// KeyRange is a half-open byte range [Start, End).
type KeyRange struct {
	Start []byte
	End   []byte
}

// PrefixRange returns the range of every key beginning with prefix. The byte
// following a prefix is a tag, a UTF-8 byte or 0x00, never 0xFF, so
// prefix+0xFF bounds the range.
func PrefixRange(prefix []byte) KeyRange {
	end := make([]byte, len(prefix)+1)
	copy(end, prefix)
	end[len(prefix)] = 0xFF
	return KeyRange{Start: prefix, End: end}
}
