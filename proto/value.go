package proto

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// Value tags. Every encoded value starts with one of these bytes.
const (
	TypeInt    byte = '#'
	TypeFloat  byte = '%'
	TypeString byte = '"'
	TypeBytes  byte = '\''
	TypeList   byte = '*'
	TypeBool   byte = '?'
)

var (
	ErrBadType            = errors.New("unsupported value type")
	ErrNotHashable        = errors.New("value is not hashable")
	ErrEmbeddedCollection = errors.New("collections cannot be embedded")
)

// Encode encodes v. Supported Go types are the integer kinds, float32/float64, string, []byte, bool
// and []any whose items are scalars.
func Encode(v any) ([]byte, error) {
	return AppendValue(nil, v)
}

func AppendValue(dst []byte, v any) ([]byte, error) {
	if items, ok := v.([]any); ok {
		return appendList(dst, items)
	}
	return appendScalar(dst, v)
}

func appendList(dst []byte, items []any) ([]byte, error) {
	if len(items) > math.MaxUint16 {
		return dst, fmt.Errorf("list of %d items: %w", len(items), ErrFrameTooLarge)
	}
	dst = append(dst, TypeList)
	dst = order.AppendUint16(dst, uint16(len(items)))
	for i, item := range items {
		mark := len(dst)
		dst = append(dst, 0, 0)
		var err error
		dst, err = appendScalar(dst, item)
		if err != nil {
			return dst[:mark], fmt.Errorf("list item %d: %w", i, err)
		}
		n := len(dst) - mark - LenSize
		if n > math.MaxUint16 {
			return dst[:mark], fmt.Errorf("list item %d of %d bytes: %w", i, n, ErrFrameTooLarge)
		}
		order.PutUint16(dst[mark:], uint16(n))
	}
	return dst, nil
}

func appendScalar(dst []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case int:
		return strconv.AppendInt(append(dst, TypeInt), int64(x), 10), nil
	case int8:
		return strconv.AppendInt(append(dst, TypeInt), int64(x), 10), nil
	case int16:
		return strconv.AppendInt(append(dst, TypeInt), int64(x), 10), nil
	case int32:
		return strconv.AppendInt(append(dst, TypeInt), int64(x), 10), nil
	case int64:
		return strconv.AppendInt(append(dst, TypeInt), x, 10), nil
	case uint8:
		return strconv.AppendUint(append(dst, TypeInt), uint64(x), 10), nil
	case uint16:
		return strconv.AppendUint(append(dst, TypeInt), uint64(x), 10), nil
	case uint32:
		return strconv.AppendUint(append(dst, TypeInt), uint64(x), 10), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return dst, fmt.Errorf("%d overflows int64: %w", x, ErrBadType)
		}
		return strconv.AppendUint(append(dst, TypeInt), uint64(x), 10), nil
	case uint64:
		if x > math.MaxInt64 {
			return dst, fmt.Errorf("%d overflows int64: %w", x, ErrBadType)
		}
		return strconv.AppendUint(append(dst, TypeInt), x, 10), nil
	case float32:
		return strconv.AppendFloat(append(dst, TypeFloat), float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.AppendFloat(append(dst, TypeFloat), x, 'g', -1, 64), nil
	case string:
		if !utf8.ValidString(x) {
			return dst, fmt.Errorf("string is not valid UTF-8: %w", ErrBadType)
		}
		return append(append(dst, TypeString), x...), nil
	case []byte:
		return append(append(dst, TypeBytes), x...), nil
	case bool:
		if x {
			return append(dst, TypeBool, '1'), nil
		}
		return append(dst, TypeBool, '0'), nil
	case []any:
		return dst, ErrEmbeddedCollection
	default:
		return dst, fmt.Errorf("%T: %w", v, ErrBadType)
	}
}

// Decode decodes one value. Integers decode to int64, floats to float64, lists to []any.
// Byte and list results do not alias b.
func Decode(b []byte) (any, error) {
	if len(b) > 0 && b[0] == TypeList {
		return decodeList(b[1:])
	}
	return decodeScalar(b)
}

func decodeList(b []byte) (any, error) {
	if len(b) < LenSize {
		return nil, fmt.Errorf("list without item count: %w", ErrMalformed)
	}
	n := int(order.Uint16(b))
	off := LenSize
	items := make([]any, 0, n)
	for i := 0; i < n; i++ {
		if off+LenSize > len(b) {
			return nil, fmt.Errorf("list item %d: %w", i, ErrMalformed)
		}
		l := int(order.Uint16(b[off:]))
		off += LenSize
		if off+l > len(b) {
			return nil, fmt.Errorf("list item %d: %w", i, ErrMalformed)
		}
		item := b[off : off+l]
		if len(item) > 0 && item[0] == TypeList {
			return nil, fmt.Errorf("list item %d: %w", i, ErrEmbeddedCollection)
		}
		v, err := decodeScalar(item)
		if err != nil {
			return nil, fmt.Errorf("list item %d: %w", i, err)
		}
		items = append(items, v)
		off += l
	}
	if off != len(b) {
		return nil, fmt.Errorf("%d trailing bytes after list: %w", len(b)-off, ErrMalformed)
	}
	return items, nil
}

func decodeScalar(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty value: %w", ErrBadType)
	}
	body := b[1:]
	switch b[0] {
	case TypeInt:
		n, err := strconv.ParseInt(string(body), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("integer %q: %w", body, ErrBadType)
		}
		return n, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(string(body), 64)
		if err != nil {
			return nil, fmt.Errorf("float %q: %w", body, ErrBadType)
		}
		return f, nil
	case TypeString:
		if !utf8.Valid(body) {
			return nil, fmt.Errorf("string is not valid UTF-8: %w", ErrBadType)
		}
		return string(body), nil
	case TypeBytes:
		return append([]byte{}, body...), nil
	case TypeBool:
		if len(body) == 1 && (body[0] == '0' || body[0] == '1') {
			return body[0] == '1', nil
		}
		return nil, fmt.Errorf("boolean %q: %w", body, ErrBadType)
	default:
		return nil, fmt.Errorf("tag %q: %w", b[0], ErrBadType)
	}
}

// Key is the canonical encoding of a hashable value: any scalar except a boolean.
// Equal values always produce equal keys.
type Key string

func KeyOf(v any) (Key, error) {
	switch v.(type) {
	case []any, bool:
		return "", fmt.Errorf("%T: %w", v, ErrNotHashable)
	}
	b, err := appendScalar(nil, v)
	if err != nil {
		return "", err
	}
	return Key(b), nil
}

// ParseKey validates an encoded key and returns its canonical form.
func ParseKey(b []byte) (Key, error) {
	if len(b) > 0 && (b[0] == TypeList || b[0] == TypeBool) {
		return "", fmt.Errorf("tag %q: %w", b[0], ErrNotHashable)
	}
	v, err := decodeScalar(b)
	if err != nil {
		return "", err
	}
	return KeyOf(v)
}

// Value decodes the key back to the value it was built from.
func (k Key) Value() any {
	v, _ := decodeScalar([]byte(k))
	return v
}

func (k Key) String() string {
	return fmt.Sprintf("%v", k.Value())
}
