package zarr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Dtype is a zarr data type written as a NumPy array protocol type string
// (typestr). The format consists of 3 parts:
//   - One character describing the byteorder of the data:
//     "<": little-endian; ">": big-endian; "|": not-relevant
//   - One character code giving the basic type of the array:
//     "b": boolean; "i": integer; "u": unsigned integer; "f": floating
//     point; "c": complex; "m": timedelta; "M": datetime; "S": string;
//     "U": unicode; "V": other
//   - An integer specifying the number of bytes the type uses.
//
// Only boolean, integer, unsigned and floating point types can be decoded
// into values.
type Dtype struct {
	ByteOrder ByteOrder
	BasicType BasicType
	ByteSize  int
	Units     string
}

var (
	_ json.Unmarshaler = (*Dtype)(nil)
	_ json.Marshaler   = (*Dtype)(nil)
)

// Float64 is the little-endian double precision type arrays are written in.
var Float64 = Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 8}

func ParseDtype(s string) (dt Dtype, err error) {
	// python writers may HTML-escape the byte order
	s = strings.Replace(s, "&lt;", "<", 1)
	s = strings.Replace(s, "&gt;", ">", 1)

	if len(s) < 3 {
		return dt, fmt.Errorf("invalid Dtype string. %q is too short", s)
	}

	boByte, s := s[0], s[1:]
	dt.ByteOrder, err = ParseByteOrder(rune(boByte))
	if err != nil {
		return dt, err
	}

	typeByte, s := s[0], s[1:]
	dt.BasicType, err = ParseBasicType(rune(typeByte))
	if err != nil {
		return dt, err
	}

	sizeStr, unitStr := s, ""
	if i := strings.IndexByte(s, '['); i >= 0 {
		sizeStr, unitStr = s[:i], s[i:]
	}
	size, err := strconv.ParseInt(sizeStr, 10, 0)
	if err != nil {
		return dt, fmt.Errorf("invalid Dtype size %q: %w", sizeStr, err)
	}
	dt.ByteSize = int(size)
	dt.Units = unitStr

	return dt, nil
}

func (dt Dtype) String() string {
	return fmt.Sprintf("%s%s%d%s", string(dt.ByteOrder), string(dt.BasicType), dt.ByteSize, dt.Units)
}

func (dt Dtype) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.String())
}

func (dt *Dtype) UnmarshalJSON(d []byte) error {
	var s string
	if err := json.Unmarshal(d, &s); err != nil {
		return err
	}
	t, err := ParseDtype(s)
	if err != nil {
		return err
	}

	*dt = t
	return nil
}

func (dt Dtype) order() binary.ByteOrder {
	if dt.ByteOrder == BOBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Numeric reports whether values of this type can be decoded.
func (dt Dtype) Numeric() bool {
	switch dt.BasicType {
	case BTBoolean:
		return dt.ByteSize == 1
	case BTInteger, BTUnsigned:
		switch dt.ByteSize {
		case 1, 2, 4, 8:
			return true
		}
	case BTFloatingPoint:
		return dt.ByteSize == 4 || dt.ByteSize == 8
	}
	return false
}

// Decode converts raw chunk bytes into values.
func (dt Dtype) Decode(b []byte) ([]float64, error) {
	if !dt.Numeric() {
		return nil, fmt.Errorf("unsupported decoding type %s", dt)
	}
	if len(b)%dt.ByteSize != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %s values", len(b), dt)
	}
	bo := dt.order()
	out := make([]float64, len(b)/dt.ByteSize)
	for i := range out {
		p := b[i*dt.ByteSize : (i+1)*dt.ByteSize]
		switch dt.BasicType {
		case BTBoolean:
			if p[0] != 0 {
				out[i] = 1
			}
		case BTInteger:
			switch dt.ByteSize {
			case 1:
				out[i] = float64(int8(p[0]))
			case 2:
				out[i] = float64(int16(bo.Uint16(p)))
			case 4:
				out[i] = float64(int32(bo.Uint32(p)))
			case 8:
				out[i] = float64(int64(bo.Uint64(p)))
			}
		case BTUnsigned:
			switch dt.ByteSize {
			case 1:
				out[i] = float64(p[0])
			case 2:
				out[i] = float64(bo.Uint16(p))
			case 4:
				out[i] = float64(bo.Uint32(p))
			case 8:
				out[i] = float64(bo.Uint64(p))
			}
		case BTFloatingPoint:
			if dt.ByteSize == 4 {
				out[i] = float64(math.Float32frombits(bo.Uint32(p)))
			} else {
				out[i] = math.Float64frombits(bo.Uint64(p))
			}
		}
	}
	return out, nil
}

// Encode converts values into raw chunk bytes. Integer types truncate.
func (dt Dtype) Encode(vals []float64) ([]byte, error) {
	if !dt.Numeric() {
		return nil, fmt.Errorf("unsupported encoding type %s", dt)
	}
	bo := dt.order()
	b := make([]byte, len(vals)*dt.ByteSize)
	for i, v := range vals {
		p := b[i*dt.ByteSize : (i+1)*dt.ByteSize]
		switch dt.BasicType {
		case BTBoolean:
			if v != 0 {
				p[0] = 1
			}
		case BTInteger, BTUnsigned:
			u := uint64(int64(v))
			if dt.BasicType == BTUnsigned {
				u = uint64(v)
			}
			switch dt.ByteSize {
			case 1:
				p[0] = byte(u)
			case 2:
				bo.PutUint16(p, uint16(u))
			case 4:
				bo.PutUint32(p, uint32(u))
			case 8:
				bo.PutUint64(p, u)
			}
		case BTFloatingPoint:
			if dt.ByteSize == 4 {
				bo.PutUint32(p, math.Float32bits(float32(v)))
			} else {
				bo.PutUint64(p, math.Float64bits(v))
			}
		}
	}
	return b, nil
}

type ByteOrder rune

func ParseByteOrder(r rune) (ByteOrder, error) {
	o := ByteOrder(r)
	if _, ok := byteOrders[o]; !ok {
		return o, fmt.Errorf("unsupported byte order format: %q", r)
	}
	return o, nil
}

const (
	BONotRelevant  ByteOrder = '|'
	BOLittleEndian ByteOrder = '<'
	BOBigEndian    ByteOrder = '>'
)

var byteOrders = map[ByteOrder]struct{}{
	BONotRelevant:  {},
	BOLittleEndian: {},
	BOBigEndian:    {},
}

type BasicType rune

func ParseBasicType(r rune) (BasicType, error) {
	t := BasicType(r)
	if _, ok := supportedBasicTypes[t]; !ok {
		return t, fmt.Errorf("unsupported basic type: %q", r)
	}
	return t, nil
}

func (bt BasicType) Human() string {
	return supportedBasicTypes[bt]
}

const (
	BTBoolean       BasicType = 'b'
	BTInteger       BasicType = 'i'
	BTUnsigned      BasicType = 'u'
	BTFloatingPoint BasicType = 'f'
	BTComplex       BasicType = 'c'
	BTTimedelta     BasicType = 'm'
	BTDatetime      BasicType = 'M'
	BTString        BasicType = 'S'
	BTUnicode       BasicType = 'U'
	BTOther         BasicType = 'V'
)

var supportedBasicTypes = map[BasicType]string{
	BTBoolean:       "bool",
	BTInteger:       "int",
	BTUnsigned:      "uint",
	BTFloatingPoint: "float",
	BTComplex:       "complex",
	BTTimedelta:     "timeDelta",
	BTDatetime:      "dateTime",
	BTString:        "string",
	BTUnicode:       "unicode",
	BTOther:         "other",
}
