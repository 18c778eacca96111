package utils

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SixID is a 6-byte identifier rendered as 10 characters of Crockford Base32.
// In MongoDB it is stored as BinData with custom subtype 0x80.
type SixID [6]byte

const sixIDSubtype = 0x80

// NewSixID returns a new random SixID.
func NewSixID() SixID {
	var id SixID
	if _, err := rand.Read(id[:]); err != nil {
		// crypto/rand only fails if the OS entropy source is broken;
		// a zero ID will collide on the unique index and surface loudly.
		return SixID{}
	}
	return id
}

// IsZero reports whether the ID is the zero value.
func (u SixID) IsZero() bool {
	return u == SixID{}
}

const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var crockfordDecodeMap = func() map[byte]byte {
	m := make(map[byte]byte, 64)
	for i := 0; i < len(crockfordAlphabet); i++ {
		m[crockfordAlphabet[i]] = byte(i)
	}
	lower := strings.ToLower(crockfordAlphabet)
	for i := 10; i < len(lower); i++ {
		m[lower[i]] = byte(i)
	}
	// Commonly confused characters.
	m['o'] = m['0']
	m['O'] = m['0']
	m['i'] = m['1']
	m['l'] = m['1']
	m['I'] = m['1']
	m['L'] = m['1']
	return m
}()

// String returns the Crockford Base32 (uppercase) representation: 48 bits
// encode to exactly 10 characters.
func (u SixID) String() string {
	result := make([]byte, 0, 10)
	var bits uint
	var offset uint
	for i := 0; i < len(u); i++ {
		bits |= uint(u[i]) << offset
		offset += 8
		for offset >= 5 {
			result = append(result, crockfordAlphabet[bits&0x1F])
			bits >>= 5
			offset -= 5
		}
	}
	if offset > 0 {
		result = append(result, crockfordAlphabet[bits&0x1F])
	}
	return string(result)
}

// ParseSixID parses the Crockford Base32 representation produced by String.
// Hyphens and spaces are tolerated.
func ParseSixID(s string) (SixID, error) {
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	if len(s) != 10 {
		return SixID{}, errors.New("sixid: string length must be 10")
	}

	var id SixID
	var bits uint64
	var offset uint
	byteIndex := 0
	for i := 0; i < len(s); i++ {
		val, ok := crockfordDecodeMap[s[i]]
		if !ok {
			return SixID{}, errors.New("sixid: invalid character")
		}
		bits |= uint64(val) << offset
		offset += 5
		for offset >= 8 && byteIndex < len(id) {
			id[byteIndex] = byte(bits & 0xFF)
			byteIndex++
			bits >>= 8
			offset -= 8
		}
	}
	if byteIndex != len(id) {
		return SixID{}, errors.New("sixid: could not decode 6 bytes")
	}
	return id, nil
}

// MarshalBSONValue implements bson.ValueMarshaler so the official driver
// stores the ID as BinData subtype 0x80.
func (u SixID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(primitive.Binary{Subtype: sixIDSubtype, Data: u[:]})
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (u *SixID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bson.TypeNull {
		*u = SixID{}
		return nil
	}
	var bin primitive.Binary
	raw := bson.RawValue{Type: t, Value: data}
	if err := raw.Unmarshal(&bin); err != nil {
		return errors.New("sixid: expected BSON binary value")
	}
	if bin.Subtype != sixIDSubtype || len(bin.Data) != 6 {
		return errors.New("sixid: incorrect binary subtype or length")
	}
	copy(u[:], bin.Data)
	return nil
}

// MarshalJSON renders the ID as its Crockford Base32 string.
func (u SixID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON parses an ID from its Crockford Base32 string.
func (u *SixID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSixID(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
