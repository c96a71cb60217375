// Package tlv maps TLV blocks onto Go structs through `tlv:"<hex tag>"`
// struct tags. BER-TLV data is decoded by moov-io/bertlv. NFC Forum
// simple-TLV data (a Capability Container's 04, 05 and 06 blocks) goes
// through DecodeSimple, which yields the same bertlv.TLV values, so both
// encodings share UnmarshalFromPackets.
//
// Supported field kinds:
//   - []byte: raw value.
//   - T or *T where *T implements Unmarshaler: custom decoding.
//   - nested struct or *struct: decoded recursively.
//   - []E: one element per occurrence of the tag.
//   - a field named Unknown (or tagged `tlv:",unknown"`) of type
//     []bertlv.TLV collects every block no other field claimed.
package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Unmarshaler allows custom types to implement their own TLV parsing logic.
type Unmarshaler interface {
	UnmarshalTLV(value []byte) error
}

var (
	unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
	tlvSliceType    = reflect.TypeOf([]bertlv.TLV{})
)

// Unmarshal decodes data and maps the resulting blocks into target, which
// must be a non-nil pointer to a struct.
func Unmarshal(data []byte, target interface{}) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}
	return UnmarshalFromPackets(packets, target)
}

// UnmarshalFromPackets maps pre-decoded blocks into target.
func UnmarshalFromPackets(packets []bertlv.TLV, target interface{}) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a non-nil pointer to a struct, got %T", target)
	}
	v = v.Elem()
	t := v.Type()

	consumed := make([]bool, len(packets))
	unknown := -1

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("tlv")
		if sf.Name == "Unknown" || tag == ",unknown" {
			unknown = i
			continue
		}
		if tag == "" {
			continue
		}

		want := strings.ToUpper(strings.Split(tag, ",")[0])
		for idx, packet := range packets {
			if strings.ToUpper(packet.Tag) != want {
				continue
			}
			if err := assign(packet, v.Field(i)); err != nil {
				return fmt.Errorf("tag %s: %w", want, err)
			}
			consumed[idx] = true
		}
	}

	if unknown >= 0 && v.Field(unknown).Type() == tlvSliceType {
		var leftovers []bertlv.TLV
		for idx, packet := range packets {
			if !consumed[idx] {
				leftovers = append(leftovers, packet)
			}
		}
		if len(leftovers) > 0 {
			v.Field(unknown).Set(reflect.ValueOf(leftovers))
		}
	}
	return nil
}

// assign stores one block into field, growing it when it is a repeated tag.
func assign(packet bertlv.TLV, field reflect.Value) error {
	if field.Kind() == reflect.Slice && !isByteSlice(field.Type()) {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := decodeValue(packet, elem); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
		return nil
	}
	return decodeValue(packet, field)
}

func decodeValue(packet bertlv.TLV, field reflect.Value) error {
	raw := rawValue(packet)

	switch {
	case field.Kind() == reflect.Ptr && field.Type().Implements(unmarshalerType):
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return field.Interface().(Unmarshaler).UnmarshalTLV(raw)

	case field.CanAddr() && field.Addr().Type().Implements(unmarshalerType):
		return field.Addr().Interface().(Unmarshaler).UnmarshalTLV(raw)

	case isByteSlice(field.Type()):
		field.SetBytes(append([]byte(nil), raw...))
		return nil

	case field.Kind() == reflect.Struct:
		return decodeNested(packet, field.Addr().Interface())

	case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return decodeNested(packet, field.Interface())
	}

	return fmt.Errorf("unsupported field kind %s", field.Kind())
}

func decodeNested(packet bertlv.TLV, target interface{}) error {
	if len(packet.TLVs) > 0 {
		return UnmarshalFromPackets(packet.TLVs, target)
	}
	return Unmarshal(packet.Value, target)
}

// rawValue returns the value bytes, re-encoding children of constructed tags.
func rawValue(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}

func isByteSlice(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}
