package vector

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/stretchr/testify/assert"
)

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func TestFgbValue(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		colType  flattypes.ColumnType
		want     string
		wantRead int
	}{
		{name: "bool true", data: []byte{1}, colType: flattypes.ColumnTypeBool, want: "true", wantRead: 1},
		{name: "bool false", data: []byte{0}, colType: flattypes.ColumnTypeBool, want: "false", wantRead: 1},
		{name: "byte negative", data: []byte{0xFF}, colType: flattypes.ColumnTypeByte, want: "-1", wantRead: 1},
		{name: "ubyte", data: []byte{200}, colType: flattypes.ColumnTypeUByte, want: "200", wantRead: 1},
		{name: "short negative", data: le16(0xFFF6), colType: flattypes.ColumnTypeShort, want: "-10", wantRead: 2},
		{name: "ushort", data: le16(65000), colType: flattypes.ColumnTypeUShort, want: "65000", wantRead: 2},
		{name: "int", data: le32(uint32(0xFFFFFFD6)), colType: flattypes.ColumnTypeInt, want: "-42", wantRead: 4},
		{name: "uint", data: le32(3000000000), colType: flattypes.ColumnTypeUInt, want: "3000000000", wantRead: 4},
		{name: "long", data: le64(uint64(9000000000)), colType: flattypes.ColumnTypeLong, want: "9000000000", wantRead: 8},
		{name: "float", data: le32(math.Float32bits(2.5)), colType: flattypes.ColumnTypeFloat, want: "2.5", wantRead: 4},
		{name: "double", data: le64(math.Float64bits(45.125)), colType: flattypes.ColumnTypeDouble, want: "45.125", wantRead: 8},
		{
			name:     "string",
			data:     append(le32(7), []byte("asphalt")...),
			colType:  flattypes.ColumnTypeString,
			want:     "asphalt",
			wantRead: 11,
		},
		{
			name:     "string consumes only its length",
			data:     append(append(le32(4), []byte("dirt")...), 0xAA, 0xBB),
			colType:  flattypes.ColumnTypeString,
			want:     "dirt",
			wantRead: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, read := fgbValue(tt.data, tt.colType)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantRead, read)
		})
	}
}

func TestFgbValueTruncated(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		colType flattypes.ColumnType
	}{
		{name: "empty bool", data: nil, colType: flattypes.ColumnTypeBool},
		{name: "short int", data: []byte{1, 2}, colType: flattypes.ColumnTypeInt},
		{name: "string header only", data: []byte{7, 0}, colType: flattypes.ColumnTypeString},
		{name: "string body cut off", data: append(le32(10), []byte("abc")...), colType: flattypes.ColumnTypeString},
		{name: "unknown column type", data: []byte{1, 2, 3, 4}, colType: flattypes.ColumnType(99)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, read := fgbValue(tt.data, tt.colType)
			assert.Zero(t, read)
		})
	}
}
