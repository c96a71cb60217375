package tlv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

func TestDescribeBlocks(t *testing.T) {
	blocks := []bertlv.TLV{
		{Tag: "05", Value: []byte{0xE1, 0x05, 0x01, 0x00, 0x00, 0xFF}},
		{Tag: "df01", Value: []byte{0x12, 0x34}},
	}

	expected := []string{
		"    - CC.Tag 05: E105010000FF",
		"    - CC.Tag DF01: 1234",
	}

	if diff := cmp.Diff(expected, DescribeBlocks("CC", blocks)); diff != "" {
		t.Errorf("Mismatch (-want +got):\n%s", diff)
	}

	if got := DescribeBlocks("CC", nil); len(got) != 0 {
		t.Errorf("no blocks should give no lines, got %q", got)
	}
}

func TestMakeSafeASCII(t *testing.T) {
	input := []byte{0x41, 0x42, 0x00, 0x1F, 0x7F, 0x43} // AB, null, US, DEL, C
	want := "AB...C"

	got := MakeSafeASCII(input)
	if got != want {
		t.Errorf("MakeSafeASCII() = %q, want %q", got, want)
	}
}
