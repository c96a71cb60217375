package type4

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gregLibert/nfc-type4/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// Capability Container layout, NFC Forum Type 4 Tag 2.0 / 3.0:
//
//	00-01  CCLEN
//	02     Mapping version (major in the high nibble)
//	03-04  MLe, max data a READ BINARY may return
//	05-06  MLc, max data an UPDATE BINARY may carry
//	07-    TLV blocks: 04 NDEF File Control (6 bytes)
//	                   05 Proprietary File Control
//	                   06 Extended NDEF File Control (8 bytes, 3.0)

const ccHeaderSize = 7

// FileControl is the content of an NDEF File Control TLV.
type FileControl struct {
	ID          uint16
	MaxSize     int
	ReadAccess  byte
	WriteAccess byte
}

// Readable reports whether the file can be read without any security.
func (f FileControl) Readable() bool {
	return f.ReadAccess == 0x00
}

// Writable reports whether the file can be updated without any security.
func (f FileControl) Writable() bool {
	return f.WriteAccess == 0x00
}

// CapabilityContainer is the parsed content of file E103.
type CapabilityContainer struct {
	Len            int
	MappingVersion byte
	MLe            int
	MLc            int
	NDEFFile       FileControl

	// Extra holds the TLV blocks other than the NDEF file control,
	// proprietary file controls typically.
	Extra []bertlv.TLV
}

// MajorVersion returns the major mapping version, 2 or 3 for current tags.
func (cc *CapabilityContainer) MajorVersion() int {
	return int(cc.MappingVersion >> 4)
}

// fileControlTLV is tag 04: FID(2) size(2) read(1) write(1).
type fileControlTLV struct {
	FileControl
}

func (f *fileControlTLV) UnmarshalTLV(v []byte) error {
	if len(v) != 6 {
		return fmt.Errorf("NDEF file control is %d bytes, want 6", len(v))
	}
	f.ID = binary.BigEndian.Uint16(v[0:2])
	f.MaxSize = int(binary.BigEndian.Uint16(v[2:4]))
	f.ReadAccess = v[4]
	f.WriteAccess = v[5]
	return nil
}

// extendedFileControlTLV is tag 06: FID(2) size(4) read(1) write(1).
type extendedFileControlTLV struct {
	FileControl
}

func (f *extendedFileControlTLV) UnmarshalTLV(v []byte) error {
	if len(v) != 8 {
		return fmt.Errorf("extended NDEF file control is %d bytes, want 8", len(v))
	}
	f.ID = binary.BigEndian.Uint16(v[0:2])
	f.MaxSize = int(binary.BigEndian.Uint32(v[2:6]))
	f.ReadAccess = v[6]
	f.WriteAccess = v[7]
	return nil
}

type ccBlocks struct {
	NDEFFile         *fileControlTLV         `tlv:"04"`
	ExtendedNDEFFile *extendedFileControlTLV `tlv:"06"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ParseCapabilityContainer parses the CC body (trailer already removed).
// Every error wraps ErrCapabilityContainerMalformed.
func ParseCapabilityContainer(data []byte) (*CapabilityContainer, error) {
	if len(data) < ccReadLength {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrCapabilityContainerMalformed, len(data), ccReadLength)
	}

	ccLen := int(binary.BigEndian.Uint16(data[0:2]))
	if ccLen < ccReadLength || ccLen > len(data) {
		return nil, fmt.Errorf("%w: CCLEN %d with %d bytes available", ErrCapabilityContainerMalformed, ccLen, len(data))
	}

	// A damaged block only matters if the file control did not come before it.
	packets, walkErr := tlv.DecodeSimple(data[ccHeaderSize:ccLen])

	var blocks ccBlocks
	if err := tlv.UnmarshalFromPackets(packets, &blocks); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapabilityContainerMalformed, err)
	}

	var fc FileControl
	switch {
	case blocks.NDEFFile != nil:
		fc = blocks.NDEFFile.FileControl
	case blocks.ExtendedNDEFFile != nil:
		fc = blocks.ExtendedNDEFFile.FileControl
	case walkErr != nil:
		return nil, fmt.Errorf("%w: %w", ErrCapabilityContainerMalformed, walkErr)
	default:
		return nil, fmt.Errorf("%w: no NDEF File Control TLV", ErrCapabilityContainerMalformed)
	}

	if fc.ID == CCFileID || reservedFileIDs[fc.ID] {
		return nil, fmt.Errorf("%w: NDEF file identifier %04X is reserved", ErrCapabilityContainerMalformed, fc.ID)
	}

	return &CapabilityContainer{
		Len:            ccLen,
		MappingVersion: data[2],
		MLe:            int(binary.BigEndian.Uint16(data[3:5])),
		MLc:            int(binary.BigEndian.Uint16(data[5:7])),
		NDEFFile:       fc,
		Extra:          blocks.Unknown,
	}, nil
}

// Describe renders the container for trace output.
func (cc *CapabilityContainer) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== CAPABILITY CONTAINER ===\n")
	fmt.Fprintf(&sb, "CCLEN:    %d\n", cc.Len)
	fmt.Fprintf(&sb, "Version:  %d.%d\n", cc.MappingVersion>>4, cc.MappingVersion&0x0F)
	fmt.Fprintf(&sb, "MLe:      %d\n", cc.MLe)
	fmt.Fprintf(&sb, "MLc:      %d\n", cc.MLc)
	fmt.Fprintf(&sb, "NDEF EF:  %04X (max %d bytes, read %02X, write %02X)",
		cc.NDEFFile.ID, cc.NDEFFile.MaxSize, cc.NDEFFile.ReadAccess, cc.NDEFFile.WriteAccess)

	for _, line := range tlv.DescribeBlocks("CC", cc.Extra) {
		sb.WriteString("\n")
		sb.WriteString(line)
	}
	return sb.String()
}
