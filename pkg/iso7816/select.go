package iso7816

import (
	"fmt"
)

// SELECT (INS A4), ISO/IEC 7816-4 section 11.2.2.
//
// P1 says how the target is named (file identifier, DF name, path).
// P2 bits 4-3 say what the card should return, bits 2-1 which occurrence.

// SelectionMethod is the P1 of SELECT.
type SelectionMethod byte

const (
	SelectByFileID SelectionMethod = 0x00
	SelectChildDF  SelectionMethod = 0x01
	SelectByDFName SelectionMethod = 0x04 // AID
)

func (s SelectionMethod) String() string {
	switch s {
	case SelectByFileID:
		return "Select by File ID"
	case SelectChildDF:
		return "Select Child DF"
	case SelectByDFName:
		return "Select by DF Name (AID)"
	default:
		return fmt.Sprintf("Unknown Method (0x%02X)", byte(s))
	}
}

// FileOccurrence is P2 bits 2-1.
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = 0b0000_00_00
	NextOccurrence        FileOccurrence = 0b0000_00_10
)

func (f FileOccurrence) String() string {
	switch f {
	case FirstOrOnlyOccurrence:
		return "First/Only"
	case NextOccurrence:
		return "Next"
	default:
		return fmt.Sprintf("Occurrence(%d)", byte(f))
	}
}

// SelectionControl is P2 bits 4-3.
type SelectionControl byte

const (
	ReturnFCI    SelectionControl = 0b0000_00_00
	ReturnFCP    SelectionControl = 0b0000_01_00
	ReturnNoData SelectionControl = 0b0000_11_00
)

func (s SelectionControl) String() string {
	switch s {
	case ReturnFCI:
		return "Return FCI"
	case ReturnFCP:
		return "Return FCP"
	case ReturnNoData:
		return "No Response Data"
	default:
		return fmt.Sprintf("Control(0x%02X)", byte(s))
	}
}

// NewSelectCommand creates a generic SELECT command.
func NewSelectCommand(
	cla Class,
	method SelectionMethod,
	occurrence FileOccurrence,
	ctrl SelectionControl,
	data []byte,
) *CommandAPDU {
	p2 := byte(ctrl) | byte(occurrence)

	// A SELECT carrying data is sent without Le. Cards that have something
	// to return answer 61XX and the Client collects it.
	ne := 0
	if len(data) == 0 && ctrl != ReturnNoData {
		ne = MaxShortLe
	}

	return NewCommandAPDU(cla, mustInstruction(INS_SELECT), byte(method), p2, data, ne)
}

// SelectByAID selects an application by name: CLA A4 04 00 Lc AID.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, FirstOrOnlyOccurrence, ReturnFCI, aid)
}

// SelectFileID selects an elementary file by identifier, first occurrence,
// no response data: CLA A4 00 0C 02 FID.
func SelectFileID(cla Class, fid uint16) *CommandAPDU {
	return NewSelectCommand(cla, SelectByFileID, FirstOrOnlyOccurrence, ReturnNoData,
		[]byte{byte(fid >> 8), byte(fid)})
}

// SelectKind names the two SELECT forms used by the Type 4 Tag operation set.
type SelectKind int

const (
	SelectByName SelectKind = iota
	SelectFirstOccurrence
)

func (k SelectKind) String() string {
	switch k {
	case SelectByName:
		return "BY_NAME"
	case SelectFirstOccurrence:
		return "FIRST_OCCURRENCE"
	default:
		return fmt.Sprintf("SelectKind(%d)", int(k))
	}
}

// EncodeSelect builds the CLA 00 SELECT of the given kind. The identifier is
// an AID for SelectByName and a 2-byte file identifier for
// SelectFirstOccurrence.
func EncodeSelect(kind SelectKind, identifier []byte) (*CommandAPDU, error) {
	if len(identifier) == 0 || len(identifier) > MaxShortLc {
		return nil, fmt.Errorf("%w: identifier of %d bytes", ErrInvalidLength, len(identifier))
	}

	switch kind {
	case SelectByName:
		return SelectByAID(InterindustryClass, identifier), nil
	case SelectFirstOccurrence:
		if len(identifier) != 2 {
			return nil, fmt.Errorf("%w: file identifier must be 2 bytes, got %d", ErrInvalidLength, len(identifier))
		}
		return SelectFileID(InterindustryClass, uint16(identifier[0])<<8|uint16(identifier[1])), nil
	default:
		return nil, fmt.Errorf("unknown select kind %d", int(kind))
	}
}
