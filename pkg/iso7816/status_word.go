package iso7816

import (
	"fmt"

	"github.com/gregLibert/nfc-type4/pkg/bits"
)

// Status word ranges with a variable second byte (ISO/IEC 7816-4 section 5.6):
//
//	61XX  process completed, XX bytes still available (GET RESPONSE).
//	6CXX  wrong Le, XX is the exact length.
//	62XX, 64XX with XX in 02..80: triggering by the card.
//	63CX  counter X (typically remaining retries).

// StatusWord is the SW1-SW2 trailer of a response APDU.
type StatusWord uint16

// NewStatusWord builds a StatusWord from its two bytes.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

// SW1 returns the high byte.
func (sw StatusWord) SW1() byte {
	return byte(sw >> 8)
}

// SW2 returns the low byte.
func (sw StatusWord) SW2() byte {
	return byte(sw)
}

// IsSuccess reports whether the trailer is exactly 9000. A 61XX trailer is
// an intermediate protocol step and is resolved by the Client before any
// caller sees it.
func (sw StatusWord) IsSuccess() bool {
	return sw == SW_NO_ERROR
}

// IsTriggeringByCard checks for 62XX/64XX with XX in 02..80.
func (sw StatusWord) IsTriggeringByCard() bool {
	sw2 := sw.SW2()
	if sw2 < 0x02 || sw2 > 0x80 {
		return false
	}
	return sw.SW1() == 0x62 || sw.SW1() == 0x64
}

// IsCounter checks for 63CX.
func (sw StatusWord) IsCounter() bool {
	return sw.SW1() == 0x63 && bits.GetRange(sw.SW2(), 8, 5) == 0x0C
}

// IsWarning covers 62XX and 63XX.
func (sw StatusWord) IsWarning() bool {
	return sw.SW1() == 0x62 || sw.SW1() == 0x63
}

// IsError covers execution and checking errors, 64XX to 6FXX.
func (sw StatusWord) IsError() bool {
	return sw.SW1() >= 0x64 && sw.SW1() <= 0x6F
}

// Classification groups trailers by what they mean for a Type 4 read.
type Classification int

const (
	Success Classification = iota
	// TagNotReady: the tag is busy, deactivated or its memory is in flux.
	// Presenting it again may work.
	TagNotReady
	// FileNotFound: the application or file is not on this tag.
	FileNotFound
	// SecurityBlocked: access conditions are not met.
	SecurityBlocked
	// Unknown covers every other trailer.
	Unknown
)

func (c Classification) String() string {
	switch c {
	case Success:
		return "Success"
	case TagNotReady:
		return "TagNotReady"
	case FileNotFound:
		return "FileNotFound"
	case SecurityBlocked:
		return "SecurityBlocked"
	default:
		return "Unknown"
	}
}

// Classify maps the trailer to a Classification.
func (sw StatusWord) Classify() Classification {
	switch {
	case sw == SW_NO_ERROR:
		return Success
	case sw == SW_ERR_FILE_NOT_FOUND, sw == SW_ERR_RECORD_NOT_FOUND, sw == SW_ERR_REF_DATA_NOT_FOUND:
		return FileNotFound
	case sw.SW1() == 0x66,
		sw >= SW_ERR_SECURITY_STATUS_NOT_SAT && sw <= SW_ERR_COND_OF_USE_NOT_SAT:
		return SecurityBlocked
	case sw.SW1() == 0x64, sw.SW1() == 0x65,
		sw == SW_WARN_FILE_DEACTIVATED, sw == SW_WARN_TERMINATION_STATE, sw == SW_ERR_UNKNOWN:
		return TagNotReady
	default:
		return Unknown
	}
}

// String returns the constant name of well-known trailers and the hex
// value otherwise.
func (sw StatusWord) String() string {
	if name, ok := statusNames[sw]; ok {
		return name
	}
	return fmt.Sprintf("StatusWord(%04X)", uint16(sw))
}

// Verbose returns a human-readable description, resolving the dynamic
// ranges before the static table.
func (sw StatusWord) Verbose() string {
	sw1, sw2 := sw.SW1(), sw.SW2()

	switch {
	case sw.IsTriggeringByCard():
		action := "Warning (Triggering)"
		if sw1 == 0x64 {
			action = "Error/Abort (Triggering)"
		}
		return fmt.Sprintf("%s: Card expects query of %d bytes", action, sw2)
	case sw.IsCounter():
		return fmt.Sprintf("Warning: State changed, counter = %d", bits.GetRange(sw2, 4, 1))
	case sw1 == 0x61:
		return fmt.Sprintf("Process completed, %d bytes available", sw2)
	case sw1 == 0x6C:
		return fmt.Sprintf("Wrong length, correct Le is %d", sw2)
	}

	if name, ok := statusNames[sw]; ok {
		return fmt.Sprintf("[%04X] %s", uint16(sw), name)
	}
	return fmt.Sprintf("[%04X] %s", uint16(sw), sw.genericCategoryDescription())
}

func (sw StatusWord) genericCategoryDescription() string {
	switch sw.SW1() {
	case 0x62:
		return "Warning: NV memory unchanged"
	case 0x63:
		return "Warning: NV memory changed"
	case 0x64:
		return "Execution Error: NV memory unchanged"
	case 0x65:
		return "Execution Error: NV memory changed"
	case 0x66:
		return "Execution Error: Security issue"
	case 0x68:
		return "Checking Error: Function not supported"
	case 0x69:
		return "Checking Error: Command not allowed"
	case 0x6A:
		return "Checking Error: Wrong parameters"
	default:
		return "Unknown Status"
	}
}

// Status words a Type 4 tag or a PC/SC reader is expected to return.
const (
	SW_NO_ERROR StatusWord = 0x9000

	SW_WARN_NO_INFO           StatusWord = 0x6200
	SW_WARN_DATA_CORRUPTED    StatusWord = 0x6281
	SW_WARN_EOF_REACHED       StatusWord = 0x6282
	SW_WARN_FILE_DEACTIVATED  StatusWord = 0x6283
	SW_WARN_TERMINATION_STATE StatusWord = 0x6285

	SW_ERR_EXEC_NO_INFO   StatusWord = 0x6400
	SW_ERR_MEMORY_FAILURE StatusWord = 0x6581
	SW_ERR_SECURITY_ISSUE StatusWord = 0x6600

	SW_ERR_WRONG_LENGTH StatusWord = 0x6700

	SW_ERR_CMD_INCOMPATIBLE_FILE   StatusWord = 0x6981
	SW_ERR_SECURITY_STATUS_NOT_SAT StatusWord = 0x6982
	SW_ERR_AUTH_METHOD_BLOCKED     StatusWord = 0x6983
	SW_ERR_REF_DATA_NOT_USABLE     StatusWord = 0x6984
	SW_ERR_COND_OF_USE_NOT_SAT     StatusWord = 0x6985
	SW_ERR_CMD_NOT_ALLOWED_NO_EF   StatusWord = 0x6986

	SW_ERR_INCORRECT_PARAMS_DATA StatusWord = 0x6A80
	SW_ERR_FUNC_NOT_SUPPORTED    StatusWord = 0x6A81
	SW_ERR_FILE_NOT_FOUND        StatusWord = 0x6A82
	SW_ERR_RECORD_NOT_FOUND      StatusWord = 0x6A83
	SW_ERR_INCORRECT_PARAMS_P1P2 StatusWord = 0x6A86
	SW_ERR_REF_DATA_NOT_FOUND    StatusWord = 0x6A88

	SW_ERR_WRONG_P1P2        StatusWord = 0x6B00
	SW_ERR_INS_INVALID       StatusWord = 0x6D00
	SW_ERR_CLA_NOT_SUPPORTED StatusWord = 0x6E00
	SW_ERR_UNKNOWN           StatusWord = 0x6F00
)

var statusNames = map[StatusWord]string{
	SW_NO_ERROR:                    "SW_NO_ERROR",
	SW_WARN_NO_INFO:                "SW_WARN_NO_INFO",
	SW_WARN_DATA_CORRUPTED:         "SW_WARN_DATA_CORRUPTED",
	SW_WARN_EOF_REACHED:            "SW_WARN_EOF_REACHED",
	SW_WARN_FILE_DEACTIVATED:       "SW_WARN_FILE_DEACTIVATED",
	SW_WARN_TERMINATION_STATE:      "SW_WARN_TERMINATION_STATE",
	SW_ERR_EXEC_NO_INFO:            "SW_ERR_EXEC_NO_INFO",
	SW_ERR_MEMORY_FAILURE:          "SW_ERR_MEMORY_FAILURE",
	SW_ERR_SECURITY_ISSUE:          "SW_ERR_SECURITY_ISSUE",
	SW_ERR_WRONG_LENGTH:            "SW_ERR_WRONG_LENGTH",
	SW_ERR_CMD_INCOMPATIBLE_FILE:   "SW_ERR_CMD_INCOMPATIBLE_FILE",
	SW_ERR_SECURITY_STATUS_NOT_SAT: "SW_ERR_SECURITY_STATUS_NOT_SAT",
	SW_ERR_AUTH_METHOD_BLOCKED:     "SW_ERR_AUTH_METHOD_BLOCKED",
	SW_ERR_REF_DATA_NOT_USABLE:     "SW_ERR_REF_DATA_NOT_USABLE",
	SW_ERR_COND_OF_USE_NOT_SAT:     "SW_ERR_COND_OF_USE_NOT_SAT",
	SW_ERR_CMD_NOT_ALLOWED_NO_EF:   "SW_ERR_CMD_NOT_ALLOWED_NO_EF",
	SW_ERR_INCORRECT_PARAMS_DATA:   "SW_ERR_INCORRECT_PARAMS_DATA",
	SW_ERR_FUNC_NOT_SUPPORTED:      "SW_ERR_FUNC_NOT_SUPPORTED",
	SW_ERR_FILE_NOT_FOUND:          "SW_ERR_FILE_NOT_FOUND",
	SW_ERR_RECORD_NOT_FOUND:        "SW_ERR_RECORD_NOT_FOUND",
	SW_ERR_INCORRECT_PARAMS_P1P2:   "SW_ERR_INCORRECT_PARAMS_P1P2",
	SW_ERR_REF_DATA_NOT_FOUND:      "SW_ERR_REF_DATA_NOT_FOUND",
	SW_ERR_WRONG_P1P2:              "SW_ERR_WRONG_P1P2",
	SW_ERR_INS_INVALID:             "SW_ERR_INS_INVALID",
	SW_ERR_CLA_NOT_SUPPORTED:       "SW_ERR_CLA_NOT_SUPPORTED",
	SW_ERR_UNKNOWN:                 "SW_ERR_UNKNOWN",
}
