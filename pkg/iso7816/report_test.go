package iso7816

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/nfc-type4/pkg/tlv"
)

func TestTrace_Describe(t *testing.T) {
	selectApp, _ := EncodeSelect(SelectByName, tlv.Hex("D2 76 00 00 85 01 01"))
	readCC, _ := EncodeReadBinary(0, 15)
	getResp := NewCommandAPDU(InterindustryClass, mustInstruction(INS_GET_RESPONSE), 0, 0, nil, 2)
	selectNDEF := SelectFileID(InterindustryClass, 0xE104)

	trace := Trace{
		{Command: selectApp, Response: &ResponseAPDU{Status: SW_NO_ERROR}},
		{Command: readCC, Response: &ResponseAPDU{Status: NewStatusWord(0x61, 0x02)}},
		{Command: getResp, Response: &ResponseAPDU{Data: tlv.Hex("00 0F"), Status: SW_NO_ERROR}},
		{Command: selectNDEF, Response: &ResponseAPDU{Status: SW_ERR_FILE_NOT_FOUND}},
	}

	expected := []string{
		"=== APDU TRACE REPORT ===",
		"[1] Command: SELECT | 00A4040007D2760000850101",
		"    + Method:  04 -> Select by DF Name (AID)",
		`    + Target:  D2760000850101 (".v.....")`,
		"    + Result:  [90 00] [OK] SW_NO_ERROR",
		"[2] Command: READ BINARY | 00B000000F",
		"    + Range:   offset 0, length 15",
		"    + Result:  [61 02] [..] Process completed, 2 bytes available",
		"[3] Command: GET RESPONSE | 00C0000002",
		"    + Result:  [90 00] [OK] SW_NO_ERROR",
		"    + Payload: 2 bytes",
		"      Dump:    000F",
		"[4] Command: SELECT | 00A4000C02E104",
		"    + Method:  00 -> Select by File ID",
		`    + Target:  E104 ("..")`,
		"    + Result:  [6A 82] [!!] [6A82] SW_ERR_FILE_NOT_FOUND",
		"[=] FINAL OUTCOME: [!!] 4 exchange(s)",
	}

	actual := strings.Split(trace.Describe(), "\n")
	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
}

func TestTrace_DescribeEmpty(t *testing.T) {
	expected := []string{
		"=== APDU TRACE REPORT ===",
		"[=] FINAL OUTCOME: [!!] 0 exchange(s)",
	}
	actual := strings.Split(Trace{}.Describe(), "\n")
	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
}
