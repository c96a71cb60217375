package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/nfc-type4/pkg/tlv"
)

// Describe renders the trace as a numbered, line-oriented report. Each
// exchange shows the command bytes, the trailer verdict and the payload dump.
// The output ends without a trailing newline.
func (t Trace) Describe() string {
	var sb strings.Builder

	sb.WriteString("=== APDU TRACE REPORT ===")

	for i, tx := range t {
		sb.WriteString("\n")
		describeTransaction(&sb, i+1, tx)
	}

	outcome := "[!!]"
	if t.IsSuccess() {
		outcome = "[OK]"
	}
	sb.WriteString(fmt.Sprintf("\n[=] FINAL OUTCOME: %s %d exchange(s)", outcome, len(t)))

	return sb.String()
}

func describeTransaction(sb *strings.Builder, n int, tx Transaction) {
	cmd := tx.Command
	raw, err := cmd.Bytes()
	if err != nil {
		sb.WriteString(fmt.Sprintf("[%d] Command: %s (unencodable: %v)", n, cmd.Instruction.Raw, err))
		return
	}
	sb.WriteString(fmt.Sprintf("[%d] Command: %s | %X", n, cmd.Instruction.Raw, raw))

	switch cmd.Instruction.Raw {
	case INS_SELECT:
		sb.WriteString(fmt.Sprintf("\n    + Method:  %02X -> %s", cmd.P1, SelectionMethod(cmd.P1)))
		if len(cmd.Data) > 0 {
			sb.WriteString(fmt.Sprintf("\n    + Target:  %X (%q)", cmd.Data, tlv.MakeSafeASCII(cmd.Data)))
		}
	case INS_READ_BINARY:
		sb.WriteString(fmt.Sprintf("\n    + Range:   offset %d, length %d", ReadBinaryOffset(cmd), cmd.Ne))
	}

	resp := tx.Response
	if resp == nil {
		sb.WriteString("\n    + Result:  no response")
		return
	}

	verdict, desc := "[!!]", resp.Status.Verbose()
	switch {
	case resp.Status.IsSuccess():
		verdict, desc = "[OK]", resp.Status.String()
	case resp.Status.SW1() == 0x61:
		verdict = "[..]"
	}
	sb.WriteString(fmt.Sprintf("\n    + Result:  [%02X %02X] %s %s", resp.Status.SW1(), resp.Status.SW2(), verdict, desc))

	if len(resp.Data) > 0 {
		sb.WriteString(fmt.Sprintf("\n    + Payload: %d bytes", len(resp.Data)))
		sb.WriteString(fmt.Sprintf("\n      Dump:    %X", resp.Data))
	}
}
