/*
Package iso7816 implements the ISO/IEC 7816-4 layer used to talk to an
NFC Forum Type 4 Tag: command and response APDUs, status words, the SELECT
and READ BINARY builders and a Client that runs commands over any
synchronous exchange primitive.

# Fundamentals

The exchange is strictly half-duplex:
 1. The reader sends a Command APDU (header plus optional body).
 2. The tag answers with a Response APDU (optional data plus SW1 SW2).

The next command is only built once the previous response has been decoded
and validated.

# Status Words

Every response ends with a 2-byte Status Word.
  - 0x9000: success. It is the only trailer IsSuccess accepts.
  - 0x61XX: data still available, resolved by Client with GET RESPONSE.
  - 0x6CXX: wrong Le, resolved by Client by re-sending the command.
  - Other: reported through Classify as TagNotReady, FileNotFound,
    SecurityBlocked or Unknown.

# Usage Example

	client := iso7816.NewClient(card)

	cmd, _ := iso7816.EncodeSelect(iso7816.SelectByName, aid)
	trace, err := client.Send(cmd)
	if err != nil {
	    return err
	}
	if !trace.IsSuccess() {
	    fmt.Println(trace.Describe())
	}
*/
package iso7816
