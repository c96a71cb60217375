// Package type4 implements NDEF detection and reading on NFC Forum Type 4
// Tags, ISO-DEP cards and phones in host card emulation alike.
//
// The procedure is a fixed sequence of APDUs:
//
//	SELECT  D2760000850101   NDEF Tag Application
//	SELECT  E103             Capability Container
//	READ    0000 len 0F      CC body, gives the NDEF file identifier
//	SELECT  <NDEF FID>
//	READ    0000 len 02      NLEN
//	READ    0002 ...         NDEF message, in chunks of at most MLe bytes
//
// Session is the state machine as a plain value: Command yields the next APDU
// and Advance consumes its response, returning the next Session. Reader runs
// one detection cycle end to end over an iso7816.Transmitter.
package type4

// NDEFApplicationID is the AID of the NDEF Tag Application, mapping 2.0+.
var NDEFApplicationID = []byte{0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01}

const (
	// CCFileID is the file identifier of the Capability Container.
	CCFileID uint16 = 0xE103

	// DefaultMaxChunk bounds every payload READ BINARY when neither the
	// caller nor the CC asks for less.
	DefaultMaxChunk = 255

	ccReadLength = 0x0F
	nlenSize     = 2
)

// reservedFileIDs cannot name an NDEF file, nor can CCFileID.
var reservedFileIDs = map[uint16]bool{
	0x0000: true,
	0x3F00: true,
	0x3FFF: true,
	0xFFFF: true,
}

// NDEFFile is a fully read NDEF file. Payload is exactly NLEN bytes and is
// never shared with the session that produced it.
type NDEFFile struct {
	ID      uint16
	NLEN    int
	Payload []byte
}
