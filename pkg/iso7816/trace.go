package iso7816

// A Transaction is one C-APDU and the R-APDU that answered it. A Trace is the
// ordered list of transactions behind one logical request: a single READ
// BINARY may take three exchanges when the card answers 6CXX and then 61XX.
// IsSuccess judges the final outcome only.

// Transaction is a completed command-response pair.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess is false when the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is a chronological sequence of transactions.
type Trace []Transaction

// Last returns the final transaction, or nil for an empty trace.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess checks the final transaction of the trace.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}

// Response returns the final response, or nil for an empty trace.
func (t Trace) Response() *ResponseAPDU {
	if last := t.Last(); last != nil {
		return last.Response
	}
	return nil
}
