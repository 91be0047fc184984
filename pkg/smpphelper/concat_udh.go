package smpphelper

import (
	"sync/atomic"

	"github.com/linxGnu/gosmpp/pdu"
)

// ConcatUDH returns the user data header that marks part of total parts of
// the concatenated message ref (8-bit reference, 3GPP TS 23.040 9.2.3.24.1).
// Parts are numbered from 1.
func ConcatUDH(ref, total, part uint8) pdu.UDH {
	return pdu.UDH{pdu.NewIEConcatMessage(total, part, ref)}
}

// RefCounter hands out concatenation references. Every part of one message
// shares a reference; consecutive messages to a handset get different ones.
type RefCounter struct {
	n atomic.Uint32
}

// Next returns the next reference, wrapping after 255.
func (r *RefCounter) Next() uint8 {
	return uint8(r.n.Add(1))
}
