// Package wire implements the MySQL/MariaDB client protocol framing,
// handshake, authentication and reply-reassembly rules of component A.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/lishubing/sqlgate/pkg/wireerr"
)

// MaxPayloadSize is the largest payload a single physical packet can
// carry before the continuation rule kicks in: a payload of exactly this
// size signals that the logical message continues in the next packet.
const MaxPayloadSize = (1 << 24) - 1

const headerLen = 4

// Frame is one physical MySQL packet: a 3-byte little-endian length, a
// 1-byte sequence id, and the payload.
type Frame struct {
	Sequence byte
	Payload  []byte
}

// ReadFrame reads exactly one physical packet from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	length := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16
	var payload []byte
	if length > 0 {
		payload = make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Sequence: hdr[3], Payload: payload}, nil
}

// WriteFrame writes one physical packet. Callers needing the continuation
// rule for payloads >= MaxPayloadSize must call WriteFrame repeatedly via
// WriteMessage below; WriteFrame itself never splits.
func WriteFrame(w io.Writer, seq byte, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		panic("wire: WriteFrame payload exceeds MaxPayloadSize; use WriteMessage")
	}
	var hdr [headerLen]byte
	hdr[0] = byte(len(payload))
	hdr[1] = byte(len(payload) >> 8)
	hdr[2] = byte(len(payload) >> 16)
	hdr[3] = seq
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadMessage reads one logical message: the concatenation of consecutive
// physical packets until one with length < MaxPayloadSize appears. startSeq
// is the sequence number the first frame is expected to carry; sequence
// numbers must increment by one with no gaps or WireFormat is returned.
func ReadMessage(r io.Reader, startSeq byte) ([]byte, byte, error) {
	var out []byte
	seq := startSeq
	for {
		f, err := ReadFrame(r)
		if err != nil {
			return nil, seq, err
		}
		if f.Sequence != seq {
			return nil, seq, wireerr.New(wireerr.WireFormat, 1927, "HY000", "wire",
				"packet sequence number out of order")
		}
		out = append(out, f.Payload...)
		seq++
		if len(f.Payload) < MaxPayloadSize {
			return out, seq, nil
		}
	}
}

// WriteMessage writes one logical message, splitting it into MaxPayloadSize
// chunks and appending a trailing zero-length packet when the message's
// length is an exact multiple of MaxPayloadSize (including zero), per the
// continuation rule. seq is the first sequence number used; the return
// value is the next free sequence number.
func WriteMessage(w io.Writer, seq byte, payload []byte) (byte, error) {
	i := 0
	for {
		end := i + MaxPayloadSize
		last := false
		if end >= len(payload) {
			end = len(payload)
			last = true
		}
		if err := WriteFrame(w, seq, payload[i:end]); err != nil {
			return seq, err
		}
		seq++
		chunkLen := end - i
		i = end
		if last {
			if chunkLen == MaxPayloadSize {
				// exact multiple: emit the trailing empty packet
				if err := WriteFrame(w, seq, nil); err != nil {
					return seq, err
				}
				seq++
			}
			return seq, nil
		}
	}
}

// --- length-encoded integer / string helpers (wire format primitives) ---

// ReadLenEncInt decodes a length-encoded integer starting at off. ok is
// false if the buffer is too short.
func ReadLenEncInt(buf []byte, off int) (uint64, int, bool) {
	if off >= len(buf) {
		return 0, off, false
	}
	first := buf[off]
	switch {
	case first < 0xfb:
		return uint64(first), off + 1, true
	case first == 0xfb:
		return 0, off + 1, true // NULL column value in a row; caller checks first byte separately
	case first == 0xfc:
		if off+3 > len(buf) {
			return 0, off, false
		}
		return uint64(binary.LittleEndian.Uint16(buf[off+1 : off+3])), off + 3, true
	case first == 0xfd:
		if off+4 > len(buf) {
			return 0, off, false
		}
		v := uint64(buf[off+1]) | uint64(buf[off+2])<<8 | uint64(buf[off+3])<<16
		return v, off + 4, true
	case first == 0xfe:
		if off+9 > len(buf) {
			return 0, off, false
		}
		return binary.LittleEndian.Uint64(buf[off+1 : off+9]), off + 9, true
	}
	return 0, off, false
}

// AppendLenEncInt appends the length-encoded form of v to buf.
func AppendLenEncInt(buf []byte, v uint64) []byte {
	switch {
	case v < 251:
		return append(buf, byte(v))
	case v < 1<<16:
		return append(buf, 0xfc, byte(v), byte(v>>8))
	case v < 1<<24:
		return append(buf, 0xfd, byte(v), byte(v>>8), byte(v>>16))
	default:
		b := make([]byte, 9)
		b[0] = 0xfe
		binary.LittleEndian.PutUint64(b[1:], v)
		return append(buf, b...)
	}
}

// ReadLenEncString decodes a length-encoded string starting at off.
func ReadLenEncString(buf []byte, off int) (string, int, bool) {
	n, off2, ok := ReadLenEncInt(buf, off)
	if !ok || off2+int(n) > len(buf) {
		return "", off, false
	}
	return string(buf[off2 : off2+int(n)]), off2 + int(n), true
}

// AppendLenEncString appends a length-encoded string to buf.
func AppendLenEncString(buf []byte, s string) []byte {
	buf = AppendLenEncInt(buf, uint64(len(s)))
	return append(buf, s...)
}

// ReadNullTerminatedString reads bytes up to (excluding) the next 0x00.
func ReadNullTerminatedString(buf []byte, off int) (string, int, bool) {
	for i := off; i < len(buf); i++ {
		if buf[i] == 0 {
			return string(buf[off:i]), i + 1, true
		}
	}
	return "", off, false
}
