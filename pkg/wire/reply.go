package wire

import (
	"encoding/binary"

	"github.com/lishubing/sqlgate/pkg/wireerr"
)

// ReplyState tracks where a backend reply is in the resultset packet
// sequence described in spec section 4.A.
type ReplyState int

const (
	ReplyStart ReplyState = iota
	ReplyReadingFields
	ReplyReadingRows
	ReplyDone
)

// OKPacket is the decoded form of an OK reply.
type OKPacket struct {
	AffectedRows   uint64
	LastInsertID   uint64
	StatusFlags    uint16
	Warnings       uint16
	Info           string
	SessionTrack   []byte // raw state-change-info, decoded by sessiontrack.go
}

// ErrPacket is the decoded form of an ERR reply.
type ErrPacket struct {
	Code    uint16
	State   string
	Message string
}

// DecodeOK decodes an OK packet payload (leading 0x00/0xfe byte already
// identified by the caller). hasSessionTrack/hasDeprecateEOF come from the
// negotiated capability set.
func DecodeOK(payload []byte, hasSessionTrack, hasDeprecateEOF bool) (OKPacket, bool) {
	if len(payload) == 0 {
		return OKPacket{}, false
	}
	off := 1
	var ok OKPacket
	var good bool
	ok.AffectedRows, off, good = ReadLenEncInt(payload, off)
	if !good {
		return OKPacket{}, false
	}
	ok.LastInsertID, off, good = ReadLenEncInt(payload, off)
	if !good {
		return OKPacket{}, false
	}
	if off+4 > len(payload) {
		return OKPacket{}, false
	}
	ok.StatusFlags = binary.LittleEndian.Uint16(payload[off : off+2])
	ok.Warnings = binary.LittleEndian.Uint16(payload[off+2 : off+4])
	off += 4
	if hasSessionTrack {
		if off < len(payload) {
			info, off2, g := ReadLenEncString(payload, off)
			if g {
				ok.Info = info
				off = off2
			}
		}
		if ok.StatusFlags&ServerSessionStateChanged != 0 && off < len(payload) {
			tracked, _, g := ReadLenEncString(payload, off)
			if g {
				ok.SessionTrack = []byte(tracked)
			}
		}
	} else if off < len(payload) {
		ok.Info = string(payload[off:])
	}
	return ok, true
}

// EncodeOK builds an OK packet without session-track data (used for
// synthesized responses such as causal-read probe suppression).
func EncodeOK(affectedRows, lastInsertID uint64, status, warnings uint16) []byte {
	buf := make([]byte, 0, 16)
	buf = append(buf, RespOK)
	buf = AppendLenEncInt(buf, affectedRows)
	buf = AppendLenEncInt(buf, lastInsertID)
	var tail [4]byte
	binary.LittleEndian.PutUint16(tail[0:2], status)
	binary.LittleEndian.PutUint16(tail[2:4], warnings)
	return append(buf, tail[:]...)
}

// DecodeErr decodes an ERR packet payload.
func DecodeErr(payload []byte) (ErrPacket, bool) {
	if len(payload) < 3 || payload[0] != RespErr {
		return ErrPacket{}, false
	}
	code := binary.LittleEndian.Uint16(payload[1:3])
	off := 3
	state := ""
	if off < len(payload) && payload[off] == '#' {
		if off+6 > len(payload) {
			return ErrPacket{}, false
		}
		state = string(payload[off+1 : off+6])
		off += 6
	}
	return ErrPacket{Code: code, State: state, Message: string(payload[off:])}, true
}

// EncodeErr builds an ERR packet, per spec section 6:
// ff <code:2> '#' <state:5> <message>.
func EncodeErr(code uint16, state, message string) []byte {
	buf := make([]byte, 0, 9+len(message))
	buf = append(buf, RespErr)
	var c [2]byte
	binary.LittleEndian.PutUint16(c[:], code)
	buf = append(buf, c[:]...)
	buf = append(buf, '#')
	buf = append(buf, state...)
	buf = append(buf, message...)
	return buf
}

// EncodeErrFromWire turns a wireerr.Error into the ERR packet it describes.
func EncodeErrFromWire(e *wireerr.Error) []byte {
	return EncodeErr(e.Code, e.State, e.Error())
}

// EncodeEOF builds a pre-DEPRECATE_EOF EOF packet: fe <warnings:2> <status:2>.
func EncodeEOF(warnings, status uint16) []byte {
	buf := make([]byte, 5)
	buf[0] = RespEOF
	binary.LittleEndian.PutUint16(buf[1:3], warnings)
	binary.LittleEndian.PutUint16(buf[3:5], status)
	return buf
}

// Reply incrementally reassembles a backend's response to one command,
// per spec section 4.A. Callers feed it each logical message in arrival
// order; it tracks enough state to know when the reply is complete and to
// extract the fields routers need (affected rows, last insert id, session
// track info) without buffering the whole resultset.
type Reply struct {
	Command         byte
	State           ReplyState
	IsComplete      bool
	LastError       *ErrPacket
	AffectedRows    uint64
	LastInsertID    uint64
	ColumnCount     uint64
	columnsSeen     uint64
	hasSessionTrack bool
	hasDeprecateEOF bool
	SessionTrack    SessionTrackInfo
}

// NewReply starts tracking the reply to a command issued with the given
// negotiated capabilities.
func NewReply(command byte, hasSessionTrack, hasDeprecateEOF bool) *Reply {
	return &Reply{Command: command, hasSessionTrack: hasSessionTrack, hasDeprecateEOF: hasDeprecateEOF}
}

// Feed processes one logical message of the reply and reports whether the
// reply is now complete.
func (r *Reply) Feed(msg []byte) bool {
	if len(msg) == 0 {
		return r.feedMidStream(msg)
	}
	switch r.State {
	case ReplyStart:
		return r.feedFirst(msg)
	default:
		return r.feedMidStream(msg)
	}
}

func (r *Reply) feedFirst(msg []byte) bool {
	switch msg[0] {
	case RespOK:
		ok, _ := DecodeOK(msg, r.hasSessionTrack, r.hasDeprecateEOF)
		r.AffectedRows = ok.AffectedRows
		r.LastInsertID = ok.LastInsertID
		if len(ok.SessionTrack) > 0 {
			r.SessionTrack = DecodeSessionTrack(ok.SessionTrack)
		}
		if ok.StatusFlags&ServerMoreResultsExists != 0 {
			r.State = ReplyStart
			return false
		}
		r.State = ReplyDone
		r.IsComplete = true
		return true
	case RespErr:
		e, _ := DecodeErr(msg)
		r.LastError = &e
		r.State = ReplyDone
		r.IsComplete = true
		return true
	case RespLocalInFile:
		r.State = ReplyDone
		r.IsComplete = true
		return true
	default:
		// length-encoded column count: a resultset is starting.
		n, _, ok := ReadLenEncInt(msg, 0)
		if !ok {
			r.State = ReplyDone
			r.IsComplete = true
			return true
		}
		r.ColumnCount = n
		r.columnsSeen = 0
		r.State = ReplyReadingFields
		return false
	}
}

func (r *Reply) feedMidStream(msg []byte) bool {
	switch r.State {
	case ReplyReadingFields:
		r.columnsSeen++
		if r.columnsSeen >= r.ColumnCount {
			if r.hasDeprecateEOF {
				r.State = ReplyReadingRows
			} else {
				r.State = ReplyReadingRows // next message is the EOF-or-rows boundary
			}
		}
		return false
	case ReplyReadingRows:
		if len(msg) == 0 {
			return false
		}
		if msg[0] == RespEOF && len(msg) < 9 {
			r.State = ReplyDone
			r.IsComplete = true
			return true
		}
		if msg[0] == RespOK && r.hasDeprecateEOF {
			ok, _ := DecodeOK(msg, r.hasSessionTrack, r.hasDeprecateEOF)
			if ok.StatusFlags&ServerMoreResultsExists == 0 {
				r.State = ReplyDone
				r.IsComplete = true
				return true
			}
			return false
		}
		if msg[0] == RespErr {
			e, _ := DecodeErr(msg)
			r.LastError = &e
			r.State = ReplyDone
			r.IsComplete = true
			return true
		}
		return false
	default:
		return true
	}
}

// RewriteSequenceNumbers renumbers the sequence bytes of a sequence of
// already-framed physical packets so the first one carries startSeq, used
// by causal reads to discard the MASTER_GTID_WAIT probe's reply and make
// the remainder look like a fresh reply starting at sequence 1.
func RewriteSequenceNumbers(frames [][]byte, startSeq byte) {
	seq := startSeq
	for _, f := range frames {
		if len(f) >= 4 {
			f[3] = seq
		}
		seq++
	}
}
