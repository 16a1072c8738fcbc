package wire

// SessionTrackInfo holds the typed tracker payloads decoded out of an OK
// packet's state-change-info, per spec section 4.A.
type SessionTrackInfo struct {
	Database      string
	GTID          string
	Autocommit    *bool
	TrxEmpty      bool
	TrxExplicit   bool
	TrxImplicit   bool
	TrxReadOnly   bool
	TrxReadWrite  bool
	TrxCharacteristics string
}

// DecodeSessionTrack decodes the sequence of [type:1][lenenc data] items
// that make up an OK packet's SESSION_TRACK payload.
func DecodeSessionTrack(raw []byte) SessionTrackInfo {
	var info SessionTrackInfo
	off := 0
	for off < len(raw) {
		typ := raw[off]
		off++
		data, next, ok := ReadLenEncString(raw, off)
		if !ok {
			break
		}
		off = next
		switch typ {
		case SessionTrackSystemVariables:
			name, rest, ok := ReadLenEncString([]byte(data), 0)
			if !ok {
				continue
			}
			val, _, ok := ReadLenEncString([]byte(data), rest)
			if !ok {
				continue
			}
			if name == "autocommit" {
				b := val == "ON" || val == "1"
				info.Autocommit = &b
			}
		case SessionTrackSchema:
			db, _, ok := ReadLenEncString([]byte(data), 0)
			if ok {
				info.Database = db
			}
		case SessionTrackGTIDs:
			// first byte is the GTID spec encoding mode, then a lenenc string.
			if len(data) > 1 {
				g, _, ok := ReadLenEncString([]byte(data), 1)
				if ok {
					info.GTID = g
				}
			}
		case SessionTrackTransactionChar:
			info.TrxCharacteristics = data
		case SessionTrackTransactionState:
			decodeTrxStateFlags(data, &info)
		case SessionTrackStateChange:
			// single byte boolean, not currently surfaced to routers.
		}
	}
	return info
}

// decodeTrxStateFlags decodes the character-flag string MariaDB sends for
// SESSION_TRACK_TRANSACTION_STATE: each position is a fixed meaning, '_'
// meaning "not set".
func decodeTrxStateFlags(s string, info *SessionTrackInfo) {
	for _, c := range s {
		switch c {
		case 'T':
			info.TrxExplicit = true
		case 'I':
			info.TrxImplicit = true
		case 'r':
			info.TrxReadOnly = true
		case 'R':
			info.TrxReadOnly = true
		case 'w':
			info.TrxReadWrite = true
		case 'W':
			info.TrxReadWrite = true
		}
	}
	if !info.TrxExplicit && !info.TrxImplicit {
		info.TrxEmpty = true
	}
}
