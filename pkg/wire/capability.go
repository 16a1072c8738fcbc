package wire

// Client/server capability flags, per the MySQL/MariaDB client protocol.
const (
	ClientLongPassword               uint32 = 1 << 0
	ClientFoundRows                  uint32 = 1 << 1
	ClientLongFlag                   uint32 = 1 << 2
	ClientConnectWithDB              uint32 = 1 << 3
	ClientNoSchema                   uint32 = 1 << 4
	ClientCompress                   uint32 = 1 << 5
	ClientODBC                       uint32 = 1 << 6
	ClientLocalFiles                 uint32 = 1 << 7
	ClientIgnoreSpace                uint32 = 1 << 8
	ClientProtocol41                 uint32 = 1 << 9
	ClientInteractive                uint32 = 1 << 10
	ClientSSL                        uint32 = 1 << 11
	ClientIgnoreSigpipe              uint32 = 1 << 12
	ClientTransactions                uint32 = 1 << 13
	ClientReserved                   uint32 = 1 << 14
	ClientSecureConnection           uint32 = 1 << 15
	ClientMultiStatements            uint32 = 1 << 16
	ClientMultiResults               uint32 = 1 << 17
	ClientPSMultiResults              uint32 = 1 << 18
	ClientPluginAuth                 uint32 = 1 << 19
	ClientConnectAttrs               uint32 = 1 << 20
	ClientPluginAuthLenencClientData uint32 = 1 << 21
	ClientCanHandleExpiredPasswords  uint32 = 1 << 22
	ClientSessionTrack               uint32 = 1 << 23
	ClientDeprecateEOF               uint32 = 1 << 24

	// MariaDB-specific extended capability bit (carried in the extended
	// 32-bit field, advertised via the 10.2+ bit in the filler region).
	MariaDBClientExtendedCapability uint32 = 1 << 0 // MARIADB_CLIENT_PROGRESS equivalent namespace
)

// DefaultServerCapabilities is what this proxy advertises to clients on
// the initial handshake; SSL is added dynamically when the listener has a
// TLS context.
const DefaultServerCapabilities uint32 = ClientLongPassword |
	ClientFoundRows |
	ClientLongFlag |
	ClientConnectWithDB |
	ClientProtocol41 |
	ClientTransactions |
	ClientSecureConnection |
	ClientMultiStatements |
	ClientMultiResults |
	ClientPSMultiResults |
	ClientPluginAuth |
	ClientPluginAuthLenencClientData |
	ClientConnectAttrs |
	ClientSessionTrack |
	ClientDeprecateEOF

// Server status flags.
const (
	ServerStatusInTrans            uint16 = 1 << 0
	ServerStatusAutocommit         uint16 = 1 << 1
	ServerMoreResultsExists        uint16 = 1 << 3
	ServerStatusNoGoodIndexUsed    uint16 = 1 << 4
	ServerStatusNoIndexUsed        uint16 = 1 << 5
	ServerStatusCursorExists       uint16 = 1 << 6
	ServerStatusLastRowSent        uint16 = 1 << 7
	ServerStatusDbDropped          uint16 = 1 << 8
	ServerStatusNoBackslashEscapes uint16 = 1 << 9
	ServerStatusMetadataChanged    uint16 = 1 << 10
	ServerQueryWasSlow             uint16 = 1 << 11
	ServerPSOutParams              uint16 = 1 << 12
	ServerStatusInTransReadonly    uint16 = 1 << 13
	ServerSessionStateChanged      uint16 = 1 << 14
)

// Session-track types, carried in an OK packet's state-change-info when
// ClientSessionTrack is negotiated.
const (
	SessionTrackSystemVariables byte = 0
	SessionTrackSchema          byte = 1
	SessionTrackStateChange     byte = 2
	SessionTrackGTIDs           byte = 3
	SessionTrackTransactionChar byte = 4
	SessionTrackTransactionState byte = 5
)

// Command bytes, per spec section 4.A.
const (
	ComSleep            byte = 0x00
	ComQuit             byte = 0x01
	ComInitDB           byte = 0x02
	ComQuery            byte = 0x03
	ComFieldList        byte = 0x04
	ComCreateDB         byte = 0x05
	ComDropDB           byte = 0x06
	ComRefresh          byte = 0x07
	ComShutdown         byte = 0x08
	ComStatistics       byte = 0x09
	ComProcessInfo      byte = 0x0a
	ComConnect          byte = 0x0b
	ComProcessKill      byte = 0x0c
	ComDebug            byte = 0x0d
	ComPing             byte = 0x0e
	ComTime             byte = 0x0f
	ComDelayedInsert    byte = 0x10
	ComChangeUser       byte = 0x11
	ComBinlogDump       byte = 0x12
	ComTableDump        byte = 0x13
	ComConnectOut       byte = 0x14
	ComRegisterSlave    byte = 0x15
	ComStmtPrepare      byte = 0x16
	ComStmtExecute      byte = 0x17
	ComStmtSendLongData byte = 0x18
	ComStmtClose        byte = 0x19
	ComStmtReset        byte = 0x1a
	ComSetOption        byte = 0x1b
	ComStmtFetch        byte = 0x1c
	ComStmtBulkExecute  byte = 0xfa
)

// Reply leading bytes.
const (
	RespOK          byte = 0x00
	RespErr         byte = 0xff
	RespEOF         byte = 0xfe
	RespLocalInFile byte = 0xfb
)
