package at

import "time"

const (
	// Terminal Control
	CRLF   = "\r\n"
	Prompt = "> "
	CtrlZ  = "\x1a"

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// SendConfirm is the intermediate result of a message submission,
	// carrying the reference the network assigned to the part.
	SendConfirm = "+CMGS:"

	// URCs (Unsolicited Result Codes)
	UrcNewMsg         = "+CMTI:"
	UrcMsg            = "+CMT:"
	UrcStatusReport   = "+CDS:"
	UrcReportIndex    = "+CDSI:"
	UrcSignalStrength = "+CSQ:"
	UrcCall           = "RING"
)

// Commands used by the initialization and keepalive sequences.
const (
	CmdAt            = "AT"
	CmdReset         = "ATZ"
	CmdEchoOff       = "ATE0"
	CmdVerboseErrors = "AT+CMEE=2"
	CmdSimStatus     = "AT+CPIN?"
	CmdSetTextMode   = "AT+CMGF=1"
	CmdNewMsgInd     = "AT+CNMI=2,2,0,1,0"
	CmdSignalQuality = "AT+CSQ"
	CmdSendMsg       = "AT+CMGS"

	SimReady = "+CPIN: READY"
	SimPin   = "+CPIN: SIM PIN"
)

// DefaultTimeout is the response deadline applied to queued commands
// that do not specify their own.
const DefaultTimeout = 10 * time.Second

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CSQ: ...)
	TypePrompt                     // SMS input prompt
)
