package modem

// Report carries a structured delivery-status event to the driver's
// reporting layer: a message expired and was purged, or every part of
// a tracked message reached a terminal delivery outcome.
type Report struct {
	Device string `json:"device"`
	Dst    string `json:"dst"`
	UID    int64  `json:"uid,omitempty"`
	Info   string `json:"info"`
	// Expired marks purge reports as opposed to delivery reports.
	Expired bool `json:"expired,omitempty"`
	// Statuses holds the per-part delivery statuses in part order,
	// terminated by smsdb.StatusSentinel. Empty for purge reports.
	Statuses []int `json:"reports,omitempty"`
}

// Reporter receives reports. Implementations must not block: they are
// invoked from serializer tasks holding the session lock.
type Reporter interface {
	Report(Report)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Report)

func (f ReporterFunc) Report(r Report) { f(r) }

// Message is an assembled incoming SMS, complete after multipart
// reassembly.
type Message struct {
	Device string `json:"device"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}
