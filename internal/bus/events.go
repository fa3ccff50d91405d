package bus

// Notification carries the fields of a cross-platform stream announcement.
type Notification struct {
	Channel string
	Title   string
	URL     string
}

// CentralEventType enumerates what the supervisor broadcasts to adapters.
type CentralEventType int

const (
	// CentralConfigChanged tells adapters to re-read the config store.
	CentralConfigChanged CentralEventType = iota
	// CentralNotify asks the notification-capable adapter to announce.
	CentralNotify
	// CentralShutdown tells every adapter to stop.
	CentralShutdown
)

func (t CentralEventType) String() string {
	switch t {
	case CentralConfigChanged:
		return "config_changed"
	case CentralNotify:
		return "notify"
	case CentralShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// CentralEvent is a supervisor-to-adapters broadcast. Notification is set
// only for CentralNotify.
type CentralEvent struct {
	Type         CentralEventType
	Notification Notification

	// CorrelationID threads a notification through supervisor and adapter
	// logs.
	CorrelationID string
}

// AdapterEventType enumerates what adapters report to the supervisor.
type AdapterEventType int

const (
	// AdapterReady means the adapter is connected and serving.
	AdapterReady AdapterEventType = iota
	// AdapterDebug is free-form diagnostic text, surfaced to operators.
	AdapterDebug
	// AdapterError is a non-fatal adapter error.
	AdapterError
	// AdapterConfigDocument carries one raw config document for parsing.
	AdapterConfigDocument
	// AdapterFatalTokenExpiry means the adapter's credentials cannot be
	// refreshed and a plain restart will not help.
	AdapterFatalTokenExpiry
	// AdapterNotify proposes a stream announcement, subject to the
	// supervisor's rate limit.
	AdapterNotify
)

func (t AdapterEventType) String() string {
	switch t {
	case AdapterReady:
		return "ready"
	case AdapterDebug:
		return "debug"
	case AdapterError:
		return "error"
	case AdapterConfigDocument:
		return "config_document"
	case AdapterFatalTokenExpiry:
		return "fatal_token_expiry"
	case AdapterNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// AdapterEvent is an adapter-to-supervisor report. Source names the emitting
// adapter. Text is set for Debug, Error and ConfigDocument; Notification only
// for AdapterNotify.
type AdapterEvent struct {
	Source string
	Type   AdapterEventType

	Text         string
	Notification Notification
}
