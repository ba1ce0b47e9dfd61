package messenger

import "github.com/mesbot/dispatch/internal/store"

// EventKind tags the variant carried by an Event. Dispatcher matching
// against Kind must be exhaustive (spec.md §9: model Event as a tagged
// sum, not a dictionary).
type EventKind string

const (
	KindReady             EventKind = "ready"
	KindReconnected       EventKind = "reconnected"
	KindDisconnected      EventKind = "disconnected"
	KindError             EventKind = "error"
	KindMessage           EventKind = "message"
	KindMessageEdit       EventKind = "messageEdit"
	KindMessageUnsend     EventKind = "messageUnsend"
	KindReaction          EventKind = "reaction"
	KindTyping            EventKind = "typing"
	KindReadReceipt       EventKind = "readReceipt"
	KindE2EEConnected     EventKind = "e2eeConnected"
	KindE2EEMessage       EventKind = "e2eeMessage"
	KindE2EEReaction      EventKind = "e2eeReaction"
	KindE2EEReceipt       EventKind = "e2eeReceipt"
	KindDeviceDataChanged EventKind = "deviceDataChanged"
	KindFullyReady        EventKind = "fullyReady"
	KindRaw               EventKind = "raw"
)

// ErrorCode classifies an error Event. CodeFatal means the event loop
// must stop; anything else is recoverable.
type ErrorCode int

const (
	CodeTransient ErrorCode = 0
	CodeFatal     ErrorCode = 1
)

// ReplyTo references the message a new message is replying to.
type ReplyTo struct {
	MessageID string
	SenderID  store.ID
}

// Mention references a user mentioned within message text.
type Mention struct {
	UserID store.ID
	Offset int
	Length int
}

// Attachment is an opaque media reference carried on a message event.
type Attachment struct {
	Type string
	URL  string
}

// MessagePayload carries the fields of a message/e2eeMessage event.
type MessagePayload struct {
	ID          string
	ThreadID    store.ID
	SenderID    store.ID
	Text        *string
	TimestampMs int64
	IsE2EE      bool
	IsGroup     bool
	Attachments []Attachment
	ReplyTo     *ReplyTo
	Mentions    []Mention

	// ChatJID and SenderJID are only populated for IsE2EE messages,
	// per spec.md's E2EE addressing (GLOSSARY: JID).
	ChatJID   string
	SenderJID string
}

// ReactionPayload carries the fields of a reaction/e2eeReaction event.
type ReactionPayload struct {
	ThreadID  store.ID
	MessageID string
	SenderID  store.ID
	Emoji     string
	IsE2EE    bool
}

// TypingPayload carries the fields of a typing event.
type TypingPayload struct {
	ThreadID store.ID
	SenderID store.ID
	IsTyping bool
}

// ReadReceiptPayload carries the fields of a readReceipt/e2eeReceipt event.
type ReadReceiptPayload struct {
	ThreadID        store.ID
	SenderID        store.ID
	TargetTimestamp int64
}

// ErrorPayload carries the fields of an error event.
type ErrorPayload struct {
	Message string
	Code    ErrorCode
}

// ReadyPayload carries the fields of a ready event.
type ReadyPayload struct {
	UserID store.ID
}

// Event is a tagged union over the transport's emitted event space
// (spec.md §3). At most one of the payload fields is populated,
// selected by Kind; lifecycle kinds such as ready and fullyReady may
// carry none.
type Event struct {
	Kind EventKind

	Ready        *ReadyPayload
	Error        *ErrorPayload
	Message      *MessagePayload
	Reaction     *ReactionPayload
	Typing       *TypingPayload
	ReadReceipt  *ReadReceiptPayload
	DeviceData   []byte
	Raw          any
}
