package event

import "time"

// Kind classifies a protocol event. The protocol layer assigns the kind
// when it parses a raw line; the dispatch core only routes on it.
type Kind int

// Event kinds.
const (
	// KindMessage is an ordinary channel or private message.
	KindMessage Kind = iota

	// KindAction is a CTCP ACTION ("/me ...").
	KindAction

	// KindNotice is a notice line.
	KindNotice

	// KindJoin is a channel join.
	KindJoin

	// KindPart is a channel part.
	KindPart

	// KindQuit is a client quit.
	KindQuit

	// KindKick is a channel kick.
	KindKick

	// KindOther covers lines that have no dedicated kind.
	KindOther
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindAction:
		return "action"
	case KindNotice:
		return "notice"
	case KindJoin:
		return "join"
	case KindPart:
		return "part"
	case KindQuit:
		return "quit"
	case KindKick:
		return "kick"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Store is the per-plugin storage document attached to an event while a
// hook runs. It is the consumer-side view of a storage handle; the concrete
// implementation lives with the storage collaborator.
type Store interface {
	Get(path string) (string, bool)
	Set(path string, value any) error
	Delete(path string) error
}

// Event carries the data for one dispatch. The protocol layer builds events
// from parsed lines; the periodic scheduler builds empty ones.
//
// Events are passed by pointer through the sieve chain; a sieve that wants
// to transform an event should Clone it rather than mutate the original.
// The dispatcher hands every hook invocation its own Clone, so one event
// value may be launched at several hooks concurrently.
type Event struct {
	Kind    Kind
	Trigger string // raw protocol verb, e.g. "PRIVMSG"
	Nick    string
	Mask    string
	Channel string
	Content string
	Params  []string
	Time    time.Time

	// Post is set only on events delivered to post-notification hooks.
	Post *PostRecord

	store Store
}

// New creates an event of the given kind, stamped with the current time.
func New(kind Kind) *Event {
	return &Event{Kind: kind, Time: time.Now()}
}

// Clone returns a shallow copy of the event with its own Params slice.
// The attached store is not carried over.
func (e *Event) Clone() *Event {
	c := *e
	c.Params = append([]string(nil), e.Params...)
	c.store = nil
	return &c
}

// AttachStore attaches the owning plugin's storage document for the
// duration of a hook invocation.
func (e *Event) AttachStore(s Store) { e.store = s }

// DetachStore removes the attached storage document.
func (e *Event) DetachStore() { e.store = nil }

// Store returns the storage document attached to this event, or nil when
// the call is not inside a hook invocation.
func (e *Event) Store() Store { return e.store }

// PostRecord describes a finished launch to post-notification hooks.
type PostRecord struct {
	// HookName identifies the launched hook as "plugin:function".
	HookName string

	// Event is the event the hook was launched with.
	Event *Event

	// Result holds the hook's return value when it succeeded.
	Result any

	// Err holds the failure detail when it did not.
	Err error
}

// Success reports whether the recorded launch succeeded.
func (r *PostRecord) Success() bool { return r.Err == nil }
