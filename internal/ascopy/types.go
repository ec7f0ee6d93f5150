// Package ascopy re-submits previously received messages and albums to
// new recipients through the compose-and-send API, optionally replacing
// captions, sending silently, or parking the copy as a far-future
// scheduled draft.
package ascopy

// PeerID identifies a target conversation.
type PeerID int64

// MediaKind distinguishes the two re-sendable media classes.
type MediaKind int

const (
	MediaPhoto MediaKind = iota + 1
	MediaDocument
)

// Media references an already-uploaded piece of media by its remote
// file reference; re-sending never re-uploads.
type Media struct {
	Kind MediaKind
	Ref  string
}

// Item is an existing message eligible for re-sending. GroupID is zero
// for standalone messages and shared by all items of one album.
type Item struct {
	ID      uint64
	Peer    PeerID
	GroupID uint64
	Text    string
	Media   *Media
}

// ToSend carries the delivery options chosen by the user.
type ToSend struct {
	Peers          []PeerID
	Comment        string
	EmptyText      bool // drop original captions; Comment replaces the first one
	Silent         bool
	ScheduledDraft bool // park as a scheduled message in the far future
}

// ReplyRef points at the message a copy replies to. The zero value
// means no reply.
type ReplyRef struct {
	MessageID uint64
}

// IsZero reports whether the reference is empty.
func (r ReplyRef) IsZero() bool { return r == ReplyRef{} }

// SendOptions are the per-request delivery options handed to the
// collaborator.
type SendOptions struct {
	Silent      bool
	ScheduledAt int64 // unix seconds; zero means send now
	ReplyTo     ReplyRef
}

// AlbumEntry is one media of a grouped send.
type AlbumEntry struct {
	Media    Media
	RandomID uint64
	Caption  string
}

// AlbumRequest asks the collaborator to deliver a grouped send.
type AlbumRequest struct {
	RequestID string
	Peer      PeerID
	Entries   []AlbumEntry
	Options   SendOptions
}

// MediaRequest asks the collaborator to deliver a single existing media.
type MediaRequest struct {
	RequestID string
	Peer      PeerID
	Media     Media
	Text      string
	Options   SendOptions
}

// TextRequest asks the collaborator to deliver a plain text message.
type TextRequest struct {
	RequestID string
	Peer      PeerID
	Text      string
}

// Sender is the compose-and-send capability of the messaging API
// client. Results arrive asynchronously through the callback pair; this
// package fires requests and does not depend on the outcome beyond
// logging failures.
type Sender interface {
	SendAlbum(req AlbumRequest, done func(), fail func(error))
	SendMedia(req MediaRequest, done func(), fail func(error))
	SendText(req TextRequest, done func(), fail func(error))
}

// Drafts exposes the per-conversation draft state. A pending reply
// reference in a draft is consumed by the copy and cleared everywhere,
// including the cloud copy.
type Drafts interface {
	ReplyTo(peer PeerID) ReplyRef
	ClearReply(peer PeerID)
}

// History resolves album membership and deletes source messages after a
// successful move.
type History interface {
	AlbumItems(item Item) []Item
	DeleteItems(ids []uint64)
}
