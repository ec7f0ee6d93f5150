package ascopy

import (
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// A draft scheduled this far out never fires on its own; the user
// releases it manually from the scheduled-messages screen.
const scheduledDraftDelay = 350 * 24 * time.Hour

// Copier fans existing messages out to new peers as fresh copies.
type Copier struct {
	sender  Sender
	drafts  Drafts
	history History
	now     func() time.Time
}

// New returns a Copier over the given collaborators.
func New(sender Sender, drafts Drafts, history History) *Copier {
	return &Copier{sender: sender, drafts: drafts, history: history, now: time.Now}
}

// SendExistingMediaFromItem re-sends a single message to every peer in
// toSend. Items without media degrade to a plain text send carrying no
// delivery options.
func (c *Copier) SendExistingMediaFromItem(item Item, toSend ToSend) {
	text := item.Text
	if toSend.EmptyText {
		text = toSend.Comment
	}
	for _, peer := range toSend.Peers {
		id := uuid.NewString()
		if item.Media == nil {
			req := TextRequest{RequestID: id, Peer: peer, Text: text}
			c.sender.SendText(req, nil, c.failure("text", id, peer))
			continue
		}
		req := MediaRequest{
			RequestID: id,
			Peer:      peer,
			Media:     *item.Media,
			Text:      text,
			Options:   c.options(peer, toSend),
		}
		c.sender.SendMedia(req, nil, c.failure("media", id, peer))
	}
}

// SendExistingAlbumFromItem resolves the album the item belongs to and
// re-sends the whole group. An item outside any album falls back to the
// single-message path.
func (c *Copier) SendExistingAlbumFromItem(item Item, toSend ToSend) {
	if item.GroupID == 0 {
		c.SendExistingMediaFromItem(item, toSend)
		return
	}
	items := c.history.AlbumItems(item)
	if len(items) == 0 {
		return
	}
	c.SendAlbumFromItems(items, toSend, false)
}

// SendAlbumFromItems re-sends a prepared group of messages as one album
// per target peer. With andDelete the source messages are removed once
// every request has been fired.
func (c *Copier) SendAlbumFromItems(items []Item, toSend ToSend, andDelete bool) {
	entries := make([]AlbumEntry, 0, len(items))
	for _, item := range items {
		if item.Media == nil {
			continue
		}
		caption := item.Text
		if toSend.EmptyText {
			// The replacement comment goes on the first entry only.
			caption = ""
			if len(entries) == 0 {
				caption = toSend.Comment
			}
		}
		entries = append(entries, AlbumEntry{
			Media:   *item.Media,
			Caption: caption,
		})
	}
	if len(entries) == 0 {
		return
	}
	for _, peer := range toSend.Peers {
		id := uuid.NewString()
		req := AlbumRequest{
			RequestID: id,
			Peer:      peer,
			Entries:   make([]AlbumEntry, len(entries)),
			Options:   c.options(peer, toSend),
		}
		copy(req.Entries, entries)
		for i := range req.Entries {
			req.Entries[i].RandomID = randomID()
		}
		c.sender.SendAlbum(req, nil, c.failure("album", id, peer))
	}
	if andDelete {
		ids := make([]uint64, len(items))
		for i, item := range items {
			ids[i] = item.ID
		}
		c.history.DeleteItems(ids)
	}
}

// options assembles the delivery options for one peer, draining any
// pending reply reference from that peer's draft.
func (c *Copier) options(peer PeerID, toSend ToSend) SendOptions {
	opts := SendOptions{Silent: toSend.Silent}
	if toSend.ScheduledDraft {
		opts.ScheduledAt = c.now().Add(scheduledDraftDelay).Unix()
	}
	if reply := c.drafts.ReplyTo(peer); !reply.IsZero() {
		opts.ReplyTo = reply
		c.drafts.ClearReply(peer)
	}
	return opts
}

func (c *Copier) failure(kind, requestID string, peer PeerID) func(error) {
	return func(err error) {
		slog.Warn("send as copy failed", "kind", kind, "request", requestID, "peer", int64(peer), "error", err)
	}
}

// randomID derives a message random ID from a fresh UUID.
func randomID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}
