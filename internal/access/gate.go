package access

import "fmt"

// Identity is the caller as seen by the transport: an immutable numeric id
// and an optional handle in whatever case the client sent it.
type Identity struct {
	ID       int64
	Username string
}

// Label renders the identity for user-facing messages, preferring the
// handle when present.
func (who Identity) Label() string {
	if who.Username != "" {
		return "@" + who.Username
	}
	return fmt.Sprintf("id:%d", who.ID)
}

// IsSuper reports membership in the super tier, by id or by handle.
func (d Document) IsSuper(who Identity) bool {
	return d.Super.HasID(who.ID) || d.Super.HasHandle(who.Username)
}

// IsAdmin reports admin capability. Super membership implies it.
func (d Document) IsAdmin(who Identity) bool {
	return d.IsSuper(who) || d.Admins.HasID(who.ID) || d.Admins.HasHandle(who.Username)
}

// ReplyFunc delivers a user-facing message back to the caller's chat.
type ReplyFunc func(text string)

// Gate answers "may this caller do that" against a freshly loaded
// document on every call. No permission cache: a revoke takes effect on
// the target's very next action.
type Gate struct {
	Store *Store
}

// RequireAdmin loads the current document and checks admin capability.
// On denial it tells the caller who they were identified as, without
// leaking anyone else's entries.
func (g *Gate) RequireAdmin(who Identity, reply ReplyFunc) (Document, bool) {
	doc := g.Store.Load()
	if doc.IsAdmin(who) {
		return doc, true
	}
	reply("⛔ Access denied.\nOnly admins can use this bot.\n\nYour identifier: " + who.Label())
	return doc, false
}

// RequireSuper is the stricter gate for administrative commands.
func (g *Gate) RequireSuper(who Identity, reply ReplyFunc) (Document, bool) {
	doc := g.Store.Load()
	if doc.IsSuper(who) {
		return doc, true
	}
	reply("⛔ This command is for super-admins only.\n\nYour identifier: " + who.Label())
	return doc, false
}
