package access

import (
	"fmt"
	"strconv"
	"strings"
)

// Target is the subject of a grant/revoke: exactly one of a numeric id or
// a normalized handle.
type Target struct {
	ID     int64
	Handle string
}

func (t Target) IsZero() bool { return t.ID == 0 && t.Handle == "" }

func (t Target) Label() string {
	if t.Handle != "" {
		return "@" + t.Handle
	}
	return strconv.FormatInt(t.ID, 10)
}

// ParseTarget parses a command argument into a Target. A leading @ marks a
// handle; otherwise the token is tried as an integer and falls back to a
// bare handle.
func ParseTarget(arg string) Target {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return Target{}
	}
	if strings.HasPrefix(arg, "@") {
		return Target{Handle: NormalizeHandle(arg)}
	}
	if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return Target{ID: n}
	}
	return Target{Handle: NormalizeHandle(arg)}
}

func tierTitle(t Tier) string {
	if t == TierSuper {
		return "SUPER-ADMIN"
	}
	return "ADMIN"
}

func tierCmd(t Tier) string {
	if t == TierSuper {
		return "super"
	}
	return "admin"
}

// Commands implements the administrative command surface over the store.
// Callers gate each entry point through Gate.RequireSuper before invoking;
// the methods themselves only parse, mutate and report.
type Commands struct {
	Store *Store
}

// Grant adds the target to the tier. Granting an already-present identity
// still reports success (set semantics, nothing to corrupt).
func (c *Commands) Grant(tier Tier, arg string, reply ReplyFunc) {
	t := ParseTarget(arg)
	if t.IsZero() {
		reply(fmt.Sprintf("Usage: /grant_%s @username | /grant_%s <id>", tierCmd(tier), tierCmd(tier)))
		return
	}
	err := c.Store.Update(func(d *Document) error {
		set := d.Set(tier)
		if t.Handle != "" {
			set.Usernames = append(set.Usernames, t.Handle)
		} else {
			set.IDs = append(set.IDs, t.ID)
		}
		return nil
	})
	if err != nil {
		reply("⚠️ Could not save access list: " + err.Error())
		return
	}
	reply(fmt.Sprintf("✅ Granted %s access: %s", tierTitle(tier), t.Label()))
}

// Revoke removes the target from the tier. Removing the last super member
// is rejected before any write; revoking an absent target is a no-op with
// a "not found" reply.
func (c *Commands) Revoke(tier Tier, arg string, reply ReplyFunc) {
	t := ParseTarget(arg)
	if t.IsZero() {
		reply(fmt.Sprintf("Usage: /revoke_%s @username | /revoke_%s <id>", tierCmd(tier), tierCmd(tier)))
		return
	}
	var notFound, lastSuper bool
	err := c.Store.Update(func(d *Document) error {
		set := d.Set(tier)
		if !removeTarget(set, t) {
			notFound = true
			return ErrNoSave
		}
		if tier == TierSuper && d.Super.Len() == 0 {
			lastSuper = true
			return ErrNoSave
		}
		return nil
	})
	switch {
	case notFound:
		reply(fmt.Sprintf("Not found: %s is not in the %s list.", t.Label(), tierTitle(tier)))
	case lastSuper:
		reply("⛔ Cannot remove the last super-admin.")
	case err != nil:
		reply("⚠️ Could not save access list: " + err.Error())
	default:
		reply(fmt.Sprintf("✅ Revoked %s access: %s", tierTitle(tier), t.Label()))
	}
}

func removeTarget(set *RoleSet, t Target) bool {
	if t.Handle != "" {
		for i, u := range set.Usernames {
			if u == t.Handle {
				set.Usernames = append(set.Usernames[:i], set.Usernames[i+1:]...)
				return true
			}
		}
		return false
	}
	for i, id := range set.IDs {
		if id == t.ID {
			set.IDs = append(set.IDs[:i], set.IDs[i+1:]...)
			return true
		}
	}
	return false
}

// List renders both tiers, handles first then ids, sorted by the store's
// normalization. Empty tiers show a placeholder instead of vanishing.
func (c *Commands) List(reply ReplyFunc) {
	d := c.Store.Load()
	var b strings.Builder
	b.WriteString("📜 Access roles:\n")
	b.WriteString("\n🔶 Super-admins:\n")
	writeSet(&b, d.Super)
	b.WriteString("\n🔹 Admins:\n")
	writeSet(&b, d.Admins)
	reply(strings.TrimRight(b.String(), "\n"))
}

func writeSet(b *strings.Builder, s RoleSet) {
	if s.Len() == 0 {
		b.WriteString("  —\n")
		return
	}
	for _, u := range s.Usernames {
		fmt.Fprintf(b, "  • @%s\n", u)
	}
	for _, id := range s.IDs {
		fmt.Fprintf(b, "  • %d\n", id)
	}
}

// WhoAmI reports the caller's resolved role.
func (c *Commands) WhoAmI(who Identity, reply ReplyFunc) {
	d := c.Store.Load()
	role := "no access"
	switch {
	case d.IsSuper(who):
		role = "super-admin"
	case d.IsAdmin(who):
		role = "admin"
	}
	uname := "(no username)"
	if who.Username != "" {
		uname = "@" + who.Username
	}
	reply(fmt.Sprintf("You: %s\nID: %d\nRole: %s", uname, who.ID, role))
}
