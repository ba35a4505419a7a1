package access

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type replyRec struct {
	msgs []string
}

func (r *replyRec) fn() ReplyFunc {
	return func(text string) { r.msgs = append(r.msgs, text) }
}

func (r *replyRec) last() string {
	if len(r.msgs) == 0 {
		return ""
	}
	return r.msgs[len(r.msgs)-1]
}

func TestSuperImpliesAdmin(t *testing.T) {
	docs := []Document{
		Normalize(Document{Super: RoleSet{IDs: []int64{1}}}),
		Normalize(Document{Super: RoleSet{Usernames: []string{"alice"}}}),
		Normalize(Document{Super: RoleSet{IDs: []int64{1}, Usernames: []string{"alice"}}, Admins: RoleSet{IDs: []int64{2}}}),
	}
	idents := []Identity{
		{ID: 1},
		{ID: 99, Username: "alice"},
		{ID: 1, Username: "Alice"},
	}
	for _, d := range docs {
		for _, who := range idents {
			if d.IsSuper(who) {
				assert.True(t, d.IsAdmin(who), "super member %+v must be admin", who)
			}
		}
	}
}

func TestIsAdminByIDOnly(t *testing.T) {
	d := Normalize(Document{Admins: RoleSet{IDs: []int64{42}}})
	who := Identity{ID: 42} // no handle at all
	assert.True(t, d.IsAdmin(who))
	assert.False(t, d.IsSuper(who))
}

func TestHandleComparedCaseInsensitively(t *testing.T) {
	d := Normalize(Document{Admins: RoleSet{Usernames: []string{"@Alice"}}})
	assert.True(t, d.IsAdmin(Identity{ID: 7, Username: "ALICE"}))
	assert.True(t, d.IsAdmin(Identity{ID: 7, Username: "alice"}))
	assert.False(t, d.IsAdmin(Identity{ID: 7, Username: "bob"}))
}

func TestRequireAdminDenialNamesCaller(t *testing.T) {
	g := &Gate{Store: tmpStore(t)}

	var rec replyRec
	_, ok := g.RequireAdmin(Identity{ID: 99, Username: "Someone"}, rec.fn())
	assert.False(t, ok)
	assert.Contains(t, rec.last(), "@Someone")

	rec = replyRec{}
	_, ok = g.RequireAdmin(Identity{ID: 99}, rec.fn())
	assert.False(t, ok)
	assert.Contains(t, rec.last(), "id:99")
}

func TestRequireAdminAllowsMember(t *testing.T) {
	s := tmpStore(t)
	require.NoError(t, s.Save(Document{Admins: RoleSet{IDs: []int64{5}}}))
	g := &Gate{Store: s}

	var rec replyRec
	_, ok := g.RequireAdmin(Identity{ID: 5}, rec.fn())
	assert.True(t, ok)
	assert.Empty(t, rec.msgs)
}

func TestRevokeTakesEffectOnNextCheck(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "access.json"), "", "")
	require.NoError(t, s.Save(Document{
		Super:  RoleSet{IDs: []int64{1}},
		Admins: RoleSet{IDs: []int64{5}},
	}))
	g := &Gate{Store: s}
	who := Identity{ID: 5}

	var rec replyRec
	_, ok := g.RequireAdmin(who, rec.fn())
	require.True(t, ok)

	// external revoke between two checks; no cache may hide it
	require.NoError(t, s.Update(func(d *Document) error {
		d.Admins.IDs = nil
		return nil
	}))

	_, ok = g.RequireAdmin(who, rec.fn())
	assert.False(t, ok)
}

func TestRequireSuper(t *testing.T) {
	s := tmpStore(t)
	require.NoError(t, s.Save(Document{
		Super:  RoleSet{IDs: []int64{1}},
		Admins: RoleSet{IDs: []int64{5}},
	}))
	g := &Gate{Store: s}

	var rec replyRec
	_, ok := g.RequireSuper(Identity{ID: 1}, rec.fn())
	assert.True(t, ok)

	_, ok = g.RequireSuper(Identity{ID: 5}, rec.fn())
	assert.False(t, ok, "plain admin is not super")
	assert.Contains(t, rec.last(), "super-admins only")
	assert.Contains(t, rec.last(), "id:5", "denial names the caller")

	_, ok = g.RequireSuper(Identity{ID: 5, Username: "Carl"}, rec.fn())
	assert.False(t, ok)
	assert.Contains(t, rec.last(), "@Carl", "handle preferred over id")
}
