package access

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tmpStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "access.json"), "", "")
}

func TestNormalizeIdempotent(t *testing.T) {
	in := Document{
		Super: RoleSet{
			IDs:       []int64{3, 1, 3, 2},
			Usernames: []string{"@Alice", "alice", "BOB", ""},
		},
		Admins: RoleSet{
			IDs:       []int64{7, 7},
			Usernames: []string{"@Carol"},
		},
	}
	once := Normalize(in)
	twice := Normalize(once)
	assert.Equal(t, once, twice)

	assert.Equal(t, []int64{1, 2, 3}, once.Super.IDs)
	assert.Equal(t, []string{"alice", "bob"}, once.Super.Usernames)
	assert.Equal(t, []string{"carol"}, once.Admins.Usernames)
}

func TestSaveThenLoadEqualsNormalize(t *testing.T) {
	s := tmpStore(t)
	in := Document{
		Super:  RoleSet{IDs: []int64{5, 5, 1}, Usernames: []string{"@Zed", "ann"}},
		Admins: RoleSet{Usernames: []string{"@MIXED"}},
	}
	require.NoError(t, s.Save(in))
	assert.Equal(t, Normalize(in), s.Load())
}

func TestLoadMissingSeedsFromBootstrap(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "access.json"), "10, 20, nope, ", "30")
	d := s.Load()
	assert.Equal(t, []int64{10, 20}, d.Super.IDs)
	assert.Equal(t, []int64{30}, d.Admins.IDs)
	assert.Empty(t, d.Super.Usernames)
}

func TestLoadMalformedSelfHeals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	s := NewStore(path, "1", "")
	d := s.Load()
	// malformed content is replaced by an empty document, not the seed
	assert.Equal(t, Document{Super: RoleSet{IDs: []int64{}, Usernames: []string{}}, Admins: RoleSet{IDs: []int64{}, Usernames: []string{}}}, d)
}

func TestLoadCoercesLooseTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.json")
	raw := `{"super":{"ids":["5", 6, "x", true],"usernames":["@Bob", 42]},"admins":{"ids":[],"usernames":[]}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	s := NewStore(path, "", "")
	d := s.Load()
	assert.Equal(t, []int64{5, 6}, d.Super.IDs)
	assert.Equal(t, []string{"bob"}, d.Super.Usernames)
}

func TestHasIDHasHandle(t *testing.T) {
	d := Normalize(Document{Admins: RoleSet{IDs: []int64{42}, Usernames: []string{"alice"}}})
	assert.True(t, d.Admins.HasID(42))
	assert.False(t, d.Admins.HasID(43))
	assert.True(t, d.Admins.HasHandle("@ALICE"))
	assert.True(t, d.Admins.HasHandle("alice"))
	assert.False(t, d.Admins.HasHandle("bob"))
	assert.False(t, d.Admins.HasHandle(""))
}

func TestUpdateAbortLeavesFileUntouched(t *testing.T) {
	s := tmpStore(t)
	require.NoError(t, s.Save(Document{Super: RoleSet{IDs: []int64{1}}}))
	before := s.Load()

	err := s.Update(func(d *Document) error {
		d.Super.IDs = nil
		return ErrNoSave
	})
	assert.ErrorIs(t, err, ErrNoSave)
	assert.Equal(t, before, s.Load())
}

func TestConcurrentGrantsBothLand(t *testing.T) {
	s := tmpStore(t)
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_ = s.Update(func(d *Document) error {
				d.Admins.IDs = append(d.Admins.IDs, id)
				return nil
			})
		}(int64(i + 1))
	}
	wg.Wait()

	d := s.Load()
	require.Len(t, d.Admins.IDs, n, "no grant may be lost")
	for i := int64(1); i <= n; i++ {
		assert.True(t, d.Admins.HasID(i))
	}
}

func TestParseIDList(t *testing.T) {
	assert.Equal(t, []int64{1, 2}, ParseIDList("1,2"))
	assert.Equal(t, []int64{7}, ParseIDList(" 7 , abc, "))
	assert.Nil(t, ParseIDList(""))
	assert.Nil(t, ParseIDList("x,y"))
}
