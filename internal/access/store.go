package access

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tier names a privilege level. The JSON keys of the access document.
type Tier string

const (
	TierSuper  Tier = "super"
	TierAdmins Tier = "admins"
)

// RoleSet holds one tier's members. Stored list-shaped but treated as a
// pair of sets: Normalize dedupes, lowercases usernames and sorts both.
type RoleSet struct {
	IDs       []int64  `json:"ids"`
	Usernames []string `json:"usernames"`
}

// Document is the persisted two-tier access control list. Super members
// are never duplicated into Admins; IsAdmin treats super as implied.
type Document struct {
	Super  RoleSet `json:"super"`
	Admins RoleSet `json:"admins"`
}

// Set returns the tier's RoleSet for in-place mutation.
func (d *Document) Set(t Tier) *RoleSet {
	if t == TierSuper {
		return &d.Super
	}
	return &d.Admins
}

func (s *RoleSet) HasID(id int64) bool {
	for _, v := range s.IDs {
		if v == id {
			return true
		}
	}
	return false
}

func (s *RoleSet) HasHandle(handle string) bool {
	handle = NormalizeHandle(handle)
	if handle == "" {
		return false
	}
	for _, v := range s.Usernames {
		if v == handle {
			return true
		}
	}
	return false
}

// Len counts members across both attribute kinds.
func (s *RoleSet) Len() int { return len(s.IDs) + len(s.Usernames) }

// NormalizeHandle strips the @ sigil and lowercases.
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(h), "@"))
}

// ParseIDList parses a comma-separated numeric-ID list (bootstrap env
// format). Non-numeric tokens are skipped, not errors.
func ParseIDList(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, n)
		}
	}
	return ids
}

func normalizeSet(s RoleSet) RoleSet {
	idSet := make(map[int64]struct{}, len(s.IDs))
	for _, id := range s.IDs {
		idSet[id] = struct{}{}
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	unameSet := make(map[string]struct{}, len(s.Usernames))
	for _, u := range s.Usernames {
		if n := NormalizeHandle(u); n != "" {
			unameSet[n] = struct{}{}
		}
	}
	unames := make([]string, 0, len(unameSet))
	for u := range unameSet {
		unames = append(unames, u)
	}
	sort.Strings(unames)

	return RoleSet{IDs: ids, Usernames: unames}
}

// Normalize returns the canonical form of a document: IDs deduplicated and
// sorted numerically, usernames sigil-stripped, lowercased, deduplicated
// and sorted. Idempotent.
func Normalize(d Document) Document {
	return Document{Super: normalizeSet(d.Super), Admins: normalizeSet(d.Admins)}
}

// rawSet tolerates list entries of any JSON type so a hand-edited document
// with string ids or numeric usernames is coerced instead of rejected.
type rawSet struct {
	IDs       []any `json:"ids"`
	Usernames []any `json:"usernames"`
}

type rawDocument struct {
	Super  rawSet `json:"super"`
	Admins rawSet `json:"admins"`
}

func coerceSet(r rawSet) RoleSet {
	var s RoleSet
	for _, v := range r.IDs {
		switch t := v.(type) {
		case float64:
			s.IDs = append(s.IDs, int64(t))
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				s.IDs = append(s.IDs, n)
			}
		}
	}
	for _, v := range r.Usernames {
		if u, ok := v.(string); ok && u != "" {
			s.Usernames = append(s.Usernames, u)
		}
	}
	return s
}

// ErrNoSave aborts a Store.Update without persisting. The mutation callback
// returns it when the document must stay untouched (invariant guard,
// revoke of an absent member).
var ErrNoSave = errors.New("access: update aborted, nothing saved")

// Store persists the access document as JSON at a fixed path. All writes
// go through a single mutex so concurrent mutations never interleave;
// the read-normalize-write of Update is one critical section end to end.
type Store struct {
	path string
	mu   sync.Mutex

	// one-time seed for when no document exists yet, comma-separated
	// numeric IDs per tier (BOT_SUPER_ADMINS / BOT_ADMINS)
	seedSuper  string
	seedAdmins string
}

func NewStore(path, seedSuper, seedAdmins string) *Store {
	return &Store{path: path, seedSuper: seedSuper, seedAdmins: seedAdmins}
}

// Load reads the durable document. A missing file yields an empty document
// seeded from the bootstrap lists; malformed content is substituted with an
// empty document rather than failing. Always returns a normalized value.
func (s *Store) Load() Document {
	return Normalize(s.load())
}

func (s *Store) load() Document {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("access file unreadable, starting empty")
		}
		return Document{
			Super:  RoleSet{IDs: ParseIDList(s.seedSuper)},
			Admins: RoleSet{IDs: ParseIDList(s.seedAdmins)},
		}
	}
	var rd rawDocument
	if err := json.Unmarshal(raw, &rd); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("access file malformed, starting empty")
		return Document{}
	}
	return Document{Super: coerceSet(rd.Super), Admins: coerceSet(rd.Admins)}
}

// Save normalizes and persists the document under the writer lock. The
// write lands via temp-file rename so a concurrent Load never observes a
// partial document.
func (s *Store) Save(d Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(d)
}

func (s *Store) save(d Document) error {
	d = Normalize(d)
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Update runs load → fn → normalize → save as a single critical section,
// so two concurrent mutations cannot lose each other's writes. If fn
// returns an error nothing is persisted; ErrNoSave is passed through for
// the caller to distinguish "rejected" from "failed".
func (s *Store) Update(fn func(*Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := Normalize(s.load())
	if err := fn(&d); err != nil {
		return err
	}
	return s.save(d)
}
