package ownership

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Key identifies one user's record in one channel. Both parts are normalized.
type Key struct {
	User    string
	Channel string
}

// NewKey normalizes user and channel into a Key.
func NewKey(user, channel string) Key {
	return Key{User: Normalize(user), Channel: Normalize(channel)}
}

// Normalize case-folds an identifier so that lookups ignore case.
func Normalize(id string) string {
	// A Caser keeps state between calls, so each call gets its own.
	return cases.Fold().String(strings.TrimSpace(id))
}

// Record is the per (user, channel) ownership state. Current is empty when
// the user has no waifu; StolenBy then names whoever won her in a duel.
// PreviousLoser is set only on the winner of a duel and names the user the
// current waifu was taken from.
type Record struct {
	User          string `json:"user_id"`
	Channel       string `json:"channel"`
	Current       string `json:"current,omitempty"`
	PreviousLoser string `json:"previous_loser,omitempty"`
	StolenBy      string `json:"stolen_by,omitempty"`
	UpdatedAt     int64  `json:"updated_at"`
}

func (r Record) Key() Key {
	return Key{User: r.User, Channel: r.Channel}
}

// Backend persists records. Get reports false for unknown keys.
type Backend interface {
	Get(ctx context.Context, key Key) (Record, bool, error)
	Put(ctx context.Context, rec Record) error
}

// Evicter is implemented by volatile backends that drop records when users
// leave a channel or the channel goes away.
type Evicter interface {
	Forget(ctx context.Context, key Key) error
	ForgetChannel(ctx context.Context, channel string) error
}

// PersistenceError wraps any backend failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ownership %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store is the only way ownership state is read or changed.
type Store struct {
	backend Backend
	now     func() time.Time
}

func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		now:     time.Now,
	}
}

func (s *Store) load(ctx context.Context, key Key) (Record, bool, error) {
	rec, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return Record{}, false, &PersistenceError{Op: "get", Err: err}
	}
	if !ok {
		rec = Record{User: key.User, Channel: key.Channel}
	}
	return rec, ok, nil
}

func (s *Store) save(ctx context.Context, op string, rec Record) error {
	rec.UpdatedAt = s.now().Unix()
	if err := s.backend.Put(ctx, rec); err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	return nil
}

// Record returns the stored record, if any.
func (s *Store) Record(ctx context.Context, user, channel string) (Record, bool, error) {
	return s.load(ctx, NewKey(user, channel))
}

// Assign gives user a freshly drawn waifu. Any theft bookkeeping on this
// record is dropped; other users' records are untouched.
func (s *Store) Assign(ctx context.Context, user, channel, entry string) error {
	rec, _, err := s.load(ctx, NewKey(user, channel))
	if err != nil {
		return err
	}
	rec.Current = entry
	rec.StolenBy = ""
	rec.PreviousLoser = ""
	return s.save(ctx, "assign", rec)
}

// Current returns user's waifu in channel.
func (s *Store) Current(ctx context.Context, user, channel string) (string, bool, error) {
	rec, _, err := s.load(ctx, NewKey(user, channel))
	if err != nil {
		return "", false, err
	}
	return rec.Current, rec.Current != "", nil
}

// Clear removes user's waifu. A non-empty stolenBy is remembered for StolenBy.
func (s *Store) Clear(ctx context.Context, user, channel, stolenBy string) error {
	rec, _, err := s.load(ctx, NewKey(user, channel))
	if err != nil {
		return err
	}
	rec.Current = ""
	rec.PreviousLoser = ""
	rec.StolenBy = Normalize(stolenBy)
	return s.save(ctx, "clear", rec)
}

// StolenBy answers "who took my waifu?" for a user who currently has none.
func (s *Store) StolenBy(ctx context.Context, user, channel string) (string, bool, error) {
	rec, _, err := s.load(ctx, NewKey(user, channel))
	if err != nil {
		return "", false, err
	}
	if rec.Current != "" || rec.StolenBy == "" {
		return "", false, nil
	}
	return rec.StolenBy, true, nil
}

// RecordTheft moves entry from victim to thief. The two records are written
// one after the other; a failure on the second leaves both holding the entry.
func (s *Store) RecordTheft(ctx context.Context, thief, victim, channel, entry string) error {
	thiefRec, _, err := s.load(ctx, NewKey(thief, channel))
	if err != nil {
		return err
	}
	victimRec, _, err := s.load(ctx, NewKey(victim, channel))
	if err != nil {
		return err
	}

	thiefRec.Current = entry
	thiefRec.PreviousLoser = victimRec.User
	thiefRec.StolenBy = ""
	if err := s.save(ctx, "record theft (thief)", thiefRec); err != nil {
		return err
	}

	victimRec.Current = ""
	victimRec.PreviousLoser = ""
	victimRec.StolenBy = thiefRec.User
	if err := s.save(ctx, "record theft (victim)", victimRec); err != nil {
		return fmt.Errorf("%s now holds %q but %s was not updated: %w", thiefRec.User, entry, victimRec.User, err)
	}
	return nil
}

// RevengeCheck reports whether defender is still holding the waifu they won
// from challenger. Any draw by defender since that duel clears it.
func (s *Store) RevengeCheck(ctx context.Context, challenger, defender, channel string) (bool, error) {
	rec, _, err := s.load(ctx, NewKey(defender, channel))
	if err != nil {
		return false, err
	}
	return rec.Current != "" && rec.PreviousLoser != "" && rec.PreviousLoser == Normalize(challenger), nil
}

// Forget drops one record on volatile backends.
func (s *Store) Forget(ctx context.Context, user, channel string) error {
	ev, ok := s.backend.(Evicter)
	if !ok {
		return nil
	}
	if err := ev.Forget(ctx, NewKey(user, channel)); err != nil {
		return &PersistenceError{Op: "forget", Err: err}
	}
	return nil
}

// ForgetChannel drops every record in a channel on volatile backends.
func (s *Store) ForgetChannel(ctx context.Context, channel string) error {
	ev, ok := s.backend.(Evicter)
	if !ok {
		return nil
	}
	if err := ev.ForgetChannel(ctx, Normalize(channel)); err != nil {
		return &PersistenceError{Op: "forget channel", Err: err}
	}
	return nil
}
