// Package duel decides waifu fights between two users in a channel.
package duel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"

	"waifubot/pkg/ownership"
)

// ErrNoCurrentEntry means the defender has nothing to fight over.
var ErrNoCurrentEntry = errors.New("defender has no waifu")

type State int

const (
	Invalid State = iota
	NoTarget
	ChallengerWins
	DefenderWins
)

func (s State) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case NoTarget:
		return "no-target"
	case ChallengerWins:
		return "challenger-wins"
	case DefenderWins:
		return "defender-wins"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Reason explains an Invalid outcome.
type Reason int

const (
	ReasonNone Reason = iota
	MissingTarget
	SelfChallenge
	NotPresent
)

// Flavors are what the defender's waifu does after a successful defense.
var Flavors = []string{
	"tends to her husbando's wounds",
	"hugs her gallant husbando",
	"kisses her husbando passionately",
	"drags her husbando to bed, iykwim",
}

// Rand is the subset of *rand.Rand the resolver draws with.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Store is the part of ownership.Store a duel touches.
type Store interface {
	Current(ctx context.Context, user, channel string) (string, bool, error)
	RevengeCheck(ctx context.Context, challenger, defender, channel string) (bool, error)
	RecordTheft(ctx context.Context, thief, victim, channel, entry string) error
}

// Challenge is one duel request. Names are used as given for messages;
// the store normalizes them for lookups.
type Challenge struct {
	Challenger      string
	Defender        string
	Channel         string
	DefenderPresent bool
}

type Outcome struct {
	State      State
	Reason     Reason
	Challenger string
	Defender   string
	Entry      string
	Revenge    bool
	Flavor     string
}

// Err returns the precondition failure behind a NoTarget outcome.
func (o Outcome) Err() error {
	if o.State == NoTarget {
		return ErrNoCurrentEntry
	}
	return nil
}

// Changed reports whether the duel moved a waifu.
func (o Outcome) Changed() bool {
	return o.State == ChallengerWins
}

type Resolver struct {
	store Store
	rng   Rand
	mu    sync.Mutex
}

// NewResolver builds a resolver; a nil rng uses math/rand/v2's global source.
func NewResolver(store Store, rng Rand) *Resolver {
	if rng == nil {
		rng = globalRand{}
	}
	return &Resolver{store: store, rng: rng}
}

func (r *Resolver) intN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

// Duel runs one challenge. Only persistence failures are returned as errors;
// every other outcome is reported through Outcome and changes nothing.
func (r *Resolver) Duel(ctx context.Context, c Challenge) (Outcome, error) {
	out := Outcome{Challenger: c.Challenger, Defender: c.Defender}

	switch {
	case c.Defender == "":
		out.Reason = MissingTarget
		return out, nil
	case ownership.Normalize(c.Defender) == ownership.Normalize(c.Challenger):
		out.Reason = SelfChallenge
		return out, nil
	case !c.DefenderPresent:
		out.Reason = NotPresent
		return out, nil
	}

	spoils, ok, err := r.store.Current(ctx, c.Defender, c.Channel)
	if err != nil {
		return out, err
	}
	if !ok {
		out.State = NoTarget
		return out, nil
	}
	out.Entry = spoils

	// challenger is index 0, defender index 1
	if r.intN(2) == 1 {
		out.State = DefenderWins
		out.Flavor = Flavors[r.intN(len(Flavors))]
		return out, nil
	}

	revenge, err := r.store.RevengeCheck(ctx, c.Challenger, c.Defender, c.Channel)
	if err != nil {
		return out, err
	}
	if err := r.store.RecordTheft(ctx, c.Challenger, c.Defender, c.Channel, spoils); err != nil {
		return out, err
	}

	out.State = ChallengerWins
	out.Revenge = revenge
	log.Printf("[Fight] %s took %q from %s in %s (revenge=%t)", c.Challenger, spoils, c.Defender, c.Channel, revenge)
	return out, nil
}
