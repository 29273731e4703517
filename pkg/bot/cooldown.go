package bot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Cooldown limits each user to one counted action per period.
type Cooldown struct {
	every    time.Duration
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	now      func() time.Time
}

// NewCooldown returns a cooldown of the given period; zero disables it.
func NewCooldown(every time.Duration) *Cooldown {
	return &Cooldown{
		every:    every,
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

func (c *Cooldown) limiter(user string) *rate.Limiter {
	lim, ok := c.limiters[user]
	if !ok {
		lim = rate.NewLimiter(rate.Every(c.every), 1)
		c.limiters[user] = lim
	}
	return lim
}

// Remaining reports how long user must wait; zero means they may act now.
func (c *Cooldown) Remaining(user string) time.Duration {
	if c.every <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	lim, ok := c.limiters[user]
	if !ok {
		return 0
	}
	tokens := lim.TokensAt(c.now())
	if tokens >= 1 {
		delete(c.limiters, user)
		return 0
	}
	return time.Duration((1 - tokens) * float64(c.every))
}

// Spend starts user's cooldown. Actions that turn out to be no-ops are
// simply never spent.
func (c *Cooldown) Spend(user string) {
	if c.every <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limiter(user).AllowN(c.now(), 1)
}
