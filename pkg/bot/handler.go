package bot

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"waifubot/pkg/catalog"
	"waifubot/pkg/duel"
	"waifubot/pkg/ownership"
	"waifubot/pkg/suggest"

	"github.com/bwmarrin/discordgo"
)

const (
	OutputPrefix = "[waifu] "
	FightPrefix  = "[Waifu Fight!] "
)

// ReloadFunc rebuilds the catalog from the configured sources.
type ReloadFunc func() (*catalog.Catalog, error)

type HandlerConfig struct {
	FightCooldown time.Duration
	Admins        []string
	// Suggestions is nil when suggestions are not accepted.
	Suggestions *suggest.Log
	Reload      ReloadFunc
	Rand        duel.Rand
}

type Handler struct {
	catalog     atomic.Pointer[catalog.Catalog]
	store       *ownership.Store
	resolver    *duel.Resolver
	cooldown    *Cooldown
	suggestions *suggest.Log
	reload      ReloadFunc
	admins      map[string]bool
}

func NewHandler(c *catalog.Catalog, store *ownership.Store, cfg HandlerConfig) *Handler {
	h := &Handler{
		store:       store,
		resolver:    duel.NewResolver(store, cfg.Rand),
		cooldown:    NewCooldown(cfg.FightCooldown),
		suggestions: cfg.Suggestions,
		reload:      cfg.Reload,
		admins:      make(map[string]bool),
	}
	h.catalog.Store(c)
	for _, id := range cfg.Admins {
		h.admins[id] = true
	}
	return h
}

// Catalog returns the list currently in use.
func (h *Handler) Catalog() *catalog.Catalog {
	return h.catalog.Load()
}

// InteractionCreate handles all slash command interactions
func (h *Handler) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.handleInteraction(&DiscordSession{Session: s}, i)
}

func (h *Handler) handleInteraction(s Session, i *discordgo.InteractionCreate) {
	// Only handle application commands (slash commands)
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	commandName := i.ApplicationCommandData().Name

	// Find and execute the appropriate handler
	if handler, ok := SlashCommandHandlers[commandName]; ok {
		handler(h, s, i)
	} else {
		log.Printf("Unknown slash command: %s", commandName)
	}
}

// GuildMemberRemove drops a departing member's records in that guild's
// channels. Their records in other guilds and their cooldown are kept.
func (h *Handler) GuildMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.Member == nil || m.User == nil || s == nil || s.State == nil {
		return
	}
	guild, err := s.State.Guild(m.GuildID)
	if err != nil {
		log.Printf("[Waifu] Guild %s is not cached, keeping records for %s", m.GuildID, m.User.ID)
		return
	}

	s.State.RLock()
	channels := make([]string, 0, len(guild.Channels))
	for _, ch := range guild.Channels {
		channels = append(channels, ch.ID)
	}
	s.State.RUnlock()

	h.forgetMember(m.User.ID, channels)
}

// ChannelDelete drops cached state for a deleted channel.
func (h *Handler) ChannelDelete(s *discordgo.Session, c *discordgo.ChannelDelete) {
	if c.Channel == nil {
		return
	}
	h.forgetChannel(c.ID)
}

func (h *Handler) forgetMember(userID string, channels []string) {
	ctx := context.Background()
	for _, channelID := range channels {
		if err := h.store.Forget(ctx, userID, channelID); err != nil {
			log.Printf("[Waifu] Error forgetting %s in %s: %v", userID, channelID, err)
		}
	}
}

func (h *Handler) forgetChannel(channelID string) {
	if err := h.store.ForgetChannel(context.Background(), channelID); err != nil {
		log.Printf("[Waifu] Error forgetting channel %s: %v", channelID, err)
	}
}

func (h *Handler) isAdmin(i *discordgo.InteractionCreate, userID string) bool {
	if h.admins[userID] {
		return true
	}
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

// Reload swaps in a freshly loaded catalog.
func (h *Handler) Reload() (int, error) {
	if h.reload == nil {
		return 0, errors.New("reload is not configured")
	}
	c, err := h.reload()
	if err != nil {
		return 0, err
	}
	h.catalog.Store(c)
	return c.Len(), nil
}
