package bot

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"waifubot/pkg/catalog"
	"waifubot/pkg/ownership"
	"waifubot/pkg/suggest"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockSession implements Session for testing
type MockSession struct {
	mu        sync.Mutex
	Responses []*discordgo.InteractionResponse
	Members   map[string]bool // user IDs present in the guild
}

func (m *MockSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, resp)
	return nil
}

func (m *MockSession) GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error) {
	if !m.Members[userID] {
		return nil, errors.New("unknown member")
	}
	return &discordgo.Member{GuildID: guildID, User: &discordgo.User{ID: userID}}, nil
}

// Last returns the most recent reply and whether it was ephemeral.
func (m *MockSession) Last(t *testing.T) (string, bool) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.Responses, "expected a response")
	data := m.Responses[len(m.Responses)-1].Data
	return data.Content, data.Flags&discordgo.MessageFlagsEphemeral != 0
}

// zeroRand always picks the first option: the challenger wins every coin flip.
type zeroRand struct{}

func (zeroRand) IntN(n int) int { return 0 }

// oneRand makes the defender win every coin flip.
type oneRand struct{}

func (oneRand) IntN(n int) int {
	if n > 1 {
		return 1
	}
	return 0
}

type testBot struct {
	h       *Handler
	s       *MockSession
	store   *ownership.Store
	backend *ownership.MemoryBackend
}

func newTestBot(t *testing.T, entries []string, cfg HandlerConfig) *testBot {
	t.Helper()
	if cfg.Rand == nil {
		cfg.Rand = zeroRand{}
	}
	backend := ownership.NewMemoryBackend()
	store := ownership.NewStore(backend)
	return &testBot{
		h:       NewHandler(catalog.New(entries, zeroRand{}), store, cfg),
		s:       &MockSession{Members: map[string]bool{"alice": true, "bob": true, "carol": true}},
		store:   store,
		backend: backend,
	}
}

func userOpt(id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  "user",
		Type:  discordgo.ApplicationCommandOptionUser,
		Value: id,
	}
}

func stringOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func command(name, userID string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   "guild",
			ChannelID: "chan",
			Member:    &discordgo.Member{User: &discordgo.User{ID: userID, Username: userID}},
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    name,
				Options: opts,
			},
		},
	}
}

func dmCommand(name, userID string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	i := command(name, userID, opts...)
	i.GuildID = ""
	i.ChannelID = "dm"
	i.Member = nil
	i.User = &discordgo.User{ID: userID, Username: userID}
	return i
}

func (b *testBot) run(i *discordgo.InteractionCreate) {
	b.h.handleInteraction(b.s, i)
}

func (b *testBot) current(t *testing.T, user string) (string, bool) {
	t.Helper()
	entry, ok, err := b.store.Current(context.Background(), user, "chan")
	require.NoError(t, err)
	return entry, ok
}

func TestWaifu_SavesOwnDraw(t *testing.T) {
	b := newTestBot(t, []string{"Rei Ayanami (Neon Genesis Evangelion)"}, HandlerConfig{})

	b.run(command("waifu", "alice"))

	msg, ephemeral := b.s.Last(t)
	assert.Equal(t, "[waifu] <@alice>, your waifu is Rei Ayanami (Neon Genesis Evangelion)", msg)
	assert.False(t, ephemeral)

	entry, ok := b.current(t, "alice")
	assert.True(t, ok)
	assert.Equal(t, "Rei Ayanami (Neon Genesis Evangelion)", entry)
}

func TestWaifu_NamingYourselfStillSaves(t *testing.T) {
	b := newTestBot(t, []string{"Asuka"}, HandlerConfig{})

	b.run(command("waifu", "alice", userOpt("alice")))

	_, ok := b.current(t, "alice")
	assert.True(t, ok)
}

func TestWaifu_ForSomeoneElseIsNotSaved(t *testing.T) {
	b := newTestBot(t, []string{"Asuka"}, HandlerConfig{})

	b.run(command("waifu", "alice", userOpt("bob")))

	msg, _ := b.s.Last(t)
	assert.Equal(t, "[waifu] <@bob>'s waifu is Asuka", msg)

	_, ok := b.current(t, "alice")
	assert.False(t, ok)
	_, ok = b.current(t, "bob")
	assert.False(t, ok)
}

func TestWaifu_EmptyCatalog(t *testing.T) {
	b := newTestBot(t, nil, HandlerConfig{})

	b.run(command("waifu", "alice"))

	msg, ephemeral := b.s.Last(t)
	assert.Contains(t, msg, "empty")
	assert.True(t, ephemeral)
	assert.Equal(t, 0, b.backend.Len())
}

func TestLastWaifu(t *testing.T) {
	ctx := context.Background()
	b := newTestBot(t, []string{"Asuka"}, HandlerConfig{})

	b.run(command("lastwaifu", "alice"))
	msg, _ := b.s.Last(t)
	assert.Equal(t, "[waifu] <@alice> hasn't gotten a waifu recently.", msg)

	require.NoError(t, b.store.Assign(ctx, "bob", "chan", "Misato"))
	b.run(command("lastwaifu", "alice", userOpt("bob")))
	msg, _ = b.s.Last(t)
	assert.Equal(t, "[waifu] <@bob>'s last waifu was Misato.", msg)

	require.NoError(t, b.store.RecordTheft(ctx, "alice", "bob", "chan", "Misato"))
	b.run(command("lastwaifu", "bob"))
	msg, _ = b.s.Last(t)
	assert.Equal(t, "[waifu] <@bob> *had* a waifu once, but <@alice> won her in a duel.", msg)
}

func TestLastWaifu_GuildOnly(t *testing.T) {
	b := newTestBot(t, []string{"Asuka"}, HandlerConfig{})

	b.run(dmCommand("lastwaifu", "alice"))

	msg, ephemeral := b.s.Last(t)
	assert.Contains(t, msg, guildOnly)
	assert.True(t, ephemeral)
}

func TestFight_ChallengerWins(t *testing.T) {
	ctx := context.Background()
	b := newTestBot(t, nil, HandlerConfig{FightCooldown: time.Minute})
	require.NoError(t, b.store.Assign(ctx, "bob", "chan", "Rei"))

	b.run(command("wifight", "alice", userOpt("bob")))

	msg, ephemeral := b.s.Last(t)
	assert.Equal(t, "[Waifu Fight!] <@alice> wins the duel, forcing Rei to marry them instead! <@bob> loses their waifu and is forever alone. (╥_╥)", msg)
	assert.False(t, ephemeral)

	entry, ok := b.current(t, "alice")
	assert.True(t, ok)
	assert.Equal(t, "Rei", entry)
	_, ok = b.current(t, "bob")
	assert.False(t, ok)

	// bob wins her back
	b.run(command("wifight", "bob", userOpt("alice")))
	msg, _ = b.s.Last(t)
	assert.Equal(t, "[Waifu Fight!] <@bob> wins Rei back from <@alice>! There is much rejoicing.", msg)
}

func TestFight_DefenderWins(t *testing.T) {
	ctx := context.Background()
	b := newTestBot(t, nil, HandlerConfig{Rand: oneRand{}})
	require.NoError(t, b.store.Assign(ctx, "bob", "chan", "Rei"))

	b.run(command("wifight", "alice", userOpt("bob")))

	msg, _ := b.s.Last(t)
	assert.True(t, strings.HasPrefix(msg, "[Waifu Fight!] <@bob> fends off <@alice>'s challenge"), msg)

	entry, ok := b.current(t, "bob")
	assert.True(t, ok)
	assert.Equal(t, "Rei", entry)
}

func TestFight_Cooldown(t *testing.T) {
	ctx := context.Background()
	b := newTestBot(t, nil, HandlerConfig{FightCooldown: time.Hour, Rand: oneRand{}})
	require.NoError(t, b.store.Assign(ctx, "bob", "chan", "Rei"))

	b.run(command("wifight", "alice", userOpt("bob")))
	b.run(command("wifight", "alice", userOpt("bob")))

	msg, ephemeral := b.s.Last(t)
	assert.True(t, strings.HasPrefix(msg, "[Waifu Fight!] Relax, <@alice>. You can challenge someone again in "), msg)
	assert.True(t, ephemeral)

	// cooldowns are per user
	b.run(command("wifight", "carol", userOpt("bob")))
	msg, _ = b.s.Last(t)
	assert.Contains(t, msg, "fends off <@carol>'s challenge")
}

func TestFight_FailedPreconditionsDoNotSpendCooldown(t *testing.T) {
	ctx := context.Background()
	b := newTestBot(t, nil, HandlerConfig{FightCooldown: time.Hour})

	b.run(command("wifight", "alice", userOpt("alice")))
	msg, _ := b.s.Last(t)
	assert.Equal(t, "[Waifu Fight!] You have to actually challenge **someone else**, smh.", msg)

	b.run(command("wifight", "alice", userOpt("dave")))
	msg, _ = b.s.Last(t)
	assert.Equal(t, "[Waifu Fight!] It isn't fair to steal someone's waifu behind their back, <@alice>.", msg)

	b.run(command("wifight", "alice", userOpt("bob")))
	msg, _ = b.s.Last(t)
	assert.Equal(t, "[Waifu Fight!] Sorry, <@bob> has to have a waifu before you can fight them for her.", msg)

	b.run(command("wifight", "alice"))
	msg, _ = b.s.Last(t)
	assert.Equal(t, "[Waifu Fight!] You have to actually challenge someone, smh.", msg)

	require.NoError(t, b.store.Assign(ctx, "bob", "chan", "Rei"))
	b.run(command("wifight", "alice", userOpt("bob")))
	msg, _ = b.s.Last(t)
	assert.Contains(t, msg, "wins the duel")
	assert.Equal(t, 2, b.backend.Len())
}

func TestFight_GuildOnly(t *testing.T) {
	b := newTestBot(t, nil, HandlerConfig{})

	b.run(dmCommand("wifight", "alice", userOpt("bob")))

	msg, ephemeral := b.s.Last(t)
	assert.Equal(t, FightPrefix+guildOnly, msg)
	assert.True(t, ephemeral)
}

func TestFmk(t *testing.T) {
	entries := []string{"Rei", "Asuka", "Misato"}
	b := newTestBot(t, entries, HandlerConfig{})

	b.run(command("fmk", "alice"))
	msg, _ := b.s.Last(t)
	require.True(t, strings.HasPrefix(msg, "[waifu] Fuck: "), msg)
	for _, e := range entries {
		assert.Contains(t, msg, e)
	}

	b.run(command("fmk", "alice", userOpt("bob")))
	msg, _ = b.s.Last(t)
	assert.True(t, strings.HasPrefix(msg, "[waifu] <@bob> will Fuck: "), msg)
	assert.True(t, strings.HasSuffix(msg, "."), msg)

	// fmk never touches ownership
	assert.Equal(t, 0, b.backend.Len())
}

func TestFmk_ShortLists(t *testing.T) {
	b := newTestBot(t, []string{"Rei", "Asuka"}, HandlerConfig{})
	b.run(command("fmk", "alice"))
	msg, _ := b.s.Last(t)
	assert.Equal(t, "[waifu] Sorry, looks like the waifu list is too short!", msg)

	b = newTestBot(t, nil, HandlerConfig{})
	b.run(command("fmk", "alice"))
	msg, _ = b.s.Last(t)
	assert.Equal(t, "[waifu] Sorry, looks like the waifu list is empty!", msg)
}

func TestSuggest(t *testing.T) {
	log := suggest.NewLog(filepath.Join(t.TempDir(), "suggestions.txt"))
	b := newTestBot(t, nil, HandlerConfig{Suggestions: log})

	b.run(command("waifusuggest", "alice", stringOpt("suggestion", "Yor Forger (Spy x Family)")))
	msg, ephemeral := b.s.Last(t)
	assert.Equal(t, "[waifu] Thanks! Your suggestion has been saved for review (1 waiting).", msg)
	assert.True(t, ephemeral)

	b.run(command("waifusuggest", "bob", stringOpt("suggestion", strings.Repeat("綾", suggest.MaxLength))))
	msg, _ = b.s.Last(t)
	assert.Contains(t, msg, "(2 waiting)")

	b.run(command("waifusuggest", "alice", stringOpt("suggestion", "   ")))
	msg, _ = b.s.Last(t)
	assert.Contains(t, msg, "actually suggest something")

	b.run(command("waifusuggest", "alice", stringOpt("suggestion", strings.Repeat("x", suggest.MaxLength+1))))
	msg, _ = b.s.Last(t)
	assert.Contains(t, msg, "under 300 characters")

	n, err := log.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSuggest_Disabled(t *testing.T) {
	b := newTestBot(t, nil, HandlerConfig{})

	b.run(command("waifusuggest", "alice", stringOpt("suggestion", "Yor Forger")))

	msg, _ := b.s.Last(t)
	assert.Contains(t, msg, "not taking suggestions")
}

func TestClearSuggestions_AdminOnly(t *testing.T) {
	log := suggest.NewLog(filepath.Join(t.TempDir(), "suggestions.txt"))
	require.NoError(t, log.Add("alice", "Yor Forger"))
	require.NoError(t, log.Add("bob", "Anya Forger"))
	b := newTestBot(t, nil, HandlerConfig{Suggestions: log, Admins: []string{"carol"}})

	b.run(command("waifuclearsuggestions", "alice"))
	msg, _ := b.s.Last(t)
	assert.Equal(t, OutputPrefix+adminOnly, msg)
	n, err := log.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	b.run(command("waifuclearsuggestions", "carol"))
	msg, _ = b.s.Last(t)
	assert.Equal(t, "[waifu] Cleared 2 suggestions.", msg)
	n, err = log.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIsAdmin_GuildPermission(t *testing.T) {
	b := newTestBot(t, nil, HandlerConfig{Admins: []string{"carol"}})

	i := command("waifureload", "alice")
	assert.False(t, b.h.isAdmin(i, "alice"))
	assert.True(t, b.h.isAdmin(i, "carol"))

	i.Member.Permissions = discordgo.PermissionAdministrator
	assert.True(t, b.h.isAdmin(i, "alice"))

	// DMs carry no member permissions
	assert.False(t, b.h.isAdmin(dmCommand("waifureload", "alice"), "alice"))
}

func TestReload(t *testing.T) {
	next := catalog.New([]string{"Rei", "Asuka", "Misato", "Ritsuko"}, nil)
	b := newTestBot(t, []string{"Rei"}, HandlerConfig{
		Admins: []string{"carol"},
		Reload: func() (*catalog.Catalog, error) { return next, nil },
	})

	b.run(command("waifureload", "alice"))
	msg, _ := b.s.Last(t)
	assert.Equal(t, OutputPrefix+adminOnly, msg)
	assert.Equal(t, 1, b.h.Catalog().Len())

	b.run(command("waifureload", "carol"))
	msg, _ = b.s.Last(t)
	assert.Equal(t, "[waifu] Reloaded 4 waifus.", msg)
	assert.Same(t, next, b.h.Catalog())
}

func TestReload_FailureKeepsCatalog(t *testing.T) {
	old := catalog.New([]string{"Rei"}, nil)
	b := newTestBot(t, nil, HandlerConfig{
		Admins: []string{"carol"},
		Reload: func() (*catalog.Catalog, error) {
			return nil, &catalog.SourceLoadError{Path: "extra.json", Err: fs.ErrNotExist}
		},
	})
	b.h.catalog.Store(old)

	b.run(command("waifureload", "carol"))

	msg, _ := b.s.Last(t)
	assert.True(t, strings.HasPrefix(msg, "[waifu] Couldn't reload extra.json"), msg)
	assert.Same(t, old, b.h.Catalog())
}

func TestReload_NotConfigured(t *testing.T) {
	b := newTestBot(t, nil, HandlerConfig{})

	_, err := b.h.Reload()
	assert.Error(t, err)
}

func stateSession(t *testing.T, guilds ...*discordgo.Guild) *discordgo.Session {
	t.Helper()
	s := &discordgo.Session{State: discordgo.NewState()}
	for _, g := range guilds {
		require.NoError(t, s.State.GuildAdd(g))
	}
	return s
}

func memberRemove(guildID, userID string) *discordgo.GuildMemberRemove {
	return &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: guildID, User: &discordgo.User{ID: userID}}}
}

func TestGuildMemberRemove_ScopedToGuild(t *testing.T) {
	ctx := context.Background()
	b := newTestBot(t, nil, HandlerConfig{FightCooldown: time.Hour})
	s := stateSession(t,
		&discordgo.Guild{ID: "guild", Channels: []*discordgo.Channel{{ID: "chan", GuildID: "guild"}, {ID: "chan2", GuildID: "guild"}}},
		&discordgo.Guild{ID: "otherguild", Channels: []*discordgo.Channel{{ID: "elsewhere", GuildID: "otherguild"}}},
	)
	require.NoError(t, b.store.Assign(ctx, "alice", "chan", "Rei"))
	require.NoError(t, b.store.Assign(ctx, "alice", "chan2", "Asuka"))
	require.NoError(t, b.store.Assign(ctx, "alice", "elsewhere", "Misato"))
	require.NoError(t, b.store.Assign(ctx, "bob", "chan", "Ritsuko"))
	b.h.cooldown.Spend("alice")

	b.h.GuildMemberRemove(s, memberRemove("guild", "alice"))

	_, ok := b.current(t, "alice")
	assert.False(t, ok)
	assert.Equal(t, 2, b.backend.Len())

	entry, ok, err := b.store.Current(ctx, "alice", "elsewhere")
	require.NoError(t, err)
	assert.True(t, ok, "records in other guilds survive")
	assert.Equal(t, "Misato", entry)

	_, ok = b.current(t, "bob")
	assert.True(t, ok)

	// cooldowns are per user, not per guild
	assert.NotZero(t, b.h.cooldown.Remaining("alice"))
}

func TestGuildMemberRemove_UnknownGuildKeepsRecords(t *testing.T) {
	ctx := context.Background()
	b := newTestBot(t, nil, HandlerConfig{})
	require.NoError(t, b.store.Assign(ctx, "alice", "chan", "Rei"))

	b.h.GuildMemberRemove(stateSession(t), memberRemove("guild", "alice"))
	b.h.GuildMemberRemove(nil, memberRemove("guild", "alice"))
	b.h.GuildMemberRemove(stateSession(t), &discordgo.GuildMemberRemove{})

	assert.Equal(t, 1, b.backend.Len())
}

func TestChannelDelete(t *testing.T) {
	ctx := context.Background()
	b := newTestBot(t, nil, HandlerConfig{})
	require.NoError(t, b.store.Assign(ctx, "alice", "chan", "Rei"))
	require.NoError(t, b.store.Assign(ctx, "bob", "chan", "Asuka"))
	require.NoError(t, b.store.Assign(ctx, "bob", "other", "Misato"))

	b.h.ChannelDelete(nil, &discordgo.ChannelDelete{Channel: &discordgo.Channel{ID: "chan"}})
	assert.Equal(t, 1, b.backend.Len())

	// malformed events are ignored
	b.h.ChannelDelete(nil, &discordgo.ChannelDelete{})
	assert.Equal(t, 1, b.backend.Len())
}

func TestUnknownCommandIsIgnored(t *testing.T) {
	b := newTestBot(t, nil, HandlerConfig{})

	b.run(command("nope", "alice"))

	assert.Empty(t, b.s.Responses)
}

func TestSlashCommandsHaveHandlers(t *testing.T) {
	require.Len(t, SlashCommandHandlers, len(SlashCommands))
	for _, cmd := range SlashCommands {
		_, ok := SlashCommandHandlers[cmd.Name]
		assert.True(t, ok, "no handler for /%s", cmd.Name)
	}
}
