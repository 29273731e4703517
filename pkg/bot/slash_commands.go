package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"waifubot/pkg/catalog"
	"waifubot/pkg/duel"
	"waifubot/pkg/suggest"

	"github.com/bwmarrin/discordgo"
)

const fmkSize = 3

var targetOption = &discordgo.ApplicationCommandOption{
	Type:        discordgo.ApplicationCommandOptionUser,
	Name:        "user",
	Description: "Someone else to pick for",
}

// SlashCommands defines all available slash commands
var SlashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "waifu",
		Description: "Pick a random waifu for yourself or someone else",
		Options:     []*discordgo.ApplicationCommandOption{targetOption},
	},
	{
		Name:        "lastwaifu",
		Description: "Remind yourself of someone's last waifu in this channel",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "Whose waifu to look up",
		}},
	},
	{
		Name:        "wifight",
		Description: "Fight someone for their last waifu",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "Who to challenge",
			Required:    true,
		}},
	},
	{
		Name:        "fmk",
		Description: "Pick random waifus to fuck, marry and kill",
		Options:     []*discordgo.ApplicationCommandOption{targetOption},
	},
	{
		Name:        "waifusuggest",
		Description: "Suggest an addition to the waifu list",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "suggestion",
			Description: "Name (and franchise) to add",
			Required:    true,
			MaxLength:   suggest.MaxLength,
		}},
	},
	{
		Name:        "waifuclearsuggestions",
		Description: "Clear the waifu suggestion log (admins only)",
	},
	{
		Name:        "waifureload",
		Description: "Reload the waifu list from disk (admins only)",
	},
}

// SlashCommandHandlers maps command names to their handler functions
var SlashCommandHandlers = map[string]func(h *Handler, s Session, i *discordgo.InteractionCreate){
	"waifu":                 handleWaifuCommand,
	"lastwaifu":             handleLastWaifuCommand,
	"wifight":               handleFightCommand,
	"fmk":                   handleFmkCommand,
	"waifusuggest":          handleSuggestCommand,
	"waifuclearsuggestions": handleClearSuggestionsCommand,
	"waifureload":           handleReloadCommand,
}

func handleWaifuCommand(h *Handler, s Session, i *discordgo.InteractionCreate) {
	userID, _, err := getUserFromInteraction(i)
	if err != nil {
		log.Printf("Error: %v", err)
		return
	}

	choice, err := h.Catalog().PickRandom()
	if err != nil {
		respond(s, i, OutputPrefix+"Sorry, looks like the waifu list is empty!", true)
		return
	}

	target := targetFromInteraction(i)
	if target != "" && target != userID {
		respond(s, i, fmt.Sprintf("%s%s's waifu is %s", OutputPrefix, mention(target), choice), false)
		return
	}

	// only a draw for yourself becomes something you can fight over
	if err := h.store.Assign(context.Background(), userID, i.ChannelID, choice); err != nil {
		log.Printf("[Waifu] Error saving waifu for %s in %s: %v", userID, i.ChannelID, err)
		respond(s, i, OutputPrefix+apology, true)
		return
	}

	respond(s, i, fmt.Sprintf("%s%s, your waifu is %s", OutputPrefix, mention(userID), choice), false)
}

func handleLastWaifuCommand(h *Handler, s Session, i *discordgo.InteractionCreate) {
	userID, _, err := getUserFromInteraction(i)
	if err != nil {
		log.Printf("Error: %v", err)
		return
	}
	if i.GuildID == "" {
		respond(s, i, OutputPrefix+guildOnly, true)
		return
	}

	target := targetFromInteraction(i)
	if target == "" {
		target = userID
	}

	ctx := context.Background()
	waifu, ok, err := h.store.Current(ctx, target, i.ChannelID)
	if err != nil {
		log.Printf("[Waifu] Error reading waifu for %s in %s: %v", target, i.ChannelID, err)
		respond(s, i, OutputPrefix+apology, true)
		return
	}
	if ok {
		respond(s, i, fmt.Sprintf("%s%s's last waifu was %s.", OutputPrefix, mention(target), waifu), false)
		return
	}

	nemesis, ok, err := h.store.StolenBy(ctx, target, i.ChannelID)
	if err != nil {
		log.Printf("[Waifu] Error reading nemesis for %s in %s: %v", target, i.ChannelID, err)
		respond(s, i, OutputPrefix+apology, true)
		return
	}
	if ok {
		respond(s, i, fmt.Sprintf("%s%s *had* a waifu once, but %s won her in a duel.", OutputPrefix, mention(target), mention(nemesis)), false)
		return
	}

	respond(s, i, fmt.Sprintf("%s%s hasn't gotten a waifu recently.", OutputPrefix, mention(target)), false)
}

func handleFightCommand(h *Handler, s Session, i *discordgo.InteractionCreate) {
	userID, _, err := getUserFromInteraction(i)
	if err != nil {
		log.Printf("Error: %v", err)
		return
	}
	if i.GuildID == "" {
		respond(s, i, FightPrefix+guildOnly, true)
		return
	}

	if wait := h.cooldown.Remaining(userID); wait > 0 {
		respond(s, i, fmt.Sprintf("%sRelax, %s. You can challenge someone again in %s.",
			FightPrefix, mention(userID), wait.Round(time.Second)), true)
		return
	}

	target := targetFromInteraction(i)
	challenge := duel.Challenge{
		Challenger: userID,
		Defender:   target,
		Channel:    i.ChannelID,
	}
	if target != "" {
		_, err := s.GuildMember(i.GuildID, target)
		challenge.DefenderPresent = err == nil
	}

	outcome, err := h.resolver.Duel(context.Background(), challenge)
	if err != nil {
		log.Printf("[Fight] Error resolving duel %s vs %s in %s: %v", userID, target, i.ChannelID, err)
		respond(s, i, FightPrefix+apology, true)
		return
	}

	if err := outcome.Err(); err != nil {
		log.Printf("[Fight] %s challenged %s in %s: %v", userID, target, i.ChannelID, err)
	}

	// failed preconditions don't cost the challenger their cooldown
	if outcome.State == duel.ChallengerWins || outcome.State == duel.DefenderWins {
		h.cooldown.Spend(userID)
	}

	respond(s, i, FightPrefix+outcome.Message(mention(userID), mention(target)), false)
}

func handleFmkCommand(h *Handler, s Session, i *discordgo.InteractionCreate) {
	c := h.Catalog()
	sample, err := c.PickSample(fmkSize)
	if err != nil {
		condition := "too short"
		if c.Len() == 0 {
			condition = "empty"
		}
		respond(s, i, fmt.Sprintf("%sSorry, looks like the waifu list is %s!", OutputPrefix, condition), true)
		return
	}

	msg := fmt.Sprintf("Fuck: %s; Marry: %s; Kill: %s.", sample[0], sample[1], sample[2])
	if target := targetFromInteraction(i); target != "" {
		msg = mention(target) + " will " + msg
	}
	respond(s, i, OutputPrefix+msg, false)
}

func handleSuggestCommand(h *Handler, s Session, i *discordgo.InteractionCreate) {
	userID, userName, err := getUserFromInteraction(i)
	if err != nil {
		log.Printf("Error: %v", err)
		return
	}
	if h.suggestions == nil {
		respond(s, i, OutputPrefix+"Sorry, I'm not taking suggestions right now.", true)
		return
	}

	text := stringOption(i, "suggestion")
	if err := h.suggestions.Add(fmt.Sprintf("%s (%s)", userName, userID), text); err != nil {
		if errors.Is(err, suggest.ErrEmpty) {
			respond(s, i, OutputPrefix+"You have to actually suggest something, smh.", true)
			return
		}
		if errors.Is(err, suggest.ErrTooLong) {
			respond(s, i, fmt.Sprintf("%sPlease keep suggestions under %d characters.", OutputPrefix, suggest.MaxLength), true)
			return
		}
		log.Printf("[Waifu] Error saving suggestion from %s: %v", userID, err)
		respond(s, i, OutputPrefix+apology, true)
		return
	}

	waiting, err := h.suggestions.Count()
	if err != nil {
		log.Printf("[Waifu] Error counting suggestions: %v", err)
		respond(s, i, OutputPrefix+"Thanks! Your suggestion has been saved for review.", true)
		return
	}
	respond(s, i, fmt.Sprintf("%sThanks! Your suggestion has been saved for review (%d waiting).", OutputPrefix, waiting), true)
}

func handleClearSuggestionsCommand(h *Handler, s Session, i *discordgo.InteractionCreate) {
	userID, _, err := getUserFromInteraction(i)
	if err != nil {
		log.Printf("Error: %v", err)
		return
	}
	if !h.isAdmin(i, userID) {
		respond(s, i, OutputPrefix+adminOnly, true)
		return
	}
	if h.suggestions == nil {
		respond(s, i, OutputPrefix+"Suggestions are turned off, so there's nothing to clear.", true)
		return
	}

	n, err := h.suggestions.Clear()
	if err != nil {
		log.Printf("[Waifu] Error clearing suggestions: %v", err)
		respond(s, i, OutputPrefix+apology, true)
		return
	}

	log.Printf("[Waifu] %s cleared %d suggestion(s)", userID, n)
	respond(s, i, fmt.Sprintf("%sCleared %d suggestion%s.", OutputPrefix, n, plural(n)), true)
}

func handleReloadCommand(h *Handler, s Session, i *discordgo.InteractionCreate) {
	userID, _, err := getUserFromInteraction(i)
	if err != nil {
		log.Printf("Error: %v", err)
		return
	}
	if !h.isAdmin(i, userID) {
		respond(s, i, OutputPrefix+adminOnly, true)
		return
	}

	n, err := h.Reload()
	if err != nil {
		log.Printf("[Catalog] Reload requested by %s failed: %v", userID, err)
		var loadErr *catalog.SourceLoadError
		if errors.As(err, &loadErr) {
			respond(s, i, fmt.Sprintf("%sCouldn't reload %s: %v", OutputPrefix, loadErr.Path, loadErr.Err), true)
			return
		}
		respond(s, i, OutputPrefix+apology, true)
		return
	}

	respond(s, i, fmt.Sprintf("%sReloaded %d waifu%s.", OutputPrefix, n, plural(n)), true)
}

// RegisterSlashCommands registers all slash commands with Discord
func RegisterSlashCommands(s *discordgo.Session, guildID string) ([]*discordgo.ApplicationCommand, error) {
	log.Println("Registering slash commands...")

	registeredCommands := make([]*discordgo.ApplicationCommand, len(SlashCommands))

	for i, cmd := range SlashCommands {
		// Register globally (guildID = "") or for a specific guild
		registeredCmd, err := s.ApplicationCommandCreate(s.State.User.ID, guildID, cmd)
		if err != nil {
			log.Printf("Cannot create '%s' command: %v", cmd.Name, err)
			return nil, err
		}
		registeredCommands[i] = registeredCmd
		log.Printf("Registered command: %s", cmd.Name)
	}

	return registeredCommands, nil
}

// UnregisterSlashCommands removes all registered slash commands
func UnregisterSlashCommands(s *discordgo.Session, guildID string, commands []*discordgo.ApplicationCommand) error {
	log.Println("Unregistering slash commands...")

	for _, cmd := range commands {
		err := s.ApplicationCommandDelete(s.State.User.ID, guildID, cmd.ID)
		if err != nil {
			log.Printf("Cannot delete '%s' command: %v", cmd.Name, err)
			return err
		}
		log.Printf("Unregistered command: %s", cmd.Name)
	}

	return nil
}
