package bot

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
)

const (
	apology   = "Sorry, something went wrong. Try again later?"
	guildOnly = "That only works in a server channel."
	adminOnly = "Only bot admins can do that."
)

// getUserFromInteraction extracts the user ID and name from an interaction
// It handles both guild (Member) and DM (User) contexts
// Returns userID, userName, and error if user cannot be determined
func getUserFromInteraction(i *discordgo.InteractionCreate) (string, string, error) {
	if i.Member != nil && i.Member.User != nil {
		userName := i.Member.User.Username
		if i.Member.User.GlobalName != "" {
			userName = i.Member.User.GlobalName
		}
		return i.Member.User.ID, userName, nil
	}

	if i.User != nil {
		userName := i.User.Username
		if i.User.GlobalName != "" {
			userName = i.User.GlobalName
		}
		return i.User.ID, userName, nil
	}

	return "", "", fmt.Errorf("could not determine user from interaction")
}

func findOption(i *discordgo.InteractionCreate, name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

// targetFromInteraction returns the ID given in the "user" option, if any.
func targetFromInteraction(i *discordgo.InteractionCreate) string {
	opt := findOption(i, "user")
	if opt == nil {
		return ""
	}
	return opt.UserValue(nil).ID
}

func stringOption(i *discordgo.InteractionCreate, name string) string {
	opt := findOption(i, name)
	if opt == nil {
		return ""
	}
	return opt.StringValue()
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func respond(s Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral // Only visible to the user who ran the command
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		log.Printf("Error responding to interaction: %v", err)
	}
}
