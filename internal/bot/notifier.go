package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Notifier delivers engine and giveaway announcements over Discord. Chat
// IDs are channel IDs; claim offers go to users, so those open a DM
// channel first.
type Notifier struct {
	session *discordgo.Session
	logger  *slog.Logger
}

// NewNotifier returns a Notifier backed by an open Discord session.
func NewNotifier(session *discordgo.Session, logger *slog.Logger) *Notifier {
	return &Notifier{session: session, logger: logger}
}

// SendText posts a plain message to a channel.
func (n *Notifier) SendText(ctx context.Context, chatID, text string) error {
	if _, err := n.session.ChannelMessageSend(chatID, text); err != nil {
		return fmt.Errorf("sending message to %s: %w", chatID, err)
	}
	return nil
}

// SendImage posts an image with a caption to a channel.
func (n *Notifier) SendImage(ctx context.Context, chatID, imageRef, caption string) error {
	_, err := n.session.ChannelMessageSendComplex(chatID, &discordgo.MessageSend{
		Content: caption,
		Embed: &discordgo.MessageEmbed{
			Image: &discordgo.MessageEmbedImage{URL: imageRef},
		},
	})
	if err != nil {
		return fmt.Errorf("sending image to %s: %w", chatID, err)
	}
	return nil
}

// SendClaimOffer DMs a user the obfuscated prize image with a claim
// button. The button's custom ID carries the prize ID for the component
// interaction handler.
func (n *Notifier) SendClaimOffer(ctx context.Context, userID string, prizeID int64, imageRef string) error {
	ch, err := n.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("opening DM channel for %s: %w", userID, err)
	}
	_, err = n.session.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{
		Content: "A mystery prize is up for grabs! First come, first served.",
		Embed: &discordgo.MessageEmbed{
			Image: &discordgo.MessageEmbedImage{URL: imageRef},
		},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Claim",
						Style:    discordgo.PrimaryButton,
						CustomID: fmt.Sprintf("claim:%d", prizeID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sending claim offer to %s: %w", userID, err)
	}
	return nil
}
