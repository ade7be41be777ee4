// Package notify defines the outbound message contract. Delivery is
// best-effort: callers log failures and move on, they never propagate them.
package notify

import "context"

// Notifier delivers outbound messages to a chat channel.
type Notifier interface {
	SendText(ctx context.Context, chatID, text string) error
	SendImage(ctx context.Context, chatID, imageRef, caption string) error
	// SendClaimOffer DMs a user an obfuscated prize image with a claim button.
	SendClaimOffer(ctx context.Context, userID string, prizeID int64, imageRef string) error
}
