package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/prizehunt/prizebot/internal/auction"
	"github.com/prizehunt/prizebot/internal/balance"
	"github.com/prizehunt/prizebot/internal/giveaway"
	"github.com/prizehunt/prizebot/internal/rating"
)

const ratingLimit = 10

// Handlers process Discord interactions.
type Handlers struct {
	ledger    *balance.Ledger
	engine    *auction.Engine
	giveaways *giveaway.Manager
	ratings   *rating.Service
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewHandlers creates new command handlers.
func NewHandlers(ledger *balance.Ledger, engine *auction.Engine, giveaways *giveaway.Manager, ratings *rating.Service, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	return &Handlers{
		ledger:    ledger,
		engine:    engine,
		giveaways: giveaways,
		ratings:   ratings,
		logger:    logger,
		tracer:    tp.Tracer("github.com/prizehunt/prizebot/internal/bot/commands"),
	}
}

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "register",
			Description: "Register to bid on auctions and receive giveaways",
		},
		{
			Name:        "balance",
			Description: "Check your point balance",
		},
		{
			Name:        "rating",
			Description: "Show the top prize collectors",
		},
		{
			Name:        "collection",
			Description: "Show the prizes you have won",
		},
		{
			Name:        "auction-start",
			Description: "Start a prize auction in this channel",
		},
		{
			Name:        "bid",
			Description: "Place a bid on the running auction",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionNumber,
					Name:        "amount",
					Description: "Your bid in points",
					Required:    true,
				},
			},
		},
		{
			Name:        "auction-info",
			Description: "Show the current bid and time left",
		},
	}
}

// InteractionCreate handles slash commands and claim button presses.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type == discordgo.InteractionMessageComponent {
		h.handleComponent(s, i)
		return
	}
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx, span := h.tracer.Start(context.Background(), "InteractionCreate",
		trace.WithAttributes(attribute.String("command", i.ApplicationCommandData().Name)),
	)
	defer span.End()

	switch i.ApplicationCommandData().Name {
	case "register":
		h.handleRegister(ctx, s, i)
	case "balance":
		h.handleBalance(ctx, s, i)
	case "rating":
		h.handleRating(ctx, s, i)
	case "collection":
		h.handleCollection(ctx, s, i)
	case "auction-start":
		h.handleAuctionStart(ctx, s, i)
	case "bid":
		h.handleBid(ctx, s, i)
	case "auction-info":
		h.handleAuctionInfo(ctx, s, i)
	default:
		respond(s, i, "Unknown command")
	}
}

func (h *Handlers) handleRegister(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	created, err := h.ledger.RegisterUser(ctx, user.ID, user.Username)
	if err != nil {
		respond(s, i, "Registration failed, please try again later.")
		return
	}
	if !created {
		respond(s, i, "You are already registered.")
		return
	}
	bal, err := h.ledger.GetBalance(ctx, user.ID)
	if err != nil {
		respond(s, i, "Welcome! You are registered.")
		return
	}
	respond(s, i, fmt.Sprintf("Welcome, **%s**! Your starting balance is **%s** points.", user.Username, bal))
}

func (h *Handlers) handleBalance(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	bal, err := h.ledger.GetBalance(ctx, user.ID)
	if err != nil {
		respond(s, i, "Could not load your balance, please try again later.")
		return
	}
	respond(s, i, fmt.Sprintf("Your balance: **%s** points", bal))
}

func (h *Handlers) handleRating(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	entries, err := h.ratings.Top(ctx, ratingLimit)
	if err != nil {
		respond(s, i, "Could not load the leaderboard, please try again later.")
		return
	}
	if len(entries) == 0 {
		respond(s, i, "No prizes have been won yet.")
		return
	}
	var b strings.Builder
	b.WriteString("**Top prize collectors:**\n")
	for idx, e := range entries {
		fmt.Fprintf(&b, "%d. %s — %d prizes\n", idx+1, e.Username, e.Prizes)
	}
	respond(s, i, b.String())
}

func (h *Handlers) handleCollection(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	prizes, err := h.ratings.Collection(ctx, user.ID)
	if err != nil {
		respond(s, i, "Could not load your collection, please try again later.")
		return
	}
	if len(prizes) == 0 {
		respond(s, i, "Your collection is empty. Win an auction or claim a giveaway!")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Your collection (%d prizes):**\n", len(prizes))
	for _, p := range prizes {
		fmt.Fprintf(&b, "- Prize #%d: %s\n", p.ID, p.ImageRef)
	}
	respond(s, i, b.String())
}

func (h *Handlers) handleAuctionStart(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	a, err := h.engine.Start(ctx, i.ChannelID)
	if err != nil {
		switch {
		case errors.Is(err, auction.ErrAuctionOpen):
			respond(s, i, "An auction is already running in this channel.")
		case errors.Is(err, auction.ErrNoPrize):
			respond(s, i, "No prizes left in the pool. Check back later!")
		default:
			respond(s, i, "Could not start the auction, please try again later.")
		}
		return
	}
	respond(s, i, fmt.Sprintf("A mystery prize is up for auction! Bid with `/bid`. %s", a.HiddenRef))
}

func (h *Handlers) handleBid(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options
	amount := decimal.NewFromFloat(opts[0].FloatValue())
	user := interactionUser(i)

	if amount.LessThanOrEqual(decimal.Zero) {
		respond(s, i, "Your bid must be a positive amount.")
		return
	}

	err := h.engine.PlaceBid(ctx, i.ChannelID, user.ID, amount)
	if err != nil {
		var tooLow *auction.BidTooLowError
		switch {
		case errors.Is(err, auction.ErrNotActive):
			respond(s, i, "There is no active auction in this channel.")
		case errors.Is(err, auction.ErrInsufficientFunds):
			respond(s, i, "You don't have enough points for that bid.")
		case errors.As(err, &tooLow):
			respond(s, i, fmt.Sprintf("Your bid must be higher than the current bid of **%s**.", tooLow.Floor))
		default:
			respond(s, i, "Your bid could not be placed, please try again later.")
		}
		return
	}
	respond(s, i, fmt.Sprintf("Bid of **%s** points placed. You are in the lead!", amount))
}

func (h *Handlers) handleAuctionInfo(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	info := h.engine.Info(i.ChannelID)
	if info == nil || !info.Active {
		respond(s, i, "There is no active auction in this channel.")
		return
	}
	if info.CurrentBid.IsZero() {
		respond(s, i, fmt.Sprintf("No bids yet. **%ds** left.", info.SecondsLeft))
		return
	}
	respond(s, i, fmt.Sprintf("Current bid: **%s** points. **%ds** left.", info.CurrentBid, info.SecondsLeft))
}

// handleComponent processes claim button presses from giveaway DMs.
func (h *Handlers) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	if !strings.HasPrefix(customID, "claim:") {
		return
	}

	ctx, span := h.tracer.Start(context.Background(), "InteractionCreate",
		trace.WithAttributes(attribute.String("component", customID)),
	)
	defer span.End()

	prizeID, err := strconv.ParseInt(strings.TrimPrefix(customID, "claim:"), 10, 64)
	if err != nil {
		respond(s, i, "That claim offer is no longer valid.")
		return
	}
	user := interactionUser(i)

	prize, err := h.giveaways.Claim(ctx, user.ID, prizeID)
	if err != nil {
		switch {
		case errors.Is(err, giveaway.ErrTooLate):
			respond(s, i, "Too late! All copies of this prize were claimed.")
		case errors.Is(err, giveaway.ErrAlreadyClaimed):
			respond(s, i, "You already claimed this prize.")
		default:
			respond(s, i, "The claim failed, please try again later.")
		}
		return
	}
	h.ratings.Invalidate(ctx)
	respond(s, i, fmt.Sprintf("Congratulations! Prize #%d is yours: %s", prize.ID, prize.ImageRef))
}

// interactionUser returns the invoking user for both guild and DM
// interactions; discordgo fills Member in guilds and User in DMs.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
		},
	})
}
