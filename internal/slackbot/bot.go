// Package slackbot implements the Slack surface of the trading bot: slash
// commands, the trade modal, and ephemeral responses, all over socket mode.
package slackbot

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"tradebot/internal/accounts"
	"tradebot/internal/config"
	"tradebot/internal/engine"
	"tradebot/internal/router"
)

const genericErrMsg = ":warning: Something went wrong. Please try again or contact an admin."

// Bot wires slash commands and modal interactions to the trading engine.
type Bot struct {
	api     *slack.Client
	socket  *socketmode.Client
	engine  *engine.Engine
	manager *accounts.Manager
	router  *router.MultiBroker
	cfg     *config.Config
	log     *slog.Logger
}

// New creates a Bot over the given dependencies. The Slack clients are built
// from the tokens in cfg.
func New(cfg *config.Config, eng *engine.Engine, mgr *accounts.Manager, r *router.MultiBroker, log *slog.Logger) *Bot {
	api := slack.New(
		cfg.Slack.BotToken,
		slack.OptionAppLevelToken(cfg.Slack.AppToken),
	)
	return &Bot{
		api:     api,
		socket:  socketmode.New(api),
		engine:  eng,
		manager: mgr,
		router:  r,
		cfg:     cfg,
		log:     log,
	}
}

// Run starts the audit-event forwarder and the socket-mode event loop. It
// blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if b.cfg.Slack.AuditChannel != "" {
		go b.forwardAuditEvents(ctx)
	}

	handler := socketmode.NewSocketmodeHandler(b.socket)
	handler.Handle(socketmode.EventTypeSlashCommand, b.handleSlashCommand)
	handler.HandleInteraction(slack.InteractionTypeViewSubmission, b.handleViewSubmission)

	b.log.Info("slack bot starting", "accounts", len(b.cfg.Accounts))
	return handler.RunEventLoopContext(ctx)
}

// handleSlashCommand acks immediately and dispatches the actual work to a
// goroutine: Slack requires an ack within 3 seconds and trades routinely
// take longer than that.
func (b *Bot) handleSlashCommand(evt *socketmode.Event, client *socketmode.Client) {
	cmd, ok := evt.Data.(slack.SlashCommand)
	if !ok {
		return
	}
	client.Ack(*evt.Request)

	go func() {
		ctx := context.Background()
		switch cmd.Command {
		case "/trade":
			b.cmdTrade(ctx, cmd)
		case "/buy":
			b.cmdBuySell(ctx, cmd, "buy")
		case "/sell":
			b.cmdBuySell(ctx, cmd, "sell")
		case "/accounts":
			b.cmdAccounts(ctx, cmd)
		case "/assign-account":
			b.cmdAssignAccount(ctx, cmd)
		case "/my-account":
			b.cmdMyAccount(ctx, cmd)
		case "/account-users":
			b.cmdAccountUsers(ctx, cmd)
		default:
			b.ephemeral(cmd.ChannelID, cmd.UserID, "Unknown command: "+cmd.Command)
		}
	}()
}

// handleViewSubmission validates the trade modal, acking with field errors
// when the input is bad, then executes the trade in the background.
func (b *Bot) handleViewSubmission(evt *socketmode.Event, client *socketmode.Client) {
	callback, ok := evt.Data.(slack.InteractionCallback)
	if !ok {
		return
	}
	if callback.View.CallbackID != tradeModalCallbackID {
		client.Ack(*evt.Request)
		return
	}

	req, fieldErrs := parseTradeModalState(callback.View.State.Values)
	if len(fieldErrs) > 0 {
		client.Ack(*evt.Request, map[string]any{
			"response_action": "errors",
			"errors":          fieldErrs,
		})
		return
	}
	client.Ack(*evt.Request)

	req.UserID = callback.User.ID
	req.UserName = callback.User.Name
	req.ChannelID = callback.View.PrivateMetadata

	go b.executeAndReport(context.Background(), req)
}

// forwardAuditEvents posts assignment changes to the audit channel.
func (b *Bot) forwardAuditEvents(ctx context.Context) {
	id, ch := b.manager.Subscribe(16)
	defer b.manager.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			_, _, err := b.api.PostMessage(
				b.cfg.Slack.AuditChannel,
				slack.MsgOptionText(formatAuditEvent(e), false),
			)
			if err != nil {
				b.log.Warn("posting audit event", "error", err)
			}
		}
	}
}

// ephemeral posts a message only the user can see; failures are logged, not
// propagated — there is nowhere else to surface them.
func (b *Bot) ephemeral(channelID, userID, text string) {
	if _, err := b.api.PostEphemeral(channelID, userID, slack.MsgOptionText(text, false)); err != nil {
		b.log.Warn("posting ephemeral message", "channel", channelID, "error", err)
	}
}

// department returns the user's profile title as a department hint for the
// department assignment strategy. Lookup failures just mean no hint.
func (b *Bot) department(userID string) string {
	user, err := b.api.GetUserInfo(userID)
	if err != nil {
		return ""
	}
	return user.Profile.Title
}
