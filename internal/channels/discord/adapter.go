// Package discord connects the relay to Discord through the gateway and
// delivers agent answers back as replies and follow-ups.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/haasonsaas/relay/internal/channels"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/pkg/models"
)

// Metadata keys set on inbound messages.
const (
	MetaChannelID   = "discord_channel_id"
	MetaMessageID   = "discord_message_id"
	MetaGuildID     = "discord_guild_id"
	MetaInteraction = "discord_interaction"
)

const messageQueueSize = 100

// Intents requested on the gateway connection. Message content is privileged
// and must be enabled for the bot in the developer portal.
const Intents = discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// SlashCommands are registered when an application id is known.
var SlashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "ask",
		Description: "Ask the agent",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "text",
				Description: "What to ask",
				Required:    true,
			},
		},
	},
	{
		Name:        "reset",
		Description: "Forget the agent session for this channel",
	},
}

// discordSession interface allows for mocking the Discord session in tests.
type discordSession interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// Config holds configuration for the Discord adapter.
type Config struct {
	// Token is the bot token from the Discord Developer Portal (required).
	Token string

	// AppID enables slash command registration. Falls back to the bot user id
	// seen on ready.
	AppID string

	// GuildID scopes slash commands to one guild. Empty registers globally.
	GuildID string

	// RegisterCommands installs /ask and /reset on start.
	RegisterCommands bool

	// MaxReconnectAttempts is the maximum number of reconnection attempts.
	MaxReconnectAttempts int

	// ReconnectBackoff is the maximum backoff duration for reconnections.
	ReconnectBackoff time.Duration

	// RateLimit is the outbound call rate (operations per second).
	RateLimit float64

	// RateBurst is the burst capacity for RateLimit.
	RateBurst int

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return channels.ErrConfig("discord bot token is required", nil)
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectBackoff == 0 {
		c.ReconnectBackoff = 60 * time.Second
	}
	if c.RateLimit == 0 {
		c.RateLimit = 5
	}
	if c.RateBurst == 0 {
		c.RateBurst = 10
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter is the Discord connection. It implements channels.Adapter and the
// dispatcher's Responder.
type Adapter struct {
	config      Config
	session     discordSession
	status      channels.Status
	botUserID   string
	messages    chan *models.Message
	closed      bool
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	reconnects  int
	rateLimiter *channels.RateLimiter
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewAdapter creates a Discord adapter with the given configuration.
func NewAdapter(config Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		config:      config,
		messages:    make(chan *models.Message, messageQueueSize),
		rateLimiter: channels.NewRateLimiter(config.RateLimit, config.RateBurst),
		metrics:     config.Metrics,
		logger:      config.Logger.With("adapter", "discord"),
	}, nil
}

// Start opens the gateway connection and registers event handlers.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status.Connected {
		return channels.ErrInternal("adapter already started", nil)
	}
	if a.closed {
		return channels.ErrInternal("adapter already stopped", nil)
	}

	a.logger.Info("starting discord adapter", "rate_limit", a.config.RateLimit)

	if a.session == nil {
		dg, err := discordgo.New("Bot " + a.config.Token)
		if err != nil {
			a.recordError(channels.ErrCodeAuthentication)
			return channels.ErrAuthentication("failed to create discord session", err)
		}
		dg.Identify.Intents = Intents
		a.session = dg
	}

	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))

	a.session.AddHandler(a.handleMessageCreate)
	a.session.AddHandler(a.handleInteractionCreate)
	a.session.AddHandler(a.handleReady)
	a.session.AddHandler(a.handleDisconnect)

	if err := a.connectWithRetry(ctx); err != nil {
		a.cancel()
		a.recordError(channels.ErrCodeConnection)
		return channels.ErrConnection("failed to connect to discord", err)
	}

	a.status.Connected = true
	a.status.Error = ""
	a.status.LastPing = time.Now().Unix()

	if a.config.RegisterCommands {
		if err := a.registerSlashCommands(); err != nil {
			a.logger.Warn("slash command registration failed", "error", err)
		}
	}

	a.logger.Info("discord adapter started")
	return nil
}

// Stop closes the gateway connection and the Messages channel.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	wasConnected := a.status.Connected
	a.status.Connected = false
	if a.cancel != nil {
		a.cancel()
	}
	close(a.messages)
	a.mu.Unlock()

	a.logger.Info("stopping discord adapter")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("stop timeout, forcing shutdown")
	}

	if !wasConnected || a.session == nil {
		return nil
	}
	if err := a.session.Close(); err != nil {
		a.recordError(channels.ErrCodeConnection)
		a.logger.Error("failed to close discord session", "error", err)
		return channels.ErrConnection("failed to close discord session", err)
	}

	a.logger.Info("discord adapter stopped")
	return nil
}

// Messages returns the inbound message stream.
func (a *Adapter) Messages() <-chan *models.Message {
	return a.messages
}

// Status returns the current connection status.
func (a *Adapter) Status() channels.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Reply answers msg: a reply referencing the original message, or the edit
// of the deferred interaction response for slash commands.
func (a *Adapter) Reply(ctx context.Context, msg *models.Message, text string) error {
	if interaction := interactionOf(msg); interaction != nil {
		return a.call(ctx, "interaction_edit", func() error {
			_, err := a.session.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{Content: &text})
			return err
		})
	}

	channelID, err := channelIDOf(msg)
	if err != nil {
		return err
	}
	ref := &discordgo.MessageReference{
		MessageID: msg.ID,
		ChannelID: channelID,
		GuildID:   msg.MetadataString(MetaGuildID),
	}
	return a.call(ctx, "reply", func() error {
		_, err := a.session.ChannelMessageSendReply(channelID, text, ref)
		return err
	})
}

// Send posts a follow-up in the conversation msg came from.
func (a *Adapter) Send(ctx context.Context, msg *models.Message, text string) error {
	if interaction := interactionOf(msg); interaction != nil {
		return a.call(ctx, "followup", func() error {
			_, err := a.session.FollowupMessageCreate(interaction, true, &discordgo.WebhookParams{Content: text})
			return err
		})
	}

	channelID, err := channelIDOf(msg)
	if err != nil {
		return err
	}
	return a.call(ctx, "send", func() error {
		_, err := a.session.ChannelMessageSend(channelID, text)
		return err
	})
}

// Typing shows the typing indicator. Slash commands already show a thinking
// state from the deferred response.
func (a *Adapter) Typing(ctx context.Context, msg *models.Message) error {
	if interactionOf(msg) != nil {
		return nil
	}
	channelID, err := channelIDOf(msg)
	if err != nil {
		return err
	}
	if !a.Status().Connected {
		return channels.ErrUnavailable("adapter not connected", nil)
	}
	if err := a.session.ChannelTyping(channelID); err != nil {
		return classify("typing", err)
	}
	return nil
}

// call runs one outbound REST call behind the outbound pacer. Failures are
// classified and returned as-is; nothing is retried.
func (a *Adapter) call(ctx context.Context, op string, fn func() error) error {
	if err := a.rateLimiter.Wait(ctx); err != nil {
		a.recordError(channels.ErrCodeTimeout)
		return channels.ErrTimeout("rate limit wait cancelled", err)
	}
	if !a.Status().Connected {
		a.recordError(channels.ErrCodeUnavailable)
		return channels.ErrUnavailable("adapter not connected", nil)
	}

	err := classify(op, fn())
	if err != nil {
		a.recordError(channels.GetErrorCode(err))
		a.logger.Warn("discord call failed", "op", op, "error", err)
	}
	return err
}

// registerSlashCommands installs SlashCommands for the configured application.
func (a *Adapter) registerSlashCommands() error {
	appID := a.config.AppID
	if appID == "" {
		appID = a.botUserID
	}
	if dg, ok := a.session.(*discordgo.Session); ok && appID == "" && dg.State != nil && dg.State.User != nil {
		appID = dg.State.User.ID
	}
	if appID == "" {
		return channels.ErrConfig("application id unknown, set DISCORD_APP_ID", nil)
	}

	a.logger.Info("registering slash commands",
		"guild_id", a.config.GuildID,
		"command_count", len(SlashCommands))

	if _, err := a.session.ApplicationCommandBulkOverwrite(appID, a.config.GuildID, SlashCommands); err != nil {
		a.recordError(channels.ErrCodeInternal)
		return channels.ErrInternal("failed to register slash commands", err)
	}
	return nil
}

// Event handlers

func (a *Adapter) handleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}

	a.mu.RLock()
	botID := a.botUserID
	a.mu.RUnlock()
	if botID != "" && m.Author.ID == botID {
		return
	}

	a.logger.Debug("received message",
		"channel_id", m.ChannelID,
		"user_id", m.Author.ID,
		"content_length", len(m.Content))

	a.enqueue(convertMessage(m.Message, botID))
}

func (a *Adapter) handleInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	if data.Name != "ask" && data.Name != "reset" {
		return
	}

	a.logger.Debug("received interaction",
		"interaction_id", i.ID,
		"command_name", data.Name)

	err := a.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		a.recordError(channels.ErrCodeInternal)
		a.logger.Error("failed to acknowledge interaction", "interaction_id", i.ID, "error", err)
		return
	}

	a.enqueue(convertInteraction(i.Interaction, data))
}

func (a *Adapter) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.status.Connected = true
	a.status.Degraded = false
	a.status.Error = ""
	a.status.LastPing = time.Now().Unix()
	a.reconnects = 0

	if r == nil || r.User == nil {
		return
	}
	a.botUserID = r.User.ID
	a.logger.Info("bot logged in",
		"user", r.User.Username,
		"user_id", r.User.ID,
		"guilds", len(r.Guilds))
}

func (a *Adapter) handleDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.status.Connected = false
	a.status.Error = "disconnected from discord"
	a.logger.Warn("disconnected from discord")
	a.recordError(channels.ErrCodeConnection)

	a.wg.Add(1)
	go a.reconnect()
}

// enqueue hands msg to the dispatcher without blocking the gateway loop.
func (a *Adapter) enqueue(msg *models.Message) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return
	}
	select {
	case a.messages <- msg:
	default:
		a.logger.Warn("messages channel full, dropping message",
			"conversation_id", msg.ConversationID)
		a.recordError(channels.ErrCodeUnavailable)
	}
}

// Reconnection logic

func (a *Adapter) connectWithRetry(ctx context.Context) error {
	var err error
	maxAttempts := a.config.MaxReconnectAttempts

	for attempt := 0; attempt < maxAttempts; attempt++ {
		a.logger.Info("connecting to discord",
			"attempt", attempt+1,
			"max_attempts", maxAttempts)

		if err = a.session.Open(); err == nil {
			return nil
		}

		backoff := calculateBackoff(attempt, a.config.ReconnectBackoff)
		a.logger.Warn("connection failed, retrying",
			"error", err,
			"attempt", attempt+1,
			"backoff_ms", backoff.Milliseconds())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

func (a *Adapter) reconnect() {
	defer a.wg.Done()

	a.mu.Lock()
	a.reconnects++
	attempt := a.reconnects
	maxAttempts := a.config.MaxReconnectAttempts
	if maxAttempts > 0 && attempt > maxAttempts {
		a.status.Error = fmt.Sprintf("max reconnection attempts (%d) reached", maxAttempts)
		a.mu.Unlock()
		a.logger.Error("max reconnection attempts reached", "max", maxAttempts)
		return
	}
	a.status.Degraded = true
	a.mu.Unlock()

	a.logger.Info("attempting reconnection", "attempt", attempt, "max", maxAttempts)

	select {
	case <-a.ctx.Done():
		return
	case <-time.After(calculateBackoff(attempt, a.config.ReconnectBackoff)):
	}

	err := a.session.Open()
	// discordgo reconnects on its own; an already open socket means it won.
	if errors.Is(err, discordgo.ErrWSAlreadyOpen) {
		err = nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil {
		a.status.Error = fmt.Sprintf("reconnection attempt %d failed: %v", attempt, err)
		a.recordError(channels.ErrCodeConnection)
		a.logger.Error("reconnection failed", "error", err, "attempt", attempt)
		return
	}
	a.status.Connected = !a.closed
	a.status.Degraded = false
	a.status.Error = ""
	a.status.LastPing = time.Now().Unix()
	a.reconnects = 0
	a.logger.Info("reconnection successful")
}

func calculateBackoff(attempt int, maxWait time.Duration) time.Duration {
	// 1s, 2s, 4s, 8s, ...
	if attempt > 30 {
		return maxWait
	}
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > maxWait {
		backoff = maxWait
	}
	return backoff
}

func (a *Adapter) recordError(code channels.ErrorCode) {
	a.metrics.RecordError("discord", string(code))
}

// classify wraps a discordgo failure in a channels.Error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isRateLimitError(err) {
		return channels.ErrRateLimit("discord rate limit exceeded", err)
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case 401, 403:
			return channels.ErrAuthentication(op+" forbidden", err)
		case 400, 404:
			return channels.ErrInvalidInput(op+" rejected", err)
		}
		if restErr.Response.StatusCode >= 500 {
			return channels.ErrUnavailable(op+" failed", err)
		}
	}
	return channels.ErrInternal(op+" failed", err)
}

func isRateLimitError(err error) bool {
	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == 429 {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "Too Many Requests")
}

// Message conversion

func convertMessage(m *discordgo.Message, botID string) *models.Message {
	mentioned := false
	for _, user := range m.Mentions {
		if user != nil && botID != "" && user.ID == botID {
			mentioned = true
			break
		}
	}

	createdAt := m.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return &models.Message{
		ID:             m.ID,
		Channel:        models.ChannelDiscord,
		Direction:      models.DirectionInbound,
		Role:           models.RoleUser,
		ConversationID: m.ChannelID,
		AuthorID:       m.Author.ID,
		AuthorName:     m.Author.Username,
		AuthorIsBot:    m.Author.Bot,
		InGuild:        m.GuildID != "",
		Mentioned:      mentioned,
		SelfMentions:   selfMentions(botID),
		Content:        strings.TrimSpace(m.Content),
		Metadata: map[string]any{
			MetaChannelID: m.ChannelID,
			MetaMessageID: m.ID,
			MetaGuildID:   m.GuildID,
		},
		CreatedAt: createdAt,
	}
}

// selfMentions lists both user mention forms Discord may render for the bot.
func selfMentions(botID string) []string {
	if botID == "" {
		return nil
	}
	return []string{"<@" + botID + ">", "<@!" + botID + ">"}
}

// convertInteraction turns /ask and /reset into messages. Invoking a command
// addresses the bot, so it counts as a mention.
func convertInteraction(i *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) *models.Message {
	var author *discordgo.User
	switch {
	case i.Member != nil && i.Member.User != nil:
		author = i.Member.User
	case i.User != nil:
		author = i.User
	default:
		author = &discordgo.User{}
	}

	var text string
	for _, opt := range data.Options {
		if opt != nil && opt.Name == "text" && opt.Type == discordgo.ApplicationCommandOptionString {
			text = opt.StringValue()
		}
	}

	return &models.Message{
		ID:             i.ID,
		Channel:        models.ChannelDiscord,
		Direction:      models.DirectionInbound,
		Role:           models.RoleUser,
		ConversationID: i.ChannelID,
		AuthorID:       author.ID,
		AuthorName:     author.Username,
		AuthorIsBot:    author.Bot,
		InGuild:        i.GuildID != "",
		Mentioned:      true,
		Command:        data.Name,
		Content:        strings.TrimSpace(text),
		Metadata: map[string]any{
			MetaChannelID:   i.ChannelID,
			MetaGuildID:     i.GuildID,
			MetaInteraction: i,
		},
		CreatedAt: time.Now(),
	}
}

func interactionOf(msg *models.Message) *discordgo.Interaction {
	if msg == nil || msg.Metadata == nil {
		return nil
	}
	interaction, _ := msg.Metadata[MetaInteraction].(*discordgo.Interaction)
	return interaction
}

func channelIDOf(msg *models.Message) (string, error) {
	if msg == nil {
		return "", channels.ErrInvalidInput("message is nil", nil)
	}
	if id := msg.MetadataString(MetaChannelID); id != "" {
		return id, nil
	}
	if msg.ConversationID != "" {
		return msg.ConversationID, nil
	}
	return "", channels.ErrInvalidInput("missing discord channel id", nil)
}
