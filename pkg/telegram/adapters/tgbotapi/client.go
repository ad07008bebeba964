package tgbotapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
	"renamebot/pkg/telegram"
)

const defaultServer = "https://api.telegram.org"

// Bot represents a Telegram bot that implements telegram.Bot interface
type Bot struct {
	api          *tgbotapi.BotAPI
	fileEndpoint string // fmt pattern: token, file path
	log          *logger.Logger
	mu           sync.RWMutex
	running      bool
	webhookMode  bool
	msgHandler   func(telegram.Update)
	rateLimiter  *rate.Limiter

	// handlers counts running update handlers; draining refuses new ones
	handlers sync.WaitGroup
	draining bool
}

// Config contains Telegram bot configuration
type Config struct {
	Token string
	// APIEndpoint is the Bot API server root, e.g. http://localhost:8081 for a
	// self-hosted server. Empty means the public API.
	APIEndpoint    string
	Debug          bool
	Timeout        int // Update timeout in seconds
	WebhookMode    bool
	HTTPTimeout    time.Duration // for regular API calls
	FileTimeout    time.Duration // for uploads
	RateLimitBurst int
	RateLimitRate  int // per second
}

// NewBot creates a new Telegram bot instance that implements telegram.Bot interface
func NewBot(cfg Config, log *logger.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram bot token is required")
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 60
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.FileTimeout < cfg.HTTPTimeout {
		cfg.FileTimeout = cfg.HTTPTimeout
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 30
	}
	if cfg.RateLimitRate == 0 {
		cfg.RateLimitRate = 20
	}

	// uploads share the client, so the client timeout must cover the longest one
	httpClient := &http.Client{
		Timeout: cfg.FileTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	apiEndpoint, fileEndpoint := endpoints(cfg.APIEndpoint)
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, apiEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	api.Debug = cfg.Debug

	log.Infow("Authorized on account",
		"username", api.Self.UserName,
		"self_hosted", cfg.APIEndpoint != "",
	)

	return &Bot{
		api:          api,
		fileEndpoint: fileEndpoint,
		webhookMode:  cfg.WebhookMode,
		log:          log.With("component", "telegram_bot"),
		rateLimiter:  rate.NewLimiter(rate.Limit(cfg.RateLimitRate), cfg.RateLimitBurst),
	}, nil
}

// endpoints builds the method and file URL patterns for a server root
func endpoints(server string) (api, file string) {
	server = strings.TrimRight(strings.TrimSpace(server), "/")
	if server == "" {
		server = defaultServer
	}
	return server + "/bot%s/%s", server + "/file/bot%s/%s"
}

// Username returns the bot's @username
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Start begins polling for updates (or just blocks if webhook mode)
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.mu.Unlock()

	if b.webhookMode {
		b.log.Infow("Bot running in webhook mode, not starting polling")
		<-ctx.Done()
		b.markStopped()
		return nil
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := b.api.GetUpdatesChan(u)

	b.log.Infow("Starting to poll for updates")

	for {
		select {
		case <-ctx.Done():
			b.log.Infow("Stopping bot due to context cancellation")
			b.Stop()
			return nil

		case tgUpdate, ok := <-updates:
			if !ok {
				b.markStopped()
				return nil
			}
			b.dispatch(tgUpdate)
		}
	}
}

// Stop stops the bot
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	if !b.webhookMode {
		b.api.StopReceivingUpdates()
	}
	b.running = false
	b.log.Infow("Bot stopped")
}

func (b *Bot) markStopped() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}

// SetHandler sets the message handler (uses abstracted Update type)
func (b *Bot) SetHandler(handler func(telegram.Update)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgHandler = handler
}

// dispatch runs the handler in its own goroutine. A handler may block for a
// whole transfer.
func (b *Bot) dispatch(tgUpdate tgbotapi.Update) {
	b.mu.Lock()
	handler := b.msgHandler
	if handler == nil {
		b.mu.Unlock()
		return
	}
	if b.draining {
		b.mu.Unlock()
		b.log.Debugw("Dropping update while draining", "update_id", tgUpdate.UpdateID)
		return
	}
	b.handlers.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.handlers.Done()
		handler(convertUpdate(tgUpdate))
	}()
}

// Drain stops dispatching new updates and waits for running handlers to
// return. Cancel the handlers' context first, or Drain waits for whole
// transfers.
func (b *Bot) Drain(ctx context.Context) error {
	b.mu.Lock()
	b.draining = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.ErrTimeout, "update handlers still running")
	}
}

// IsRunning checks if bot is currently running
func (b *Bot) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// =============================================================================
// telegram.Bot Interface Implementation
// =============================================================================

func (b *Bot) wait(ctx context.Context) error {
	if err := b.rateLimiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}
	return nil
}

// SendMessage sends a text message and returns its id
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, opts telegram.MessageOptions) (int, error) {
	if err := b.wait(ctx); err != nil {
		return 0, err
	}

	sent, err := b.api.Send(buildMessage(chatID, text, opts))
	if err != nil {
		b.log.Warnw("Failed to send message", "chat_id", chatID, "error", err)
		return 0, apiError(err, "failed to send telegram message")
	}
	return sent.MessageID, nil
}

// EditMessage edits existing message
func (b *Bot) EditMessage(ctx context.Context, chatID int64, messageID int, text string, opts telegram.MessageOptions) error {
	if err := b.wait(ctx); err != nil {
		return err
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = parseMode(opts.ParseMode)
	edit.DisableWebPagePreview = opts.DisableWebPagePreview
	if opts.Keyboard != nil {
		kb := convertKeyboardToTgbotapi(*opts.Keyboard)
		edit.ReplyMarkup = &kb
	}

	if _, err := b.api.Send(edit); err != nil {
		// "message is not modified" is expected when progress did not move
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		b.log.Debugw("Failed to edit message", "chat_id", chatID, "message_id", messageID, "error", err)
		return apiError(err, "failed to edit telegram message")
	}
	return nil
}

// DeleteMessage deletes a message
func (b *Bot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := b.wait(ctx); err != nil {
		return err
	}

	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.log.Debugw("Failed to delete message", "chat_id", chatID, "message_id", messageID, "error", err)
		return errors.Wrap(err, "failed to delete telegram message")
	}
	return nil
}

// AnswerCallback answers callback query
func (b *Bot) AnswerCallback(ctx context.Context, callbackQueryID, text string, showAlert bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	callback := tgbotapi.NewCallback(callbackQueryID, text)
	callback.ShowAlert = showAlert

	if _, err := b.api.Request(callback); err != nil {
		b.log.Debugw("Failed to answer callback", "callback_id", callbackQueryID, "error", err)
		return errors.Wrap(err, "failed to answer callback query")
	}
	return nil
}

// FileURL resolves a file id to a download URL on the configured server
func (b *Bot) FileURL(ctx context.Context, fileID string) (string, error) {
	if err := b.wait(ctx); err != nil {
		return "", err
	}

	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", errors.Wrapf(err, "get file %s", fileID)
	}
	if file.FilePath == "" {
		return "", errors.Wrapf(errors.ErrUnavailable, "file %s has no download path", fileID)
	}
	return fmt.Sprintf(b.fileEndpoint, b.api.Token, strings.TrimLeft(file.FilePath, "/")), nil
}

// SendFile uploads a file. The reader is streamed into the request body, so
// reads on it track upload progress.
func (b *Bot) SendFile(ctx context.Context, upload telegram.FileUpload) (int, error) {
	if err := b.wait(ctx); err != nil {
		return 0, err
	}

	var (
		messageID int
		err       error
	)
	if upload.Kind == telegram.UploadVideo && upload.Width > 0 && upload.Height > 0 {
		messageID, err = b.sendVideoWithSize(upload)
	} else {
		var chattable tgbotapi.Chattable
		if chattable, err = buildUpload(upload); err != nil {
			return 0, err
		}
		var sent tgbotapi.Message
		sent, err = b.api.Send(chattable)
		messageID = sent.MessageID
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, errors.Join(ctxErr, err)
		}
		return 0, apiError(err, fmt.Sprintf("send %s %q", upload.Kind, upload.FileName))
	}
	return messageID, nil
}

// SendPhoto sends a photo Telegram already stores
func (b *Bot) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, opts telegram.MessageOptions) (int, error) {
	if err := b.wait(ctx); err != nil {
		return 0, err
	}

	sent, err := b.api.Send(buildPhoto(chatID, fileID, caption, opts))
	if err != nil {
		return 0, apiError(err, "failed to send telegram photo")
	}
	return sent.MessageID, nil
}

// CopyMessage copies messageID from fromChatID into toChatID
func (b *Bot) CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error) {
	if err := b.wait(ctx); err != nil {
		return 0, err
	}

	copied, err := b.api.CopyMessage(tgbotapi.NewCopyMessage(toChatID, fromChatID, messageID))
	if err != nil {
		return 0, apiError(err, "failed to copy telegram message")
	}
	return copied.MessageID, nil
}

func (b *Bot) sendVideoWithSize(upload telegram.FileUpload) (int, error) {
	params, files, err := videoRequest(upload)
	if err != nil {
		return 0, err
	}

	resp, err := b.api.UploadFiles("sendVideo", params, files)
	if err != nil {
		return 0, err
	}

	var sent tgbotapi.Message
	if err := json.Unmarshal(resp.Result, &sent); err != nil {
		return 0, errors.Wrap(err, "decode sendVideo response")
	}
	return sent.MessageID, nil
}

// =============================================================================
// Webhook
// =============================================================================

// SetWebhook configures the bot to use webhook mode
func (b *Bot) SetWebhook(webhookURL string) error {
	webhookConfig, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return errors.Wrap(err, "failed to create webhook config")
	}
	webhookConfig.MaxConnections = 40
	webhookConfig.AllowedUpdates = []string{"message", "callback_query"}

	if _, err := b.api.Request(webhookConfig); err != nil {
		return errors.Wrap(err, "failed to set webhook")
	}

	b.log.Infow("Webhook configured successfully", "url", webhookURL)
	return nil
}

// DeleteWebhook removes webhook and returns to polling mode
func (b *Bot) DeleteWebhook(dropPendingUpdates bool) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: dropPendingUpdates}); err != nil {
		return errors.Wrap(err, "failed to delete webhook")
	}
	b.log.Infow("Webhook deleted successfully")
	return nil
}

// GetWebhookInfo returns current webhook information
func (b *Bot) GetWebhookInfo() (telegram.WebhookInfo, error) {
	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return telegram.WebhookInfo{}, errors.Wrap(err, "failed to get webhook info")
	}

	return telegram.WebhookInfo{
		URL:                  info.URL,
		HasCustomCertificate: info.HasCustomCertificate,
		PendingUpdateCount:   info.PendingUpdateCount,
		LastErrorDate:        info.LastErrorDate,
		LastErrorMessage:     info.LastErrorMessage,
		MaxConnections:       info.MaxConnections,
	}, nil
}

// HandleWebhookRequest decodes an update posted by Telegram and dispatches it
func (b *Bot) HandleWebhookRequest(r *http.Request) error {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidInput, err.Error())
	}
	b.dispatch(*update)
	return nil
}

// Verify Bot implements telegram.Bot interface at compile time
var _ telegram.Bot = (*Bot)(nil)
