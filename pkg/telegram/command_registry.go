package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
)

// CommandContext contains all data for command execution
type CommandContext struct {
	Ctx        context.Context
	UserID     int64
	ChatID     int64
	MessageID  int
	Command    string
	Args       string
	Message    *Message // full message, for commands that read the reply target
	Bot        Bot
	IsAdmin    bool
	RawMessage string
}

// Reply sends an HTML message to the command's chat
func (c *CommandContext) Reply(text string) error {
	_, err := c.Bot.SendMessage(c.Ctx, c.ChatID, text, MessageOptions{ParseMode: ParseModeHTML})
	return err
}

// CommandHandler is a function that handles a command
type CommandHandler func(ctx *CommandContext) error

// CommandMiddleware wraps command handlers with additional logic
type CommandMiddleware func(next CommandHandler) CommandHandler

// CommandConfig defines a command registration
type CommandConfig struct {
	Name        string              // Primary command name (e.g., "set_prefix")
	Aliases     []string            // Alternative names
	Description string              // Help text
	Usage       string              // Usage example (e.g., "/set_prefix <text>")
	Handler     CommandHandler      // Command handler function
	Middleware  []CommandMiddleware // Command-specific middleware
	Hidden      bool                // Don't show in /help
	Category    string              // Command category (e.g., "Naming", "Caption")
}

// CommandRegistry manages command registration and routing
type CommandRegistry struct {
	mu         sync.RWMutex
	commands   map[string]*CommandConfig // command name or alias -> config
	middleware []CommandMiddleware
	bot        Bot
	log        *logger.Logger
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry(bot Bot, log *logger.Logger) *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]*CommandConfig),
		bot:      bot,
		log:      log.With("component", "command_registry"),
	}
}

// Register registers a command with the registry
func (cr *CommandRegistry) Register(config CommandConfig) error {
	if config.Name == "" {
		return errors.Wrap(errors.ErrInvalidInput, "command without name")
	}
	if config.Handler == nil {
		return errors.Wrapf(errors.ErrInvalidInput, "command %s without handler", config.Name)
	}

	cr.mu.Lock()
	defer cr.mu.Unlock()

	names := append([]string{config.Name}, config.Aliases...)
	for _, name := range names {
		if _, exists := cr.commands[name]; exists {
			return errors.Wrapf(errors.ErrAlreadyExists, "command %s", name)
		}
	}
	for _, name := range names {
		cr.commands[name] = &config
	}

	cr.log.Debugw("Registered command",
		"name", config.Name,
		"aliases", config.Aliases,
		"category", config.Category,
	)
	return nil
}

// MustRegister registers a command and panics on error (for init-time registration)
func (cr *CommandRegistry) MustRegister(config CommandConfig) {
	if err := cr.Register(config); err != nil {
		panic(fmt.Sprintf("register command: %v", err))
	}
}

// Use adds global middleware (applied to all commands)
func (cr *CommandRegistry) Use(middleware CommandMiddleware) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.middleware = append(cr.middleware, middleware)
}

// Handle routes a parsed command message to its handler
func (cr *CommandRegistry) Handle(ctx context.Context, msg *Message, isAdmin bool) error {
	if msg == nil || !msg.IsCommand || msg.Chat == nil {
		return errors.Wrap(errors.ErrInvalidInput, "not a command message")
	}

	command := strings.ToLower(strings.TrimSpace(msg.Command))
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}

	cr.mu.RLock()
	config, exists := cr.commands[command]
	global := cr.middleware
	cr.mu.RUnlock()

	cmdCtx := &CommandContext{
		Ctx:        ctx,
		UserID:     userID,
		ChatID:     msg.Chat.ID,
		MessageID:  msg.MessageID,
		Command:    command,
		Args:       msg.Arguments,
		Message:    msg,
		Bot:        cr.bot,
		IsAdmin:    isAdmin,
		RawMessage: msg.Text,
	}

	// hidden commands stay invisible to non-admins
	if !exists || (config.Hidden && !isAdmin) {
		cr.log.Debugw("Unknown command",
			"command", command,
			"user_id", userID,
		)
		return cmdCtx.Reply(fmt.Sprintf("Unknown command: /%s\n\nUse /help to see available commands.", Escape(command)))
	}

	handler := config.Handler
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		handler = config.Middleware[i](handler)
	}
	for i := len(global) - 1; i >= 0; i-- {
		handler = global[i](handler)
	}

	if err := handler(cmdCtx); err != nil {
		return cr.handleCommandError(cmdCtx, err)
	}
	return nil
}

// GetCommands returns registered commands sorted by name (for /help)
func (cr *CommandRegistry) GetCommands(includeHidden bool) []*CommandConfig {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	commands := make([]*CommandConfig, 0, len(cr.commands))
	for name, config := range cr.commands {
		if name != config.Name {
			continue
		}
		if config.Hidden && !includeHidden {
			continue
		}
		commands = append(commands, config)
	}

	sort.Slice(commands, func(i, j int) bool { return commands[i].Name < commands[j].Name })
	return commands
}

// GetCommandsByCategory returns commands grouped by category
func (cr *CommandRegistry) GetCommandsByCategory(includeHidden bool) map[string][]*CommandConfig {
	grouped := make(map[string][]*CommandConfig)
	for _, cmd := range cr.GetCommands(includeHidden) {
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		grouped[category] = append(grouped[category], cmd)
	}
	return grouped
}

// HasCommand checks if command is registered
func (cr *CommandRegistry) HasCommand(command string) bool {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	_, exists := cr.commands[strings.ToLower(strings.TrimSpace(command))]
	return exists
}

// handleCommandError turns validation errors into a reply and reports the rest generically
func (cr *CommandRegistry) handleCommandError(cmdCtx *CommandContext, err error) error {
	var valErr ValidationError
	if errors.As(err, &valErr) {
		return cmdCtx.Reply("❌ " + Escape(valErr.Message))
	}

	cr.log.Errorw("Command execution failed",
		"command", cmdCtx.Command,
		"user_id", cmdCtx.UserID,
		"error", err,
	)
	if replyErr := cmdCtx.Reply("❌ Something went wrong. Please try again."); replyErr != nil {
		return errors.Join(err, replyErr)
	}
	return err
}
