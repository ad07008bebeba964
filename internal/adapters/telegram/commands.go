package telegram

import (
	"context"
	"sort"
	"strings"
	"time"

	"renamebot/internal/domain/preferences"
	"renamebot/internal/domain/rename"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
	"renamebot/pkg/telegram"
)

// statsWindow is the history range shown by /stats
const statsWindow = 30 * 24 * time.Hour

// SettingsService is the settings store behind the commands
type SettingsService interface {
	GetPreferences(ctx context.Context, userID int64) (*preferences.Preferences, error)
	SetPrefix(ctx context.Context, userID int64, prefix string) (*preferences.Preferences, error)
	ClearPrefix(ctx context.Context, userID int64) (*preferences.Preferences, error)
	SetSuffix(ctx context.Context, userID int64, suffix string) (*preferences.Preferences, error)
	ClearSuffix(ctx context.Context, userID int64) (*preferences.Preferences, error)
	SetCaption(ctx context.Context, userID int64, template string) (*preferences.Preferences, error)
	ClearCaption(ctx context.Context, userID int64) (*preferences.Preferences, error)
	ClearThumbnail(ctx context.Context, userID int64) (*preferences.Preferences, error)
	UpdateMetadata(ctx context.Context, userID int64, upd preferences.MetadataUpdate) (*preferences.Preferences, error)
	Reset(ctx context.Context, userID int64) (*preferences.Preferences, error)
	Totals(ctx context.Context) (*preferences.Totals, error)
}

// HistoryReader summarizes a user's past transfers
type HistoryReader interface {
	UserSummary(ctx context.Context, userID int64, since time.Time) (*rename.HistorySummary, error)
}

// SessionStats reports live sessions
type SessionStats interface {
	Len() int
	CountByState() map[rename.State]int
}

// SessionCanceller cancels the user's active session
type SessionCanceller interface {
	CancelActive(ctx context.Context, key rename.Key) error
}

// TransformStatus reports whether metadata editing works
type TransformStatus interface {
	IsAvailable() bool
}

// CommandsDeps are the collaborators of the settings commands. History,
// Audience and Transform are optional.
type CommandsDeps struct {
	Settings  SettingsService
	History   HistoryReader
	Audience  Audience
	Sessions  SessionStats
	Canceller SessionCanceller
	Transform TransformStatus
	Templates telegram.TemplateRenderer
	SizeLimit int64
}

// Commands implements the bot's slash commands
type Commands struct {
	deps      CommandsDeps
	registry  *telegram.CommandRegistry
	startedAt time.Time
	now       func() time.Time
	log       *logger.Logger
}

// NewCommands creates the command set
func NewCommands(deps CommandsDeps, log *logger.Logger) *Commands {
	return &Commands{
		deps:      deps,
		startedAt: time.Now(),
		now:       time.Now,
		log:       log.With("component", "telegram_commands"),
	}
}

// Register adds every command to reg
func (c *Commands) Register(reg *telegram.CommandRegistry) error {
	c.registry = reg

	configs := []telegram.CommandConfig{
		{Name: "start", Description: "Introduction", Category: "General", Handler: c.start},
		{Name: "help", Description: "This help", Category: "General", Handler: c.help},
		{Name: "cancel", Description: "Cancel the current rename", Category: "General", Handler: c.cancel},
		{Name: "settings", Description: "Show your settings", Category: "Settings", Handler: c.settings},
		{Name: "reset", Description: "Clear all settings", Category: "Settings", Handler: c.reset},
		{Name: "stats", Description: "Your usage", Category: "General", Handler: c.stats},

		{Name: "set_prefix", Usage: "<text>", Description: "Text placed before every new name", Category: "Naming", Handler: c.setPrefix},
		{Name: "del_prefix", Description: "Remove the prefix", Category: "Naming", Handler: c.delPrefix},
		{Name: "set_suffix", Usage: "<text>", Description: "Text placed after every new name", Category: "Naming", Handler: c.setSuffix},
		{Name: "del_suffix", Description: "Remove the suffix", Category: "Naming", Handler: c.delSuffix},

		{Name: "set_caption", Usage: "<template>", Description: "Caption template for uploads", Category: "Caption", Handler: c.setCaption},
		{Name: "see_caption", Description: "Show the caption template", Category: "Caption", Handler: c.seeCaption},
		{Name: "del_caption", Description: "Back to the bold filename caption", Category: "Caption", Handler: c.delCaption},
		{Name: "view_thumb", Aliases: []string{"viewthumb"}, Description: "Show your thumbnail", Category: "Caption", Handler: c.viewThumb},
		{Name: "del_thumb", Description: "Remove the thumbnail", Category: "Caption", Handler: c.delThumb},

		{Name: "metadata", Usage: "on|off|reset --change-author <v> --change-title <v>", Description: "Embedded author and title", Category: "Metadata", Handler: c.metadata},

		{
			Name:       "adminstats",
			Hidden:     true,
			Handler:    c.adminStats,
			Middleware: []telegram.CommandMiddleware{telegram.AdminOnlyMiddleware()},
		},
		{
			Name:       "broadcast",
			Hidden:     true,
			Handler:    c.broadcast,
			Middleware: []telegram.CommandMiddleware{telegram.AdminOnlyMiddleware()},
		},
	}

	for _, cfg := range configs {
		if err := reg.Register(cfg); err != nil {
			return err
		}
	}
	return nil
}

func (c *Commands) render(ctx *telegram.CommandContext, name string, data any) error {
	text, err := c.deps.Templates.Render(name, data)
	if err != nil {
		return err
	}
	return ctx.Reply(text)
}

func (c *Commands) start(ctx *telegram.CommandContext) error {
	view := startView{Limit: c.deps.SizeLimit}
	if ctx.Message != nil && ctx.Message.From != nil {
		view.FirstName = ctx.Message.From.FirstName
	}
	return c.render(ctx, tmplStart, view)
}

type helpCategory struct {
	Name     string
	Commands []*telegram.CommandConfig
}

func (c *Commands) help(ctx *telegram.CommandContext) error {
	grouped := c.registry.GetCommandsByCategory(false)
	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make([]helpCategory, 0, len(names))
	for _, name := range names {
		categories = append(categories, helpCategory{Name: name, Commands: grouped[name]})
	}

	return c.render(ctx, tmplHelp, struct {
		Categories []helpCategory
		Variables  []string
	}{categories, rename.CaptionVariables})
}

func (c *Commands) cancel(ctx *telegram.CommandContext) error {
	err := c.deps.Canceller.CancelActive(ctx.Ctx, rename.Key{ChatID: ctx.ChatID, UserID: ctx.UserID})
	if errors.Is(err, rename.ErrSessionNotFound) || errors.Is(err, rename.ErrInvalidState) {
		return ctx.Reply("Nothing to cancel.")
	}
	return err
}

func (c *Commands) settings(ctx *telegram.CommandContext) error {
	p, err := c.deps.Settings.GetPreferences(ctx.Ctx, ctx.UserID)
	if err != nil {
		return err
	}
	return c.render(ctx, tmplSettings, newSettingsView(p, c.transformAvailable()))
}

func (c *Commands) reset(ctx *telegram.CommandContext) error {
	if _, err := c.deps.Settings.Reset(ctx.Ctx, ctx.UserID); err != nil {
		return err
	}
	return ctx.Reply("♻️ All settings cleared.")
}

func (c *Commands) setPrefix(ctx *telegram.CommandContext) error {
	if ctx.Args == "" {
		return usage("prefix", "/set_prefix <text>")
	}
	if _, err := c.deps.Settings.SetPrefix(ctx.Ctx, ctx.UserID, ctx.Args); err != nil {
		return userError(err)
	}
	return ctx.Reply("✅ Prefix set to " + telegram.Code(ctx.Args))
}

func (c *Commands) delPrefix(ctx *telegram.CommandContext) error {
	if _, err := c.deps.Settings.ClearPrefix(ctx.Ctx, ctx.UserID); err != nil {
		return err
	}
	return ctx.Reply("🗑 Prefix removed.")
}

func (c *Commands) setSuffix(ctx *telegram.CommandContext) error {
	if ctx.Args == "" {
		return usage("suffix", "/set_suffix <text>")
	}
	if _, err := c.deps.Settings.SetSuffix(ctx.Ctx, ctx.UserID, ctx.Args); err != nil {
		return userError(err)
	}
	return ctx.Reply("✅ Suffix set to " + telegram.Code(ctx.Args))
}

func (c *Commands) delSuffix(ctx *telegram.CommandContext) error {
	if _, err := c.deps.Settings.ClearSuffix(ctx.Ctx, ctx.UserID); err != nil {
		return err
	}
	return ctx.Reply("🗑 Suffix removed.")
}

func (c *Commands) setCaption(ctx *telegram.CommandContext) error {
	if ctx.Args == "" {
		return usage("caption", "/set_caption <template>, e.g. /set_caption {filename} | {filesize}")
	}
	if _, err := c.deps.Settings.SetCaption(ctx.Ctx, ctx.UserID, ctx.Args); err != nil {
		return userError(err)
	}

	reply := "✅ Caption template saved."
	sample := rename.CaptionValues("example.mp4", rename.Attributes{})
	if _, err := rename.FormatCaption(ctx.Args, sample); err != nil {
		reply += "\n⚠️ It has placeholders I do not know, so it will be used exactly as typed. Known placeholders are listed in /help."
	}
	return ctx.Reply(reply)
}

func (c *Commands) seeCaption(ctx *telegram.CommandContext) error {
	p, err := c.deps.Settings.GetPreferences(ctx.Ctx, ctx.UserID)
	if err != nil {
		return err
	}
	if !p.HasCaption() {
		return ctx.Reply("No caption template set, uploads are captioned with the filename in bold.")
	}
	return c.render(ctx, tmplCaption, captionView{Template: p.CaptionTemplate})
}

func (c *Commands) delCaption(ctx *telegram.CommandContext) error {
	if _, err := c.deps.Settings.ClearCaption(ctx.Ctx, ctx.UserID); err != nil {
		return err
	}
	return ctx.Reply("🗑 Caption template removed.")
}

func (c *Commands) viewThumb(ctx *telegram.CommandContext) error {
	p, err := c.deps.Settings.GetPreferences(ctx.Ctx, ctx.UserID)
	if err != nil {
		return err
	}
	if !p.HasThumbnail() {
		return ctx.Reply("No thumbnail set. Send me a photo to use it for your videos.")
	}

	_, err = ctx.Bot.SendPhoto(ctx.Ctx, ctx.ChatID, p.ThumbnailRef,
		"🖼 Your current thumbnail. /del_thumb removes it.",
		telegram.MessageOptions{ReplyToMessageID: ctx.MessageID},
	)
	return err
}

func (c *Commands) delThumb(ctx *telegram.CommandContext) error {
	if _, err := c.deps.Settings.ClearThumbnail(ctx.Ctx, ctx.UserID); err != nil {
		return err
	}
	return ctx.Reply("🗑 Thumbnail removed.")
}

func (c *Commands) metadata(ctx *telegram.CommandContext) error {
	upd, err := preferences.ParseMetadataArgs(ctx.Args)
	if err != nil {
		return userError(err)
	}

	p, err := c.deps.Settings.UpdateMetadata(ctx.Ctx, ctx.UserID, upd)
	if err != nil {
		return userError(err)
	}
	return c.render(ctx, tmplSettings, newSettingsView(p, c.transformAvailable()))
}

func (c *Commands) stats(ctx *telegram.CommandContext) error {
	p, err := c.deps.Settings.GetPreferences(ctx.Ctx, ctx.UserID)
	if err != nil {
		return err
	}

	view := statsView{FilesRenamed: p.FilesRenamed}
	if c.deps.History != nil {
		summary, err := c.deps.History.UserSummary(ctx.Ctx, ctx.UserID, c.now().Add(-statsWindow))
		if err != nil {
			c.log.Warnw("Rename history unavailable", "user_id", ctx.UserID, "error", err)
		} else if summary.Total > 0 {
			view.History = &historyView{
				Days:      int(statsWindow / (24 * time.Hour)),
				Total:     summary.Total,
				Succeeded: summary.Succeeded,
				Failed:    summary.Failed,
				Cancelled: summary.Cancelled,
				Bytes:     summary.Bytes,
			}
			if summary.LastAt != nil {
				view.History.LastAt = *summary.LastAt
			}
		}
	}
	return c.render(ctx, tmplStats, view)
}

func (c *Commands) adminStats(ctx *telegram.CommandContext) error {
	totals, err := c.deps.Settings.Totals(ctx.Ctx)
	if err != nil {
		return err
	}

	view := adminStatsView{
		Users:        totals.Users,
		ActiveUsers:  totals.ActiveUsers,
		FilesRenamed: totals.FilesRenamed,
		Uptime:       c.now().Sub(c.startedAt),
	}
	if c.deps.Sessions != nil {
		view.ActiveSessions = c.deps.Sessions.Len()
		view.States = sortedStates(c.deps.Sessions.CountByState())
	}
	return c.render(ctx, tmplAdminStats, view)
}

func (c *Commands) transformAvailable() bool {
	return c.deps.Transform != nil && c.deps.Transform.IsAvailable()
}

func usage(field, text string) error {
	return telegram.ValidationError{Field: field, Message: "Usage: " + text}
}

// userError turns settings validation failures into replies the user sees
func userError(err error) error {
	var verr *errors.ValidationError
	if errors.As(err, &verr) {
		msg := strings.ReplaceAll(verr.Field, "_", " ") + ": " + verr.Message
		if v, ok := verr.Value.(string); ok && v != "" && len(v) <= 64 {
			msg += " " + v
		}
		return telegram.ValidationError{Field: verr.Field, Message: msg}
	}
	return err
}
