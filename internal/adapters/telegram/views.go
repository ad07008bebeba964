package telegram

import (
	"context"
	"sort"
	"time"
	"unicode/utf8"

	"renamebot/internal/domain/preferences"
	"renamebot/internal/domain/rename"
	renamesvc "renamebot/internal/services/rename"
	"renamebot/pkg/errors"
	"renamebot/pkg/progress"
)

// maxReasonLength bounds the error text shown to users
const maxReasonLength = 200

// Template names under pkg/templates/assets/telegram
const (
	tmplStart        = "start"
	tmplHelp         = "help"
	tmplNamePrompt   = "name_prompt"
	tmplFormatPrompt = "format_prompt"
	tmplProgress     = "progress"
	tmplResult       = "result"
	tmplFailure      = "failure"
	tmplCancelled    = "cancelled"
	tmplMilestone    = "milestone"
	tmplTooLarge     = "too_large"
	tmplInvalidName  = "invalid_name"
	tmplExpired      = "expired"
	tmplSettings     = "settings"
	tmplCaption      = "caption"
	tmplStats        = "stats"
	tmplAdminStats   = "admin_stats"
	tmplStartup      = "startup"
	tmplBroadcast    = "broadcast"
)

var messageTemplates = []string{
	tmplStart, tmplHelp, tmplNamePrompt, tmplFormatPrompt, tmplProgress,
	tmplResult, tmplFailure, tmplCancelled, tmplMilestone, tmplTooLarge,
	tmplInvalidName, tmplExpired, tmplSettings, tmplCaption, tmplStats,
	tmplAdminStats, tmplStartup, tmplBroadcast,
}

type namePromptView struct {
	FileName string
	Kind     rename.Kind
	Size     int64
	Limit    int64
	TTL      time.Duration
	Prefix   string
	Suffix   string
}

type formatPromptView struct {
	FileName string
}

type progressView struct {
	Stage    string
	FileName string
	Percent  float64
	Done     int64
	Total    int64
	Rate     int64
	ETA      time.Duration
	ETAKnown bool
}

func newProgressView(s renamesvc.Snapshot, ev progress.Event) progressView {
	return progressView{
		Stage:    ev.Stage,
		FileName: s.ChosenFilename,
		Percent:  ev.Percent,
		Done:     ev.Done,
		Total:    ev.Total,
		Rate:     int64(ev.Rate),
		ETA:      ev.ETA,
		ETAKnown: ev.ETAKnown && !ev.Final,
	}
}

type resultView struct {
	FileName string
	Format   rename.Format
	Size     int64
}

type failureView struct {
	FileName string
	Stage    rename.Stage
	Reason   string
}

func newFailureView(s renamesvc.Snapshot, err error) failureView {
	v := failureView{FileName: s.ChosenFilename}
	if v.FileName == "" {
		v.FileName = s.File.Name
	}

	var failed *rename.TransferFailed
	if errors.As(err, &failed) {
		v.Stage = failed.Stage
	}

	switch {
	case errors.Is(err, errors.ErrTimeout):
		v.Reason = "The transfer took too long."
	case errors.Is(err, context.Canceled):
		v.Reason = "The bot is restarting. Please send the file again."
	case err != nil:
		v.Reason = truncate(err.Error(), maxReasonLength)
	}
	return v
}

type fileNameView struct {
	FileName string
}

type countView struct {
	Count int64
}

type tooLargeView struct {
	Size  int64
	Limit int64
}

type reasonView struct {
	Reason string
}

type settingsView struct {
	Prefix             string
	Suffix             string
	Caption            bool
	Thumbnail          bool
	Metadata           preferences.Metadata
	FilesRenamed       int64
	TransformAvailable bool
}

func newSettingsView(p *preferences.Preferences, transformAvailable bool) settingsView {
	return settingsView{
		Prefix:             p.Prefix,
		Suffix:             p.Suffix,
		Caption:            p.HasCaption(),
		Thumbnail:          p.HasThumbnail(),
		Metadata:           p.Metadata,
		FilesRenamed:       p.FilesRenamed,
		TransformAvailable: transformAvailable,
	}
}

type historyView struct {
	Days      int
	Total     uint64
	Succeeded uint64
	Failed    uint64
	Cancelled uint64
	Bytes     int64
	LastAt    time.Time
}

type statsView struct {
	FilesRenamed int64
	History      *historyView
}

type stateCount struct {
	State rename.State
	Count int
}

type adminStatsView struct {
	Users          int64
	ActiveUsers    int64
	FilesRenamed   int64
	ActiveSessions int
	States         []stateCount
	Uptime         time.Duration
}

func sortedStates(counts map[rename.State]int) []stateCount {
	out := make([]stateCount, 0, len(counts))
	for state, n := range counts {
		out = append(out, stateCount{State: state, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State < out[j].State })
	return out
}

// StartupInfo is announced to admins when the bot starts
type StartupInfo struct {
	Name               string
	Env                string
	Limit              int64
	TransformAvailable bool
}

type startView struct {
	FirstName string
	Limit     int64
}

type captionView struct {
	Template string
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
