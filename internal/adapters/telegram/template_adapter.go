package telegram

import (
	"renamebot/pkg/telegram"
	"renamebot/pkg/templates"
)

// TemplateRendererAdapter adapts templates.Registry to telegram.TemplateRenderer interface
type TemplateRendererAdapter struct {
	registry *templates.Registry
}

// NewTemplateRendererAdapter wraps registry; nil means the embedded templates
func NewTemplateRendererAdapter(registry *templates.Registry) *TemplateRendererAdapter {
	if registry == nil {
		registry = templates.Get()
	}
	return &TemplateRendererAdapter{registry: registry}
}

// Render renders a message template under the telegram/ namespace
func (a *TemplateRendererAdapter) Render(name string, data any) (string, error) {
	return a.registry.Render("telegram/"+name, data)
}

// Validate checks that every message template the bot sends is present
func (a *TemplateRendererAdapter) Validate() error {
	ids := make([]string, 0, len(messageTemplates))
	for _, name := range messageTemplates {
		ids = append(ids, "telegram/"+name)
	}
	return a.registry.Require(ids...)
}

var _ telegram.TemplateRenderer = (*TemplateRendererAdapter)(nil)
