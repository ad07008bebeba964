package telegram

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renamebot/pkg/errors"
	"renamebot/pkg/templates"
)

func TestTemplateRendererAdapter_EmbeddedTemplatesComplete(t *testing.T) {
	assert.NoError(t, NewTemplateRendererAdapter(nil).Validate())
}

func TestTemplateRendererAdapter_ValidateReportsMissing(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "telegram"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "telegram", "start.tmpl"), []byte("hi"), 0o644))

	reg, err := templates.NewRegistry(base)
	require.NoError(t, err)

	err = NewTemplateRendererAdapter(reg).Validate()
	require.ErrorIs(t, err, errors.ErrNotFound)
	assert.Contains(t, err.Error(), "telegram/name_prompt")
	assert.NotContains(t, err.Error(), "telegram/start,")
}
