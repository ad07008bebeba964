package telegram

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renamebot/internal/domain/rename"
	"renamebot/pkg/errors"
	"renamebot/pkg/telegram"
)

func TestCallbackRoundTrip(t *testing.T) {
	id := uuid.New()

	for _, action := range []string{ActionKeep, ActionCancel, "video", "document", "audio"} {
		data := EncodeCallback(action, id)
		assert.LessOrEqual(t, len(data), telegram.MaxCallbackDataLength, data)

		cb, err := DecodeCallback(data)
		require.NoError(t, err, data)
		assert.Equal(t, action, cb.Action)
		assert.Equal(t, id, cb.SessionID)
	}

	cb, err := DecodeCallback(EncodeCallback("video", id))
	require.NoError(t, err)
	format, ok := cb.Format()
	assert.True(t, ok)
	assert.Equal(t, rename.FormatVideo, format)

	cb, err = DecodeCallback(EncodeCallback(ActionKeep, id))
	require.NoError(t, err)
	_, ok = cb.Format()
	assert.False(t, ok)
}

func TestDecodeCallback_Invalid(t *testing.T) {
	id := uuid.NewString()

	for _, data := range []string{
		"",
		"rn:keep",
		"xx:keep:" + id,
		"rn:sticker:" + id,
		"rn:keep:not-a-uuid",
		"rn:keep:" + id + ":extra",
	} {
		_, err := DecodeCallback(data)
		assert.ErrorIs(t, err, errors.ErrInvalidInput, data)
	}
}
