package format

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidmorph/vidmorph/internal/models"
)

func TestResolve(t *testing.T) {
	t.Run("mp4 to ivf", func(t *testing.T) {
		p, err := Resolve("mp4", "ivf")
		require.NoError(t, err)
		assert.Equal(t, "libvpx", p.VideoCodec)
		assert.Equal(t, "ivf", p.Container)
		assert.False(t, p.KeepsAudio(), "IVF output must drop audio")
	})

	t.Run("mkv to mp4", func(t *testing.T) {
		p, err := Resolve("mkv", "mp4")
		require.NoError(t, err)
		assert.Equal(t, "libx264", p.VideoCodec)
		assert.Equal(t, "aac", p.AudioCodec)
		assert.True(t, p.KeepsAudio())
	})

	t.Run("case insensitive with leading dot", func(t *testing.T) {
		p, err := Resolve(".MOV", "MP4")
		require.NoError(t, err)
		assert.Equal(t, "mp4", p.OutputFormat)
	})

	t.Run("unsupported input", func(t *testing.T) {
		_, err := Resolve("txt", "mp4")
		assert.True(t, errors.Is(err, models.ErrInvalidFormat))
	})

	t.Run("unsupported output", func(t *testing.T) {
		_, err := Resolve("mp4", "webm")
		assert.True(t, errors.Is(err, models.ErrInvalidFormat))
	})

	t.Run("pure and repeatable", func(t *testing.T) {
		a, err := Resolve("avi", "ivf")
		require.NoError(t, err)
		b, err := Resolve("avi", "ivf")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestSupportedSets(t *testing.T) {
	assert.ElementsMatch(t, []string{"avi", "flv", "ivf", "mkv", "mov", "mp4", "wmv"}, SupportedInputs())
	assert.ElementsMatch(t, []string{"ivf", "mp4"}, SupportedOutputs())
}
