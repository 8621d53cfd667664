package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/orderbell/internal/core/status"
)

func TestThemeNames(t *testing.T) {
	assert.Equal(t, []string{"catppuccin", "gruvbox", "tokyo-night"}, ThemeNames())
}

func TestSetTheme(t *testing.T) {
	t.Cleanup(func() { SetTheme(themes[DefaultTheme]) })

	p, ok := GetPalette("gruvbox")
	require.True(t, ok)
	SetTheme(p)

	assert.Equal(t, p.Error, ToneColor(status.ToneError))
	assert.Equal(t, p.Info, ToneColor(status.Tone("other")))
}

func TestBadge_uses_label(t *testing.T) {
	assert.Contains(t, Badge("SHIPPED"), "배송중")
	assert.Contains(t, Badge("ON_HOLD"), "ON_HOLD")
}
