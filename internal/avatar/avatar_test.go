// ABOUTME: Tests for placeholder avatar generation
// ABOUTME: Verifies determinism, initial extraction and data URL decoding

package avatar

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vincent-petithory/dataurl"
)

func TestInitial(t *testing.T) {
	assert.Equal(t, "M", Initial("maria silva"))
	assert.Equal(t, "É", Initial("  élodie"))
	assert.Equal(t, "5", Initial("+55 11 9999"))
	assert.Equal(t, "?", Initial(""))
	assert.Equal(t, "?", Initial("  ++ "))
}

func TestPlaceholder_Deterministic(t *testing.T) {
	assert.Equal(t, Placeholder("Maria"), Placeholder("Marcos"), "same initial gives same image")
	assert.NotEqual(t, Placeholder("Maria"), Placeholder("Ana"))
}

func TestPlaceholder_DecodesToSVG(t *testing.T) {
	du, err := dataurl.DecodeString(Placeholder("João"))
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", du.ContentType())
	assert.True(t, strings.Contains(string(du.Data), ">J</text>"))
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "https://cdn/x.jpg", Resolve("https://cdn/x.jpg", "Ana"))
	assert.Equal(t, Placeholder("Ana"), Resolve("  ", "Ana"))
}
