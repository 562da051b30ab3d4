package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	issued := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		template string
		seq      int64
		want     string
	}{
		{DefaultTemplate, 36, "INV-2026-10"},
		{DefaultTemplate, 1767225600000, "INV-2026-MJUOHS00"},
		{"INV-{YYYY}{MM}{DD}-{SEQ6}", 42, "INV-20260307-000042"},
		{"{YY}/{SEQ}", 7, "26/7"},
	}
	for _, tc := range tests {
		tpl, err := Parse(tc.template)
		require.NoError(t, err, tc.template)
		got, err := tpl.Render(issued, tc.seq)
		require.NoError(t, err, tc.template)
		assert.Equal(t, tc.want, got, tc.template)
	}
}

func TestZeroTemplateUsesDefault(t *testing.T) {
	got, err := Template{}.Render(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 35)
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-Z", got)
}

func TestParseRejects(t *testing.T) {
	for _, raw := range []string{"", "INV-{UNKNOWN}-{SEQ}", "INV-{YYYY}", "INV-{SEQ}}"} {
		_, err := Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidTemplate, raw)
	}
}

func TestRenderRejectsSequence(t *testing.T) {
	_, err := Default().Render(time.Now(), 0)
	assert.ErrorIs(t, err, ErrInvalidSequence)
}
