package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cardlead/constants"
)

func TestBuildInstruction(t *testing.T) {
	inferred := BuildInstruction(ModeInferred)
	for _, f := range constants.CardFields {
		assert.Contains(t, inferred, f)
	}
	assert.Contains(t, inferred, "39情報サービス業")
	assert.Contains(t, inferred, "営業部")
	assert.Contains(t, inferred, "代表取締役")

	raw := BuildInstruction(ModeRaw)
	assert.Contains(t, raw, constants.FieldCompany)
	assert.NotContains(t, raw, "39情報サービス業")
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeInferred, m)
	m, err = ParseMode(" RAW ")
	require.NoError(t, err)
	assert.Equal(t, ModeRaw, m)
	_, err = ParseMode("guess")
	assert.Error(t, err)
}
