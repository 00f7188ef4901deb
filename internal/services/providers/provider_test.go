package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amerfu/aigw/internal/models"
)

func TestEstimateTokens(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		assert.Zero(t, EstimateTokens(""))
		assert.Zero(t, EstimateTokens("   "))
	})

	t.Run("rounds up", func(t *testing.T) {
		// 1 word * 1.3 = 1.3 -> 2
		assert.Equal(t, 2, EstimateTokens("hello"))
		// 10 words * 1.3 = 13
		assert.Equal(t, 13, EstimateTokens("one two three four five six seven eight nine ten"))
	})

	t.Run("collapses whitespace runs", func(t *testing.T) {
		assert.Equal(t, EstimateTokens("a b c"), EstimateTokens("a   b \t c"))
	})
}

func TestEstimatePromptTokens(t *testing.T) {
	messages := []models.Message{
		{Role: "system", Content: "You are a helpful assistant"},
		{Role: "user", Content: "hello there"},
	}
	assert.Equal(t, EstimateTokens("You are a helpful assistant")+EstimateTokens("hello there"),
		EstimatePromptTokens(messages))
}

func TestSplitSystem(t *testing.T) {
	t.Run("no system messages", func(t *testing.T) {
		msgs := []models.Message{{Role: "user", Content: "hi"}}
		system, rest := splitSystem(msgs)
		assert.Empty(t, system)
		assert.Equal(t, msgs, rest)
	})

	t.Run("system messages are joined in order", func(t *testing.T) {
		system, rest := splitSystem([]models.Message{
			{Role: "system", Content: "first"},
			{Role: "user", Content: "hi"},
			{Role: "system", Content: "second"},
			{Role: "assistant", Content: "hello"},
		})
		assert.Equal(t, "first\n\nsecond", system)
		assert.Equal(t, []models.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		}, rest)
	})
}
