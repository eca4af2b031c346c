package gemini

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbed_BlankInputRejectedBeforeCall(t *testing.T) {
	// A nil client proves no remote call happens: reaching the client
	// would panic.
	e := NewEmbedder(nil, "text-embedding-004", 768)

	for _, input := range []string{"", "   ", "\n\t "} {
		_, err := e.Embed(context.Background(), input)
		assert.ErrorIs(t, err, ErrTextRequired, "input %q", input)
	}
}

func TestValidateVector(t *testing.T) {
	good := make([]float32, 768)
	assert.NoError(t, validateVector(good, 768))

	t.Run("WrongLength", func(t *testing.T) {
		err := validateVector(make([]float32, 767), 768)
		assert.ErrorIs(t, err, ErrInvalidEmbedding)

		err = validateVector(make([]float32, 1536), 768)
		assert.ErrorIs(t, err, ErrInvalidEmbedding)
	})

	t.Run("NaN", func(t *testing.T) {
		bad := make([]float32, 768)
		bad[17] = float32(math.NaN())
		err := validateVector(bad, 768)
		assert.ErrorIs(t, err, ErrInvalidEmbedding)
	})

	t.Run("Inf", func(t *testing.T) {
		bad := make([]float32, 768)
		bad[767] = float32(math.Inf(1))
		err := validateVector(bad, 768)
		assert.ErrorIs(t, err, ErrInvalidEmbedding)
	})

	t.Run("Empty", func(t *testing.T) {
		err := validateVector(nil, 768)
		assert.ErrorIs(t, err, ErrInvalidEmbedding)
	})
}
