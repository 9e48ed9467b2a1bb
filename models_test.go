package recalc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseClaimStatus(t *testing.T) {
	t.Run("accepts lifecycle states", func(t *testing.T) {
		for _, status := range []ClaimStatus{ClaimPending, ClaimAccepted, ClaimRejected} {
			parsed, err := ParseClaimStatus(string(status))
			assert.NoError(t, err)
			assert.Equal(t, status, parsed)
		}
	})

	t.Run("rejects unknown values", func(t *testing.T) {
		_, err := ParseClaimStatus("approved")
		assert.Error(t, err)

		_, err = ParseClaimStatus("")
		assert.Error(t, err)
	})
}

func TestClaimStatusTerminal(t *testing.T) {
	assert.False(t, ClaimPending.IsTerminal())
	assert.True(t, ClaimAccepted.IsTerminal())
	assert.True(t, ClaimRejected.IsTerminal())
}
