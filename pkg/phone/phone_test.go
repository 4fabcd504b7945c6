package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "966501234567", Normalize("+966 50-123-4567"))
	assert.Equal(t, "", Normalize("abc"))
}

func TestIsAllowedEmptyListAllowsEveryone(t *testing.T) {
	assert.True(t, IsAllowed("966501234567", nil))
}

func TestIsAllowedMatchesAfterNormalization(t *testing.T) {
	allow := []string{"+966 50 123 4567"}
	assert.True(t, IsAllowed("966501234567", allow))
	assert.False(t, IsAllowed("966509999999", allow))
}
