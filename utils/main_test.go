package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveUsernameSuffix(t *testing.T) {
	assert.Equal(t, "alice", RemoveUsernameSuffix("alice@iplantcollaborative.org", "@iplantcollaborative.org"))
	assert.Equal(t, "alice@example.org", RemoveUsernameSuffix("alice@example.org", "@iplantcollaborative.org"))
	assert.Equal(t, "alice", RemoveUsernameSuffix("alice@example.org", ""))
	assert.Equal(t, "alice", RemoveUsernameSuffix("alice", ""))
}
