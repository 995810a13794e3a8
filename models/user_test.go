package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayNamePrefersAlias(t *testing.T) {
	alias := "Ace"
	empty := ""

	assert.Equal(t, "Ace", TournamentUser{Username: "alice", Alias: &alias}.DisplayName())
	assert.Equal(t, "alice", TournamentUser{Username: "alice", Alias: &empty}.DisplayName())
	assert.Equal(t, "alice", TournamentUser{Username: "alice"}.DisplayName())
}
