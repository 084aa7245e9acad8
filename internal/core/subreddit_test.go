package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSubreddit(t *testing.T) {
	cases := map[string]string{
		"golang":      "golang",
		" r/golang ":  "golang",
		"/r/golang/":  "golang",
		"R/AskReddit": "AskReddit",
	}
	for in, want := range cases {
		got, err := NormalizeSubreddit(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"", "r/", "_golang", "has space", "waaaaaaaaaaaaaaaaaaaaaytoolong"} {
		_, err := NormalizeSubreddit(bad)
		assert.Error(t, err, bad)
	}
}

func TestNormalizeUsers(t *testing.T) {
	got := NormalizeUsers([]string{" Alice ", "u/bob", "alice", "", "/u/Carol"})
	assert.Equal(t, []string{"alice", "bob", "carol"}, got)
}
