package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootRegistersAllSubcommands(t *testing.T) {
	root := Root()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"serve", "manifest", "credential", "oauth"} {
		assert.True(t, names[want], "expected %s subcommand to be registered", want)
	}
}
