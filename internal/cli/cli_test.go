package cli

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewWiresAllSubcommands(t *testing.T) {
	root := New(logrus.New())
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["hashing"])
	assert.True(t, names["delta"])
	assert.True(t, names["recover"])
}

func TestHashingRequiresBaseFlag(t *testing.T) {
	root := New(logrus.New())
	root.SetArgs([]string{"hashing"})
	err := root.Execute()
	assert.Error(t, err)
}

func TestDeltaRequiresModifiedAndBaseFlags(t *testing.T) {
	root := New(logrus.New())
	root.SetArgs([]string{"delta"})
	err := root.Execute()
	assert.Error(t, err)
}

func TestRecoverRequiresBaseAndDeltaFlags(t *testing.T) {
	root := New(logrus.New())
	root.SetArgs([]string{"recover"})
	err := root.Execute()
	assert.Error(t, err)
}
