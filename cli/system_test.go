package cli

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmscore.evalgo.org/model"
)

func TestParseFullIDValid(t *testing.T) {
	id, err := parseFullID("resource:ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, model.FullID{Kind: model.KindResource, ID: "ab12cd34"}, id)
}

func TestParseFullIDRejectsMissingColon(t *testing.T) {
	_, err := parseFullID("resourceab12cd34")
	assert.Error(t, err)
}

func TestParseFullIDRejectsUnknownKind(t *testing.T) {
	_, err := parseFullID("frobnicator:ab12cd34")
	assert.Error(t, err)
}

func TestParseFullIDAllowsColonsInID(t *testing.T) {
	id, err := parseFullID("task:ab:cd")
	require.NoError(t, err)
	assert.Equal(t, model.FullID{Kind: model.KindTask, ID: "ab:cd"}, id)
}

func TestSplitOnce(t *testing.T) {
	before, after, found := splitOnce("a:b:c", ':')
	assert.True(t, found)
	assert.Equal(t, "a", before)
	assert.Equal(t, "b:c", after)

	_, _, found = splitOnce("noseparator", ':')
	assert.False(t, found)
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := parseLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, lvl)

	_, err = parseLogLevel("not-a-level")
	assert.Error(t, err)
}
