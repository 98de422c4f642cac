package rms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmscore.evalgo.org/model"
)

func TestRunGroupKeyStableForIdenticalArgs(t *testing.T) {
	args := []model.Arg{{Kind: model.ArgScalar, ScalarJSON: []byte("1")}}
	kwargs := map[string]model.Arg{"k": {Kind: model.ArgResourceRef, RefID: "r1"}}

	k1, err := runGroupKey("p1", args, kwargs)
	require.NoError(t, err)
	k2, err := runGroupKey("p1", args, kwargs)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestRunGroupKeyDiffersOnPipeOrArgs(t *testing.T) {
	args := []model.Arg{{Kind: model.ArgScalar, ScalarJSON: []byte("1")}}
	base, err := runGroupKey("p1", args, nil)
	require.NoError(t, err)

	diffPipe, err := runGroupKey("p2", args, nil)
	require.NoError(t, err)
	assert.NotEqual(t, base, diffPipe)

	diffArgs, err := runGroupKey("p1", []model.Arg{{Kind: model.ArgScalar, ScalarJSON: []byte("2")}}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, base, diffArgs)
}
