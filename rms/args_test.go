package rms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmscore.evalgo.org/model"
)

func TestToArgTagsEntityReferencesByID(t *testing.T) {
	pipeArg, err := toArg(&model.Pipe{ID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, model.Arg{Kind: model.ArgPipeRef, RefID: "p1"}, pipeArg)

	resArg, err := toArg(&model.Resource{ID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, model.Arg{Kind: model.ArgResourceRef, RefID: "r1"}, resArg)

	fileArg, err := toArg(&model.FileResource{ID: "f1"})
	require.NoError(t, err)
	assert.Equal(t, model.Arg{Kind: model.ArgFileRef, RefID: "f1"}, fileArg)
}

func TestToArgScalarEncodesCanonicalJSON(t *testing.T) {
	a, err := toArg(42)
	require.NoError(t, err)
	assert.Equal(t, model.ArgScalar, a.Kind)
	assert.JSONEq(t, "42", string(a.ScalarJSON))
}

func TestArgsEqualComparesByKind(t *testing.T) {
	a := model.Arg{Kind: model.ArgScalar, ScalarJSON: []byte("1")}
	b := model.Arg{Kind: model.ArgScalar, ScalarJSON: []byte("1")}
	assert.True(t, argsEqual(a, b))

	c := model.Arg{Kind: model.ArgResourceRef, RefID: "r1"}
	assert.False(t, argsEqual(a, c))

	d := model.Arg{Kind: model.ArgResourceRef, RefID: "r1"}
	e := model.Arg{Kind: model.ArgResourceRef, RefID: "r2"}
	assert.False(t, argsEqual(d, e))
}

func TestBindingToArgsFoldsVariadicIntoFixedLists(t *testing.T) {
	b := model.Binding{
		Args:               []any{1},
		VariadicPositional: []any{2, 3},
		Kwargs:             map[string]any{"a": "x"},
		VariadicKeyword:    map[string]any{"b": "y"},
	}
	args, kwargs, order, err := bindingToArgs(b, nil)
	require.NoError(t, err)
	assert.Len(t, args, 3)
	assert.Len(t, kwargs, 2)
	assert.Contains(t, order, "b")
}

func TestTasksMatchArgsRequiresSameArityAndValues(t *testing.T) {
	args := []model.Arg{{Kind: model.ArgScalar, ScalarJSON: []byte("1")}}
	kwargs := map[string]model.Arg{"k": {Kind: model.ArgScalar, ScalarJSON: []byte(`"v"`)}}
	task := &model.Task{Args: args, Kwargs: kwargs}

	assert.True(t, tasksMatchArgs(task, args, kwargs))

	diffArgs := []model.Arg{{Kind: model.ArgScalar, ScalarJSON: []byte("2")}}
	assert.False(t, tasksMatchArgs(task, diffArgs, kwargs))

	extraKwargs := map[string]model.Arg{"k": kwargs["k"], "other": {Kind: model.ArgScalar, ScalarJSON: []byte("1")}}
	assert.False(t, tasksMatchArgs(task, args, extraKwargs))
}

func TestResolveArgScalarDecodesJSON(t *testing.T) {
	s := New(nil, nil)
	v, err := s.resolveArg(context.Background(), model.Arg{Kind: model.ArgScalar, ScalarJSON: []byte(`"hello"`)}, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestResolveArgPipeRefUsesLoadedHandle(t *testing.T) {
	s := New(nil, nil)
	pipe := &model.Pipe{ID: "p1"}
	s.mu.Lock()
	s.pipes["p1"] = &PipeHandle{Pipe: pipe}
	s.mu.Unlock()

	v, err := s.resolveArg(context.Background(), model.Arg{Kind: model.ArgPipeRef, RefID: "p1"}, false)
	require.NoError(t, err)
	assert.Same(t, pipe, v)
}

func TestResolveArgPipeRefMissingHandle(t *testing.T) {
	s := New(nil, nil)
	_, err := s.resolveArg(context.Background(), model.Arg{Kind: model.ArgPipeRef, RefID: "missing"}, false)
	assert.Error(t, err)
}

func TestIsInvalidChecksOverwrittenAndObsoleteInfo(t *testing.T) {
	assert.False(t, isInvalid(nil))
	assert.False(t, isInvalid(map[string]string{"other": "x"}))
	assert.True(t, isInvalid(map[string]string{model.InfoOverwritten: "ts"}))
	assert.True(t, isInvalid(map[string]string{"obsolete": "ts"}))
}
