package model

import (
	"context"
	"fmt"

	"rmscore.evalgo.org/rmserrors"
)

// PipeFunc is the runtime shape every registered pipe body has. Go has no
// analogue of Python's introspectable *args/**kwargs signature, so rather
// than binding against reflected parameter metadata the kernel asks each
// pipe to declare its own Arity (see PipeArity) and always invokes the
// body with the fully resolved positional/keyword slices.
type PipeFunc func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// OutputFunc computes the list of absolute output file paths a pipe
// invocation will produce, given the same resolved arguments as the body.
// It runs once before the body executes so path-computation failures
// surface before any side effect occurs.
type OutputFunc func(args []any, kwargs map[string]any) ([]string, error)

// ParamSpec describes one fixed (non-variadic) parameter of a pipe for
// the purpose of binding validation and default-filling.
type ParamSpec struct {
	Name         string
	HasDefault   bool
	DefaultValue any
}

// PipeArity declares the calling convention of a pipe body: its fixed
// positional parameter names (in order), whether it additionally accepts
// a variadic positional tail, and whether it accepts arbitrary extra
// keyword arguments. This takes the place of Python's
// inspect.Signature/BoundArguments machinery.
type PipeArity struct {
	Positional    []ParamSpec
	VarPositional bool
	VarKeyword    bool
}

func (a PipeArity) fixedIndex(name string) int {
	for i, spec := range a.Positional {
		if spec.Name == name {
			return i
		}
	}
	return -1
}

// Bind validates args/kwargs against the arity and fills in declared
// defaults for any fixed parameter left unsupplied. It returns a
// *rmserrors.BindingError for any arity mismatch: too many positional
// args for a non-variadic pipe, an unexpected keyword for a pipe with no
// **kwargs, a keyword that collides with an already-supplied positional
// slot, or a fixed parameter left with neither a supplied value nor a
// default.
func (a PipeArity) Bind(pipeLabel string, args []any, kwargs map[string]any) (Binding, error) {
	b, filledByKeyword, err := a.bindPositional(args)
	if err != nil {
		return Binding{}, &rmserrors.BindingError{Pipe: pipeLabel, Reason: err.Error()}
	}

	for k, v := range kwargs {
		if i := a.fixedIndex(k); i >= 0 {
			if i < len(args) {
				return Binding{}, &rmserrors.BindingError{Pipe: pipeLabel, Reason: "keyword '" + k + "' duplicates a supplied positional argument"}
			}
			b.Args[i] = v
			filledByKeyword[i] = true
			continue
		}
		if !a.VarKeyword {
			return Binding{}, &rmserrors.BindingError{Pipe: pipeLabel, Reason: "unexpected keyword argument '" + k + "'"}
		}
		if b.VariadicKeyword == nil {
			b.VariadicKeyword = make(map[string]any)
		}
		b.VariadicKeyword[k] = v
	}

	for i, spec := range a.Positional {
		if i < len(args) || filledByKeyword[i] {
			continue
		}
		if !spec.HasDefault {
			return Binding{}, &rmserrors.BindingError{Pipe: pipeLabel, Reason: "missing required argument '" + spec.Name + "'"}
		}
		b.Args[i] = spec.DefaultValue
	}

	return b, nil
}

// BindPartial is the planner's entry point: it never fails on a missing
// argument (those slots stay nil, to be filled later by
// replace_virtualresource), but it still rejects structurally impossible
// calls -- too many positional args for a non-variadic pipe, or an
// unexpected keyword for a pipe with no **kwargs.
func (a PipeArity) BindPartial(pipeLabel string, args []any, kwargs map[string]any) (Binding, error) {
	b, _, err := a.bindPositional(args)
	if err != nil {
		return Binding{}, &rmserrors.BindingError{Pipe: pipeLabel, Reason: err.Error()}
	}
	for k, v := range kwargs {
		if i := a.fixedIndex(k); i >= 0 {
			b.Args[i] = v
			continue
		}
		if !a.VarKeyword {
			return Binding{}, &rmserrors.BindingError{Pipe: pipeLabel, Reason: "unexpected keyword argument '" + k + "'"}
		}
		if b.VariadicKeyword == nil {
			b.VariadicKeyword = make(map[string]any)
		}
		b.VariadicKeyword[k] = v
	}
	return b, nil
}

func (a PipeArity) bindPositional(args []any) (Binding, []bool, error) {
	b := Binding{Args: make([]any, len(a.Positional))}
	filled := make([]bool, len(a.Positional))
	if len(args) > len(a.Positional) {
		if !a.VarPositional {
			return Binding{}, nil, fmt.Errorf("too many positional arguments: got %d, want at most %d", len(args), len(a.Positional))
		}
		copy(b.Args, args[:len(a.Positional)])
		for i := range b.Args[:len(a.Positional)] {
			filled[i] = true
		}
		b.VariadicPositional = append([]any{}, args[len(a.Positional):]...)
	} else {
		copy(b.Args, args)
		for i := range args {
			filled[i] = true
		}
	}
	return b, filled, nil
}
