package rms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"rmscore.evalgo.org/model"
	"rmscore.evalgo.org/rmserrors"
)

// toArg converts one bound call argument into the tagged variant the
// catalog persists. Entity references are compared by id for
// deduplication; scalars are compared by canonical JSON so that
// equal-value-but-different-type scalars like 1 and 1.0 are settled by
// whatever encoding/json's own number formatting decides, consistently.
func toArg(v any) (model.Arg, error) {
	switch t := v.(type) {
	case *model.Pipe:
		return model.Arg{Kind: model.ArgPipeRef, RefID: t.ID}, nil
	case *model.Resource:
		return model.Arg{Kind: model.ArgResourceRef, RefID: t.ID}, nil
	case *model.FileResource:
		return model.Arg{Kind: model.ArgFileRef, RefID: t.ID}, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return model.Arg{}, fmt.Errorf("rms: encode scalar argument: %w", err)
		}
		return model.Arg{Kind: model.ArgScalar, ScalarJSON: raw}, nil
	}
}

func argsEqual(a, b model.Arg) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == model.ArgScalar {
		return bytes.Equal(a.ScalarJSON, b.ScalarJSON)
	}
	return a.RefID == b.RefID
}

// bindingToArgs converts a fully-resolved Binding into the catalog's
// tagged-variant Args/Kwargs. The schema has no slot for variadic
// parameters beyond the fixed positional/keyword tables, so this folds
// VariadicPositional onto the end of Args and VariadicKeyword into
// Kwargs.
func bindingToArgs(b model.Binding, kwargOrder []string) ([]model.Arg, map[string]model.Arg, []string, error) {
	args := make([]model.Arg, len(b.Args))
	for i, v := range b.Args {
		a, err := toArg(v)
		if err != nil {
			return nil, nil, nil, err
		}
		args[i] = a
	}
	for _, v := range b.VariadicPositional {
		a, err := toArg(v)
		if err != nil {
			return nil, nil, nil, err
		}
		args = append(args, a)
	}

	kwargs := make(map[string]model.Arg, len(b.Kwargs)+len(b.VariadicKeyword))
	order := append([]string{}, kwargOrder...)
	for k, v := range b.Kwargs {
		a, err := toArg(v)
		if err != nil {
			return nil, nil, nil, err
		}
		kwargs[k] = a
	}
	for k, v := range b.VariadicKeyword {
		a, err := toArg(v)
		if err != nil {
			return nil, nil, nil, err
		}
		kwargs[k] = a
		order = append(order, k)
	}
	return args, kwargs, order, nil
}

// tasksMatchArgs reports whether a catalog-loaded Task's Args/Kwargs are
// element-wise equal to a freshly bound call, per the Task dedup rule:
// same pipe id (checked by the caller), exact arity match, scalar args
// compared by canonical JSON, entity args compared by id.
func tasksMatchArgs(t *model.Task, args []model.Arg, kwargs map[string]model.Arg) bool {
	if len(t.Args) != len(args) {
		return false
	}
	for i := range args {
		if !argsEqual(t.Args[i], args[i]) {
			return false
		}
	}
	if len(t.Kwargs) != len(kwargs) {
		return false
	}
	for k, v := range kwargs {
		tv, ok := t.Kwargs[k]
		if !ok || !argsEqual(tv, v) {
			return false
		}
	}
	return true
}

// resolveArg turns a catalog Arg back into a runtime value the pipe body
// (or the dedup/output-func computation) operates on, materializing
// entity references through the System's caches. Resources resolve to
// their content (autofetch enabled); FileResources resolve to their
// absolute path string; Pipes resolve to their Pipe handle.
func (s *System) resolveArg(ctx context.Context, a model.Arg, allowNonDeterministic bool) (any, error) {
	switch a.Kind {
	case model.ArgScalar:
		var v any
		if err := json.Unmarshal(a.ScalarJSON, &v); err != nil {
			return nil, fmt.Errorf("rms: decode scalar argument: %w", err)
		}
		return v, nil
	case model.ArgResourceRef:
		r, err := s.Get(ctx, model.FullID{Kind: model.KindResource, ID: a.RefID}, false)
		if err != nil {
			return nil, err
		}
		res := r.(*model.Resource)
		if isInvalid(res.Info) {
			return nil, &rmserrors.InvalidInput{Entity: res.ID, Reason: "overwritten or obsolete"}
		}
		return s.obtainResourceContent(ctx, res, true, allowNonDeterministic)
	case model.ArgFileRef:
		f, err := s.Get(ctx, model.FullID{Kind: model.KindFileResource, ID: a.RefID}, false)
		if err != nil {
			return nil, err
		}
		fr := f.(*model.FileResource)
		if isInvalid(fr.Info) {
			return nil, &rmserrors.InvalidInput{Entity: fr.ID, Reason: "overwritten or obsolete"}
		}
		return fr.FilePath, nil
	case model.ArgPipeRef:
		s.mu.Lock()
		h, ok := s.pipes[a.RefID]
		s.mu.Unlock()
		if !ok {
			return nil, &rmserrors.InvalidInput{Entity: a.RefID, Reason: "pipe handle not loaded in this process"}
		}
		return h.Pipe, nil
	default:
		return nil, fmt.Errorf("rms: unknown arg kind %d", a.Kind)
	}
}

func isInvalid(info map[string]string) bool {
	if info == nil {
		return false
	}
	_, overwritten := info[model.InfoOverwritten]
	_, deprecated := info["obsolete"]
	return overwritten || deprecated
}
