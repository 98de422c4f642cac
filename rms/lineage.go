package rms

import (
	"context"

	"rmscore.evalgo.org/catalog"
	"rmscore.evalgo.org/model"
)

// Predicate gates whether a visited node is (a) included in the result
// set and (b) expanded for further traversal. The two are independent:
// a node can be expanded through without appearing in the results, or
// included without its own neighbors ever being visited.
type Predicate func(model.FullID) bool

func alwaysTrue(model.FullID) bool { return true }

// direction selects which half of a node's neighbor relation a
// traversal follows.
type direction int

const (
	dirUpstream direction = iota
	dirDownstream
	dirBoth
)

// neighbors returns id's upstream and downstream neighbor sets per the
// kernel's fixed relation table:
//
//	Resource/FileResource -> its producing Task (upstream); the Tasks
//	        and UnrunTasks that take it as input (downstream)
//	Task -> its input resources/files/pipes (upstream); its return
//	        resource and output files (downstream)
//	UnrunTask -> its bound inputs and input virtual resources (upstream);
//	             its output virtual resources (downstream)
//	VirtualResource <-> the UnrunTasks that consume/produce it
//	Pipe -> Tasks/UnrunTasks that take it as an input argument (downstream only)
func (s *System) neighbors(ctx context.Context, id model.FullID) (upstream, downstream []model.FullID, err error) {
	switch id.Kind {
	case model.KindResource:
		e, err := s.Get(ctx, id, false)
		if err != nil {
			return nil, nil, err
		}
		r := e.(*model.Resource)
		if r.TaskID != "" {
			upstream = append(upstream, model.FullID{Kind: model.KindTask, ID: r.TaskID})
		}
		downstream, err = s.unrunTasksConsuming(id)
		if err != nil {
			return nil, nil, err
		}
		realDown, err := s.cat.FindTasksByIO(ctx, catalog.IOInputResource, []string{id.ID})
		if err != nil {
			return nil, nil, err
		}
		for _, t := range realDown {
			downstream = append(downstream, model.FullID{Kind: model.KindTask, ID: t.ID})
		}
		return upstream, downstream, nil

	case model.KindFileResource:
		e, err := s.Get(ctx, id, false)
		if err != nil {
			return nil, nil, err
		}
		f := e.(*model.FileResource)
		if f.TaskID != "" {
			upstream = append(upstream, model.FullID{Kind: model.KindTask, ID: f.TaskID})
		}
		downstream, err = s.unrunTasksConsuming(id)
		if err != nil {
			return nil, nil, err
		}
		realDown, err := s.cat.FindTasksByIO(ctx, catalog.IOInputFile, []string{id.ID})
		if err != nil {
			return nil, nil, err
		}
		for _, t := range realDown {
			downstream = append(downstream, model.FullID{Kind: model.KindTask, ID: t.ID})
		}
		return upstream, downstream, nil

	case model.KindPipe:
		downstream, err = s.unrunTasksConsuming(id)
		if err != nil {
			return nil, nil, err
		}
		realDown, err := s.cat.FindTasksByIO(ctx, catalog.IOInputPipe, []string{id.ID})
		if err != nil {
			return nil, nil, err
		}
		for _, t := range realDown {
			downstream = append(downstream, model.FullID{Kind: model.KindTask, ID: t.ID})
		}
		return nil, downstream, nil

	case model.KindTask:
		e, err := s.Get(ctx, id, false)
		if err != nil {
			return nil, nil, err
		}
		t := e.(*model.Task)
		for _, a := range t.Args {
			if ref, ok := argFullID(a); ok {
				upstream = append(upstream, ref)
			}
		}
		for _, a := range t.Kwargs {
			if ref, ok := argFullID(a); ok {
				upstream = append(upstream, ref)
			}
		}
		for _, r := range t.ReturnValues {
			downstream = append(downstream, model.FullID{Kind: model.KindResource, ID: r})
		}
		for _, f := range t.OutputFiles {
			downstream = append(downstream, model.FullID{Kind: model.KindFileResource, ID: f})
		}
		return upstream, downstream, nil

	case model.KindUnrunTask:
		s.mu.Lock()
		u, ok := s.unruns[id.ID]
		s.mu.Unlock()
		if !ok {
			return nil, nil, nil
		}
		for _, v := range bindingValues(u.Binding) {
			if ref, ok := anyFullID(v); ok {
				upstream = append(upstream, ref)
			}
		}
		for _, v := range u.ReturnValues {
			downstream = append(downstream, v.FullID())
		}
		for _, v := range u.OutputFiles {
			downstream = append(downstream, v.FullID())
		}
		return upstream, downstream, nil

	case model.KindVirtualResource:
		producers, consumers := s.virtualResourceEdges(id.ID)
		return producers, consumers, nil

	default:
		return nil, nil, nil
	}
}

func argFullID(a model.Arg) (model.FullID, bool) {
	switch a.Kind {
	case model.ArgResourceRef:
		return model.FullID{Kind: model.KindResource, ID: a.RefID}, true
	case model.ArgFileRef:
		return model.FullID{Kind: model.KindFileResource, ID: a.RefID}, true
	case model.ArgPipeRef:
		return model.FullID{Kind: model.KindPipe, ID: a.RefID}, true
	default:
		return model.FullID{}, false
	}
}

func anyFullID(v any) (model.FullID, bool) {
	switch t := v.(type) {
	case *model.Pipe:
		return t.FullID(), true
	case *model.Resource:
		return t.FullID(), true
	case *model.FileResource:
		return t.FullID(), true
	case *model.VirtualResource:
		return t.FullID(), true
	default:
		return model.FullID{}, false
	}
}

func bindingValues(b model.Binding) []any {
	vals := append([]any{}, b.Args...)
	for _, v := range b.Kwargs {
		vals = append(vals, v)
	}
	vals = append(vals, b.VariadicPositional...)
	for _, v := range b.VariadicKeyword {
		vals = append(vals, v)
	}
	return vals
}

// unrunTasksConsuming returns the UnrunTasks whose binding references id
// directly -- the downstream-via-unrun-task edge real resources and
// file-resources carry in addition to their real Task consumers.
func (s *System) unrunTasksConsuming(id model.FullID) ([]model.FullID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.FullID
	for _, u := range s.unruns {
		for _, v := range bindingValues(u.Binding) {
			if ref, ok := anyFullID(v); ok && ref == id {
				out = append(out, u.FullID())
				break
			}
		}
	}
	return out, nil
}

// virtualResourceEdges returns the UnrunTasks that produce (upstream)
// and consume (downstream) a given VirtualResource id.
func (s *System) virtualResourceEdges(vid string) (producers, consumers []model.FullID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.unruns {
		for _, v := range u.ReturnValues {
			if v.ID == vid {
				producers = append(producers, u.FullID())
			}
		}
		for _, v := range u.OutputFiles {
			if v.ID == vid {
				producers = append(producers, u.FullID())
			}
		}
		for _, v := range bindingValues(u.Binding) {
			if vr, ok := v.(*model.VirtualResource); ok && vr.ID == vid {
				consumers = append(consumers, u.FullID())
			}
		}
	}
	return producers, consumers
}

// findObjsByDFS is the shared depth-first traversal underlying
// FindUpstreamObjs/FindDownstreamObjs/FindConnectedObjs. Seeds are never
// included in the result, even when reachable from another seed. A node
// is visited at most once regardless of how many paths
// reach it. distance < 0 means unlimited.
func (s *System) findObjsByDFS(ctx context.Context, seeds []model.FullID, dir direction, distance int, include, continueSearch Predicate, target map[model.FullID]bool) ([]model.FullID, error) {
	if include == nil {
		include = alwaysTrue
	}
	if continueSearch == nil {
		continueSearch = alwaysTrue
	}

	type frame struct {
		id    model.FullID
		depth int
	}

	visited := make(map[model.FullID]bool)
	seedSet := make(map[model.FullID]bool, len(seeds))
	for _, sd := range seeds {
		seedSet[sd] = true
	}

	var stack []frame
	for _, sd := range seeds {
		stack = append(stack, frame{id: sd, depth: 0})
	}

	var results []model.FullID
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[f.id] {
			continue
		}
		visited[f.id] = true

		if !seedSet[f.id] && include(f.id) && (target == nil || target[f.id]) {
			results = append(results, f.id)
		}

		if distance >= 0 && f.depth >= distance {
			continue
		}
		if !continueSearch(f.id) {
			continue
		}

		up, down, err := s.neighbors(ctx, f.id)
		if err != nil {
			return nil, err
		}
		var next []model.FullID
		switch dir {
		case dirUpstream:
			next = up
		case dirDownstream:
			next = down
		case dirBoth:
			next = append(append([]model.FullID{}, up...), down...)
		}
		for _, n := range next {
			if !visited[n] {
				stack = append(stack, frame{id: n, depth: f.depth + 1})
			}
		}
	}
	return results, nil
}

// FindUpstreamObjs traverses upstream from seeds.
func (s *System) FindUpstreamObjs(ctx context.Context, seeds []model.FullID, distance int, include, continueSearch Predicate, target map[model.FullID]bool) ([]model.FullID, error) {
	return s.findObjsByDFS(ctx, seeds, dirUpstream, distance, include, continueSearch, target)
}

// FindDownstreamObjs traverses downstream from seeds.
func (s *System) FindDownstreamObjs(ctx context.Context, seeds []model.FullID, distance int, include, continueSearch Predicate, target map[model.FullID]bool) ([]model.FullID, error) {
	return s.findObjsByDFS(ctx, seeds, dirDownstream, distance, include, continueSearch, target)
}

// FindConnectedObjs traverses both upstream and downstream from seeds.
func (s *System) FindConnectedObjs(ctx context.Context, seeds []model.FullID, distance int, include, continueSearch Predicate, target map[model.FullID]bool) ([]model.FullID, error) {
	return s.findObjsByDFS(ctx, seeds, dirBoth, distance, include, continueSearch, target)
}
