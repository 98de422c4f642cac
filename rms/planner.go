package rms

import (
	"context"
	"fmt"

	"rmscore.evalgo.org/model"
	"rmscore.evalgo.org/rmserrors"
)

// CreateVirtualResource mints a placeholder standing in for a
// not-yet-produced Resource or FileResource. It lives only in memory
// until ReplaceVirtualResource or ReplaceUnrunTask resolves it.
func (s *System) CreateVirtualResource() *model.VirtualResource {
	v := &model.VirtualResource{ID: model.NewID()}
	s.mu.Lock()
	s.virtuals[v.ID] = v
	s.mu.Unlock()
	return v
}

// UnrunTaskOptions carries the metadata an UnrunTask's eventual Task,
// Resource, and FileResource records will receive once it is run.
type UnrunTaskOptions struct {
	TaskDescription         string
	TaskTags                []string
	TaskInfo                map[string]string
	ResourceDescription     string
	ResourceTags            []string
	ResourceInfo            map[string]string
	FileResourceDescription string
	FileResourceTags        []string
	FileResourceInfo        map[string]string
}

// CreateUnrunTask binds args/kwargs partially against pid's declared
// arity -- unbound parameters are left nil, to be filled later by
// ReplaceVirtualResource -- and allocates one fresh VirtualResource per
// requested return value and output file.
func (s *System) CreateUnrunTask(pid string, args []any, kwargs map[string]any, numReturnValues, numOutputFiles int, opts UnrunTaskOptions) (*model.UnrunTask, error) {
	h, ok := s.FindPipe(pid)
	if !ok {
		return nil, fmt.Errorf("rms: pipe %s not registered in this process", pid)
	}
	b, err := h.Arity.BindPartial(h.Pipe.FuncName, args, kwargs)
	if err != nil {
		return nil, err
	}

	u := &model.UnrunTask{
		ID:                      model.NewID(),
		PipeID:                  pid,
		Binding:                 b,
		TaskDescription:         opts.TaskDescription,
		TaskTags:                opts.TaskTags,
		TaskInfo:                opts.TaskInfo,
		ResourceDescription:     opts.ResourceDescription,
		ResourceTags:            opts.ResourceTags,
		ResourceInfo:            opts.ResourceInfo,
		FileResourceDescription: opts.FileResourceDescription,
		FileResourceTags:        opts.FileResourceTags,
		FileResourceInfo:        opts.FileResourceInfo,
	}

	s.mu.Lock()
	for i := 0; i < numReturnValues; i++ {
		v := &model.VirtualResource{ID: model.NewID()}
		s.virtuals[v.ID] = v
		u.ReturnValues = append(u.ReturnValues, v)
	}
	for i := 0; i < numOutputFiles; i++ {
		v := &model.VirtualResource{ID: model.NewID()}
		s.virtuals[v.ID] = v
		u.OutputFiles = append(u.OutputFiles, v)
	}
	s.unruns[u.ID] = u
	s.mu.Unlock()
	return u, nil
}

// CreateUnrunTaskFromTask builds an UnrunTask mirroring a completed
// Task's call shape -- same pipe, same bound argument values -- without
// recording any new entity beyond the virtual outputs. It is the
// per-task building block CreateUnrunTaskChain applies across a whole
// sub-graph.
func (s *System) CreateUnrunTaskFromTask(ctx context.Context, t *model.Task, substitute map[model.FullID]any, opts UnrunTaskOptions) (*model.UnrunTask, error) {
	h, ok := s.FindPipe(t.PipeID)
	if !ok {
		return nil, fmt.Errorf("rms: pipe %s not registered in this process", t.PipeID)
	}

	args := make([]any, len(t.Args))
	for i, a := range t.Args {
		v, err := s.argToPlannerValue(ctx, a, substitute)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	kwargs := make(map[string]any, len(t.Kwargs))
	for k, a := range t.Kwargs {
		v, err := s.argToPlannerValue(ctx, a, substitute)
		if err != nil {
			return nil, err
		}
		kwargs[k] = v
	}

	b, err := h.Arity.BindPartial(h.Pipe.FuncName, args, kwargs)
	if err != nil {
		return nil, err
	}

	u := &model.UnrunTask{
		ID:                      model.NewID(),
		PipeID:                  t.PipeID,
		Binding:                 b,
		TaskDescription:         opts.TaskDescription,
		TaskTags:                opts.TaskTags,
		TaskInfo:                opts.TaskInfo,
		ResourceDescription:     opts.ResourceDescription,
		ResourceTags:            opts.ResourceTags,
		ResourceInfo:            opts.ResourceInfo,
		FileResourceDescription: opts.FileResourceDescription,
		FileResourceTags:        opts.FileResourceTags,
		FileResourceInfo:        opts.FileResourceInfo,
	}

	s.mu.Lock()
	for range t.ReturnValues {
		v := &model.VirtualResource{ID: model.NewID()}
		s.virtuals[v.ID] = v
		u.ReturnValues = append(u.ReturnValues, v)
	}
	for range t.OutputFiles {
		v := &model.VirtualResource{ID: model.NewID()}
		s.virtuals[v.ID] = v
		u.OutputFiles = append(u.OutputFiles, v)
	}
	s.unruns[u.ID] = u
	s.mu.Unlock()
	return u, nil
}

// argToPlannerValue resolves a persisted Arg to the value an UnrunTask's
// binding should hold: a substituted virtual placeholder if the
// referenced entity is being mirrored by this chain build, otherwise the
// live entity itself (loaded via Get) or the decoded scalar.
func (s *System) argToPlannerValue(ctx context.Context, a model.Arg, substitute map[model.FullID]any) (any, error) {
	switch a.Kind {
	case model.ArgScalar:
		return s.resolveArg(ctx, a, false)
	case model.ArgResourceRef:
		id := model.FullID{Kind: model.KindResource, ID: a.RefID}
		if v, ok := substitute[id]; ok {
			return v, nil
		}
		return s.Get(ctx, id, false)
	case model.ArgFileRef:
		id := model.FullID{Kind: model.KindFileResource, ID: a.RefID}
		if v, ok := substitute[id]; ok {
			return v, nil
		}
		return s.Get(ctx, id, false)
	case model.ArgPipeRef:
		id := model.FullID{Kind: model.KindPipe, ID: a.RefID}
		if v, ok := substitute[id]; ok {
			return v, nil
		}
		return s.Get(ctx, id, false)
	default:
		return nil, fmt.Errorf("rms: unknown arg kind %d", a.Kind)
	}
}

// CreateUnrunTaskChain takes an existing completed sub-graph rooted at
// seeds and produces a structurally identical virtual twin: every
// Resource/FileResource upstream of seeds is replaced by a fresh
// VirtualResource, every Task producing one of them by an UnrunTask
// whose binding substitutes virtual for real. Substitution proceeds in
// topological (upstream-to-downstream) order so that a Task mirrored
// later in the walk already sees its mirrored inputs.
func (s *System) CreateUnrunTaskChain(ctx context.Context, seeds []model.FullID) ([]model.FullID, error) {
	all, err := s.FindUpstreamObjs(ctx, seeds, -1, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	all = append(all, seeds...)

	order, err := s.topoSortTasks(ctx, all)
	if err != nil {
		return nil, err
	}

	substitute := make(map[model.FullID]any)
	var created []model.FullID

	for _, tid := range order {
		te, err := s.Get(ctx, tid, false)
		if err != nil {
			return nil, err
		}
		task := te.(*model.Task)

		u, err := s.CreateUnrunTaskFromTask(ctx, task, substitute, UnrunTaskOptions{})
		if err != nil {
			return nil, err
		}
		created = append(created, u.FullID())

		for i, rid := range task.ReturnValues {
			if i < len(u.ReturnValues) {
				substitute[model.FullID{Kind: model.KindResource, ID: rid}] = u.ReturnValues[i]
				created = append(created, u.ReturnValues[i].FullID())
			}
		}
		for i, fid := range task.OutputFiles {
			if i < len(u.OutputFiles) {
				substitute[model.FullID{Kind: model.KindFileResource, ID: fid}] = u.OutputFiles[i]
				created = append(created, u.OutputFiles[i].FullID())
			}
		}
	}
	return created, nil
}

// topoSortTasks returns the Task ids among ids in dependency order
// (producers before consumers), via a DFS-based topological sort over
// the resource/file-resource producer edges.
func (s *System) topoSortTasks(ctx context.Context, ids []model.FullID) ([]model.FullID, error) {
	taskSet := make(map[model.FullID]bool)
	for _, id := range ids {
		if id.Kind == model.KindTask {
			taskSet[id] = true
		}
	}

	visited := make(map[model.FullID]bool)
	var order []model.FullID
	var visit func(id model.FullID) error
	visit = func(id model.FullID) error {
		if visited[id] {
			return nil
		}
		visited[id] = true
		up, _, err := s.neighbors(ctx, id)
		if err != nil {
			return err
		}
		for _, n := range up {
			if n.Kind != model.KindResource && n.Kind != model.KindFileResource {
				continue
			}
			producers, _, err := s.neighbors(ctx, n)
			if err != nil {
				return err
			}
			for _, pt := range producers {
				if pt.Kind == model.KindTask && taskSet[pt] {
					if err := visit(pt); err != nil {
						return err
					}
				}
			}
		}
		order = append(order, id)
		return nil
	}

	for id := range taskSet {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// ReplaceVirtualResource walks every direct downstream UnrunTask and
// rewrites its argument binding, substituting realized for vr by
// identity across every parameter kind -- fixed positional, fixed
// keyword (folded into Args, see PipeArity.Bind), variadic positional,
// and variadic keyword. vr is then deleted from the Registry.
func (s *System) ReplaceVirtualResource(vr *model.VirtualResource, realized model.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.unruns {
		substituteInBinding(&u.Binding, vr, realized)
		for i, v := range u.ReturnValues {
			if v == vr {
				u.ReturnValues[i] = nil // a virtual resource never stands in as another's own output
			}
		}
	}
	vr.Replacement = realized
	delete(s.virtuals, vr.ID)
}

func substituteInBinding(b *model.Binding, vr *model.VirtualResource, realized model.Entity) {
	for i, v := range b.Args {
		if v == vr {
			b.Args[i] = realized
		}
	}
	for k, v := range b.Kwargs {
		if v == vr {
			b.Kwargs[k] = realized
		}
	}
	for i, v := range b.VariadicPositional {
		if v == vr {
			b.VariadicPositional[i] = realized
		}
	}
	for k, v := range b.VariadicKeyword {
		if v == vr {
			b.VariadicKeyword[k] = realized
		}
	}
}

// ReplaceUnrunTask pairwise substitutes each of ut's planned
// return_values/output_files into the corresponding element of
// finished, then deletes ut. A length mismatch between a planned list
// and the finished task's actual list skips substitution for that list
// only -- the rest of the pairing still proceeds.
func (s *System) ReplaceUnrunTask(ut *model.UnrunTask, finished *model.Task, finishedResource *model.Resource, finishedFiles []*model.FileResource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ut.ReturnValues) == len(finished.ReturnValues) {
		for _, v := range ut.ReturnValues {
			if v == nil {
				continue
			}
			s.replaceVirtualLocked(v, finishedResource)
		}
	}
	if len(ut.OutputFiles) == len(finishedFiles) {
		for i, v := range ut.OutputFiles {
			if v == nil {
				continue
			}
			s.replaceVirtualLocked(v, finishedFiles[i])
		}
	}
	ut.Replacement = finished
	delete(s.unruns, ut.ID)
}

// replaceVirtualLocked is ReplaceVirtualResource's body, callable while
// s.mu is already held.
func (s *System) replaceVirtualLocked(vr *model.VirtualResource, realized model.Entity) {
	for _, u := range s.unruns {
		substituteInBinding(&u.Binding, vr, realized)
	}
	vr.Replacement = realized
	delete(s.virtuals, vr.ID)
}

// RunUnrunTask requires ut's partial binding to be fully resolved
// (Binding.Ready), runs the same dedup-checked path as Run, and wires
// the finished Task's outputs back into ut's virtual placeholders via
// ReplaceUnrunTask.
func (s *System) RunUnrunTask(ctx context.Context, ut *model.UnrunTask) (*model.Resource, error) {
	if !ut.Binding.Ready() {
		return nil, &rmserrors.ResourceNotReady{Reason: "unrun task " + ut.ID + " has an unresolved virtual input"}
	}

	args, kwargs := bindingArgsKwargs(ut.Binding)
	ret, err := s.Run(ctx, ut.PipeID, args, kwargs, ut.TaskDescription, ut.TaskTags, ut.TaskInfo)
	if err != nil {
		return nil, err
	}

	finishedEntity, err := s.Get(ctx, model.FullID{Kind: model.KindTask, ID: ret.TaskID}, false)
	if err != nil {
		return nil, err
	}
	finished := finishedEntity.(*model.Task)

	var files []*model.FileResource
	for _, fid := range finished.OutputFiles {
		fe, err := s.Get(ctx, model.FullID{Kind: model.KindFileResource, ID: fid}, false)
		if err != nil {
			return nil, err
		}
		files = append(files, fe.(*model.FileResource))
	}

	s.ReplaceUnrunTask(ut, finished, ret, files)
	return ret, nil
}

// bindingArgsKwargs flattens a (fully bound) Binding back into the
// args/kwargs shape Run expects: fixed positional slots plus the
// variadic positional tail as one ordered list, and the variadic
// keyword map as-is (fixed keyword args live inside Args per
// PipeArity.Bind's folding).
func bindingArgsKwargs(b model.Binding) ([]any, map[string]any) {
	args := append(append([]any{}, b.Args...), b.VariadicPositional...)
	return args, b.VariadicKeyword
}

// RunUnrunTaskChain recursively materializes ut's upstream UnrunTasks
// (following the virtual-resource producer edges) before running ut
// itself. If any upstream virtual input remains unresolved after the
// recursion bottoms out, it fails with ResourceNotReady rather than
// looping.
func (s *System) RunUnrunTaskChain(ctx context.Context, ut *model.UnrunTask) (*model.Resource, error) {
	if err := s.materializeUpstream(ctx, ut, make(map[string]bool)); err != nil {
		return nil, err
	}
	if !ut.Binding.Ready() {
		return nil, &rmserrors.ResourceNotReady{Reason: "unrun task " + ut.ID + " still has an unresolved virtual input after upstream materialization"}
	}
	return s.RunUnrunTask(ctx, ut)
}

func (s *System) materializeUpstream(ctx context.Context, ut *model.UnrunTask, inProgress map[string]bool) error {
	if inProgress[ut.ID] {
		return fmt.Errorf("rms: cycle detected materializing unrun task %s", ut.ID)
	}
	inProgress[ut.ID] = true
	defer delete(inProgress, ut.ID)

	for _, v := range bindingValues(ut.Binding) {
		vr, ok := v.(*model.VirtualResource)
		if !ok {
			continue
		}
		s.mu.Lock()
		producer := s.findProducerLocked(vr)
		s.mu.Unlock()
		if producer == nil {
			continue // no known producer -- RunUnrunTask will surface ResourceNotReady if still unresolved
		}
		if err := s.materializeUpstream(ctx, producer, inProgress); err != nil {
			return err
		}
		if !producer.Binding.Ready() {
			continue
		}
		if _, err := s.RunUnrunTask(ctx, producer); err != nil {
			return err
		}
	}
	return nil
}

func (s *System) findProducerLocked(vr *model.VirtualResource) *model.UnrunTask {
	for _, u := range s.unruns {
		for _, v := range u.ReturnValues {
			if v == vr {
				return u
			}
		}
		for _, v := range u.OutputFiles {
			if v == vr {
				return u
			}
		}
	}
	return nil
}
