package rms

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"rmscore.evalgo.org/catalog"
	"rmscore.evalgo.org/db"
	"rmscore.evalgo.org/fingerprint"
	"rmscore.evalgo.org/model"
	"rmscore.evalgo.org/rmserrors"
)

// PipeOptions carries the identity and metadata a caller supplies when
// registering a pipe. ModuleName/FuncName/Version are fed into the
// fingerprint in place of the original's serialized-callable bytes;
// SourceText is the interactive-context analogue (func.__module__ ==
// "__main__") -- set it when the pipe is defined ad hoc (a script, a
// REPL-style tool) rather than imported from a versioned package, and
// the kernel records it under info["sourcecode"] and folds its
// normalized form into the identity fingerprint.
type PipeOptions struct {
	ModuleName      string
	FuncName        string
	Version         string
	SourceText      string
	ReturnVolatile  bool
	IsDeterministic bool
	OutputFunc      model.OutputFunc
	OutputSource    string
	Description     string
	Tags            []string
}

// RegisterPipe looks for an existing Pipe with a matching identity
// tuple and returns it if found; otherwise it inserts a new one. Either
// way, the just-supplied fn/outputFunc become the live handle used by
// Run in this process -- pipes are only ever invoked through a
// registered handle, never through a value round-tripped from storage.
func (s *System) RegisterPipe(ctx context.Context, fn model.PipeFunc, arity model.PipeArity, opts PipeOptions) (*model.Pipe, error) {
	fp := fingerprint.Fingerprint(fingerprint.Source{
		ModulePath: opts.ModuleName, SymbolName: opts.FuncName,
		SourceText: opts.SourceText, Version: opts.Version,
	})
	var outFp string
	if opts.OutputFunc != nil {
		outFp = fingerprint.Fingerprint(fingerprint.Source{
			ModulePath: opts.ModuleName, SymbolName: opts.FuncName + ":output",
			SourceText: opts.OutputSource, Version: opts.Version,
		})
	}

	existing, err := s.cat.FindPipeByIdentity(ctx, opts.ModuleName, opts.FuncName, opts.ReturnVolatile, opts.IsDeterministic, fp, outFp)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.mu.Lock()
		s.pipes[existing.ID] = &PipeHandle{Pipe: existing, Arity: arity, Func: fn, OutputFunc: opts.OutputFunc}
		s.mu.Unlock()
		return existing, nil
	}

	p := &model.Pipe{
		ID: model.NewID(), ModuleName: opts.ModuleName, FuncName: opts.FuncName,
		ReturnVolatile: opts.ReturnVolatile, IsDeterministic: opts.IsDeterministic,
		Fingerprint: fp, OutputFingerprint: outFp, HasOutputFunc: opts.OutputFunc != nil,
		Description: opts.Description, Tags: opts.Tags, Info: map[string]string{},
	}
	if opts.SourceText != "" {
		p.Info[model.InfoSourceCode] = fingerprint.Normalize(opts.SourceText)
	}

	if err := s.cat.ExecuteAtomic(ctx, catalog.InsertPipeStmts(p)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.pipes[p.ID] = &PipeHandle{Pipe: p, Arity: arity, Func: fn, OutputFunc: opts.OutputFunc}
	s.mu.Unlock()
	s.fireEvents([]model.Event{{Kind: model.EventInsert, Entity: p.FullID()}})
	return p, nil
}

// RegisterFile resolves path to an absolute path and registers it as a
// FileResource. If force is false and a live FileResource already
// exists at that path, it is returned unchanged; otherwise a new one is
// inserted and any prior live FileResource at the same path is marked
// overwritten, in the same transaction.
func (s *System) RegisterFile(ctx context.Context, path, description string, tags []string, force bool) (*model.FileResource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	live, err := s.cat.FindLiveFileResourcesByPath(ctx, abs)
	if err != nil {
		return nil, err
	}
	if !force && len(live) > 0 {
		f := live[0]
		s.mu.Lock()
		s.files[f.ID] = f
		s.mu.Unlock()
		return f, nil
	}

	sum, err := md5File(abs)
	if err != nil {
		return nil, err
	}
	f := &model.FileResource{ID: model.NewID(), FilePath: abs, MD5: sum, Description: description, Tags: tags, Info: map[string]string{}}

	stmts := catalog.InsertFileResourceStmts(f)
	now := time.Now().UTC().Format(time.RFC3339)
	events := []model.Event{{Kind: model.EventInsert, Entity: f.FullID()}}
	for _, prior := range live {
		stmts = append(stmts, catalog.MarkInfoStmt(model.KindFileResource, prior.ID, model.InfoOverwritten, now))
		events = append(events, model.Event{Kind: model.EventModify, Entity: prior.FullID()})
	}

	if err := s.cat.ExecuteAtomic(ctx, stmts); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.files[f.ID] = f
	for _, prior := range live {
		if cached, ok := s.files[prior.ID]; ok {
			if cached.Info == nil {
				cached.Info = map[string]string{}
			}
			cached.Info[model.InfoOverwritten] = now
		}
	}
	s.mu.Unlock()

	s.fireEvents(events)
	return f, nil
}

func md5File(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:]), nil
}

// Get returns the cached entity for id, reloading from the Catalog
// Store and reconciling in place when refetch is true so existing
// holders of the pointer observe the refreshed fields.
func (s *System) Get(ctx context.Context, id model.FullID, refetch bool) (model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch id.Kind {
	case model.KindPipe:
		if h, ok := s.pipes[id.ID]; ok && !refetch {
			return h.Pipe, nil
		}
		p, err := s.cat.GetPipe(ctx, id.ID)
		if err != nil {
			return nil, err
		}
		if h, ok := s.pipes[id.ID]; ok {
			*h.Pipe = *p
			return h.Pipe, nil
		}
		s.pipes[id.ID] = &PipeHandle{Pipe: p}
		return p, nil
	case model.KindTask:
		if t, ok := s.tasks[id.ID]; ok && !refetch {
			return t, nil
		}
		t, err := s.cat.GetTask(ctx, id.ID)
		if err != nil {
			return nil, err
		}
		if cached, ok := s.tasks[id.ID]; ok {
			*cached = *t
			return cached, nil
		}
		s.tasks[id.ID] = t
		return t, nil
	case model.KindResource:
		if r, ok := s.resources[id.ID]; ok && !refetch {
			return r, nil
		}
		r, err := s.cat.GetResource(ctx, id.ID)
		if err != nil {
			return nil, err
		}
		if cached, ok := s.resources[id.ID]; ok {
			cached.TaskID, cached.Volatile, cached.Description, cached.Tags, cached.Info = r.TaskID, r.Volatile, r.Description, r.Tags, r.Info
			return cached, nil
		}
		s.resources[id.ID] = r
		return r, nil
	case model.KindFileResource:
		if f, ok := s.files[id.ID]; ok && !refetch {
			return f, nil
		}
		f, err := s.cat.GetFileResource(ctx, id.ID)
		if err != nil {
			return nil, err
		}
		if cached, ok := s.files[id.ID]; ok {
			*cached = *f
			return cached, nil
		}
		s.files[id.ID] = f
		return f, nil
	case model.KindVirtualResource:
		if v, ok := s.virtuals[id.ID]; ok {
			return v, nil
		}
		return nil, &rmserrors.NotRegistered{Path: id.ID}
	case model.KindUnrunTask:
		if u, ok := s.unruns[id.ID]; ok {
			return u, nil
		}
		return nil, &rmserrors.NotRegistered{Path: id.ID}
	default:
		return nil, &rmserrors.NotRegistered{Path: id.ID}
	}
}

// FileFromPath returns the single live FileResource registered at the
// absolute form of path.
func (s *System) FileFromPath(ctx context.Context, path string) (*model.FileResource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	live, err := s.cat.FindLiveFileResourcesByPath(ctx, abs)
	if err != nil {
		return nil, err
	}
	if len(live) == 0 {
		return nil, &rmserrors.NotRegistered{Path: abs}
	}
	if len(live) > 1 {
		return nil, &rmserrors.Ambiguous{Path: abs, Count: len(live)}
	}
	s.mu.Lock()
	s.files[live[0].ID] = live[0]
	s.mu.Unlock()
	return live[0], nil
}

// FindPipe returns the Pipe handle registered under id, if any is
// loaded in this process.
func (s *System) FindPipe(id string) (*PipeHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.pipes[id]
	return h, ok
}

// ListPipes returns every registered Pipe's current catalog record, for
// administrative listing rather than per-invocation lookups.
func (s *System) ListPipes(ctx context.Context) ([]*model.Pipe, error) {
	ids, err := s.cat.ListPipeIDs(ctx)
	if err != nil {
		return nil, err
	}
	pipes := make([]*model.Pipe, 0, len(ids))
	for _, id := range ids {
		e, err := s.Get(ctx, model.FullID{Kind: model.KindPipe, ID: id}, false)
		if err != nil {
			return nil, err
		}
		pipes = append(pipes, e.(*model.Pipe))
	}
	return pipes, nil
}

// FindTasksByPipe returns every Task invoking any of the given Pipes.
func (s *System) FindTasksByPipe(ctx context.Context, pids []string) ([]*model.Task, error) {
	return s.cat.FindTasksByPipe(ctx, pids)
}

// FindTasksByIO returns every Task referencing any of ids as the given
// kind of input or output.
func (s *System) FindTasksByIO(ctx context.Context, kind catalog.IOKind, ids []string) ([]*model.Task, error) {
	return s.cat.FindTasksByIO(ctx, kind, ids)
}

// FindTasksByPipeAndArgs returns every Task invoking pid whose bound
// args/kwargs are element-wise equal to the given binding -- the
// kernel's deduplication check.
func (s *System) FindTasksByPipeAndArgs(ctx context.Context, pid string, args []model.Arg, kwargs map[string]model.Arg) ([]*model.Task, error) {
	candidates, err := s.cat.FindTasksByPipe(ctx, []string{pid})
	if err != nil {
		return nil, err
	}
	var matches []*model.Task
	for _, t := range candidates {
		if tasksMatchArgs(t, args, kwargs) {
			matches = append(matches, t)
		}
	}
	return matches, nil
}

// Update applies a single column-level change to an entity's primary
// table row and fires MODIFY.
func (s *System) Update(ctx context.Context, id model.FullID, column string, value any) (model.Entity, error) {
	stmt := catalog.UpdateColumnStmt(id.Kind, id.ID, column, value)
	if err := s.cat.ExecuteAtomic(ctx, []db.Statement{stmt}); err != nil {
		return nil, err
	}
	e, err := s.Get(ctx, id, true)
	if err != nil {
		return nil, err
	}
	s.fireEvents([]model.Event{{Kind: model.EventModify, Entity: id}})
	return e, nil
}

// MarkDeprecated writes info[deprecated]=now for id and, if
// propagate, for every entity reachable downstream from it.
func (s *System) MarkDeprecated(ctx context.Context, id model.FullID, propagate bool) error {
	targets := []model.FullID{id}
	if propagate {
		down, err := s.FindDownstreamObjs(ctx, []model.FullID{id}, -1, nil, nil, nil)
		if err != nil {
			return err
		}
		targets = append(targets, down...)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var stmts []db.Statement
	var events []model.Event
	for _, t := range targets {
		if t.Kind == model.KindVirtualResource || t.Kind == model.KindUnrunTask {
			continue // virtual entities carry no persisted info map
		}
		stmts = append(stmts, catalog.MarkInfoStmt(t.Kind, t.ID, model.InfoDeprecated, now))
		events = append(events, model.Event{Kind: model.EventModify, Entity: t})
	}
	if len(stmts) == 0 {
		return nil
	}
	if err := s.cat.ExecuteAtomic(ctx, stmts); err != nil {
		return err
	}
	for _, t := range targets {
		if _, err := s.Get(ctx, t, true); err != nil {
			return err
		}
	}
	s.fireEvents(events)
	return nil
}

// Delete removes every id in ids, failing atomically with
// DependencyBreak if any entity outside the requested set still depends
// on one of them. Virtual entities (UnrunTask/VirtualResource) are
// purely in-memory and never block or get blocked by dependency checks.
func (s *System) Delete(ctx context.Context, ids ...model.FullID) error {
	var real, virtual []model.FullID
	for _, id := range ids {
		if id.Kind == model.KindVirtualResource || id.Kind == model.KindUnrunTask {
			virtual = append(virtual, id)
		} else {
			real = append(real, id)
		}
	}

	requested := make(map[model.FullID]bool, len(real))
	for _, id := range real {
		requested[id] = true
	}

	var stmts []db.Statement
	var events []model.Event
	for _, id := range real {
		dependents, err := s.dependentIDs(ctx, id)
		if err != nil {
			return err
		}
		var outside []string
		for _, d := range dependents {
			if !requested[d] {
				outside = append(outside, d.ID)
			}
		}
		if len(outside) > 0 {
			req := make([]string, len(real))
			for i, r := range real {
				req[i] = r.ID
			}
			return &rmserrors.DependencyBreak{Requested: req, Dependents: outside}
		}
		stmts = append(stmts, catalog.DeleteEntityStmts(id.Kind, id.ID)...)
		events = append(events, model.Event{Kind: model.EventDelete, Entity: id})
	}

	if len(stmts) > 0 {
		if err := s.cat.ExecuteAtomic(ctx, stmts); err != nil {
			return err
		}
	}

	s.mu.Lock()
	for _, id := range real {
		switch id.Kind {
		case model.KindPipe:
			delete(s.pipes, id.ID)
		case model.KindTask:
			delete(s.tasks, id.ID)
		case model.KindResource:
			delete(s.resources, id.ID)
		case model.KindFileResource:
			delete(s.files, id.ID)
		}
	}
	for _, id := range virtual {
		switch id.Kind {
		case model.KindVirtualResource:
			delete(s.virtuals, id.ID)
		case model.KindUnrunTask:
			delete(s.unruns, id.ID)
		}
	}
	s.mu.Unlock()

	for _, id := range virtual {
		events = append(events, model.Event{Kind: model.EventDelete, Entity: id})
	}
	s.fireEvents(events)
	return nil
}

// dependentIDs returns the full set of entities whose removal id's
// deletion would orphan: for Resource/FileResource/Pipe, the Tasks that
// reference them as io; for Task, its own return-resource and output
// files.
func (s *System) dependentIDs(ctx context.Context, id model.FullID) ([]model.FullID, error) {
	switch id.Kind {
	case model.KindTask:
		rids, fids, err := s.cat.TaskOutputIDs(ctx, id.ID)
		if err != nil {
			return nil, err
		}
		out := make([]model.FullID, 0, len(rids)+len(fids))
		for _, r := range rids {
			out = append(out, model.FullID{Kind: model.KindResource, ID: r})
		}
		for _, f := range fids {
			out = append(out, model.FullID{Kind: model.KindFileResource, ID: f})
		}
		return out, nil
	case model.KindResource, model.KindFileResource, model.KindPipe:
		tids, err := s.cat.DependentTaskIDs(ctx, id.ID)
		if err != nil {
			return nil, err
		}
		out := make([]model.FullID, len(tids))
		for i, t := range tids {
			out[i] = model.FullID{Kind: model.KindTask, ID: t}
		}
		return out, nil
	default:
		return nil, nil
	}
}
