package rms

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"rmscore.evalgo.org/catalog"
	"rmscore.evalgo.org/common"
	"rmscore.evalgo.org/model"
	"rmscore.evalgo.org/rmserrors"
)

// Run binds args/kwargs against pipeID's declared arity, returns the
// prior Task's return-resource on an exact dedup match, and otherwise
// executes the pipe body and commits a new Task/Resource/FileResource
// set in a single Catalog transaction.
func (s *System) Run(ctx context.Context, pipeID string, args []any, kwargs map[string]any, description string, tags []string, info map[string]string) (*model.Resource, error) {
	h, ok := s.FindPipe(pipeID)
	if !ok {
		return nil, fmt.Errorf("rms: pipe %s not registered in this process", pipeID)
	}

	b, err := h.Arity.Bind(h.Pipe.FuncName, args, kwargs)
	if err != nil {
		return nil, err
	}

	taggedArgs, taggedKwargs, _, err := bindingToArgs(b, nil)
	if err != nil {
		return nil, err
	}

	matches, err := s.FindTasksByPipeAndArgs(ctx, pipeID, taggedArgs, taggedKwargs)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return s.taskReturnResource(ctx, matches[0])
	}

	// A second dedup check runs inside the singleflight key's
	// critical section below, under runGroup rather than the coarse
	// lock, so two goroutines racing the same pipe+args execute the
	// pipe body once instead of twice. The Catalog check above remains
	// the authoritative dedup path; this is purely a same-process
	// executor-cost optimization.
	key, keyErr := runGroupKey(pipeID, taggedArgs, taggedKwargs)
	if keyErr != nil {
		return s.runOnce(ctx, h, pipeID, b, taggedArgs, taggedKwargs, description, tags, info)
	}

	v, err, _ := s.runGroup.Do(key, func() (any, error) {
		if again, findErr := s.FindTasksByPipeAndArgs(ctx, pipeID, taggedArgs, taggedKwargs); findErr == nil && len(again) > 0 {
			return s.taskReturnResource(ctx, again[0])
		}
		return s.runOnce(ctx, h, pipeID, b, taggedArgs, taggedKwargs, description, tags, info)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Resource), nil
}

// runGroupKey builds a singleflight key that identifies a pipe
// invocation by its bound, tagged arguments, not by the raw args --
// two calls that resolve to the same tagged args collapse to the same
// key even if passed positionally vs. by keyword.
func runGroupKey(pipeID string, taggedArgs []model.Arg, taggedKwargs map[string]model.Arg) (string, error) {
	enc, err := json.Marshal(struct {
		Pipe   string               `json:"pipe"`
		Args   []model.Arg          `json:"args"`
		Kwargs map[string]model.Arg `json:"kwargs"`
	}{pipeID, taggedArgs, taggedKwargs})
	if err != nil {
		return "", err
	}
	return string(enc), nil
}

// runOnce executes b's pipe body and commits the resulting Task once,
// outside of any dedup fast path. Callers are responsible for having
// already checked the Catalog for a prior match.
func (s *System) runOnce(ctx context.Context, h *PipeHandle, pipeID string, b model.Binding, taggedArgs []model.Arg, taggedKwargs map[string]model.Arg, description string, tags []string, info map[string]string) (*model.Resource, error) {
	resolvedArgs, resolvedKwargs, err := s.resolveBinding(ctx, b)
	if err != nil {
		return nil, err
	}

	var outputPaths []string
	if h.OutputFunc != nil {
		outputPaths, err = h.OutputFunc(resolvedArgs, resolvedKwargs)
		if err != nil {
			return nil, fmt.Errorf("rms: output_func: %w", err)
		}
	}

	beginTime := time.Now().UTC()
	retVal, err := h.Func(ctx, resolvedArgs, resolvedKwargs)
	if err != nil {
		return nil, err
	}
	endTime := time.Now().UTC()

	var keptPaths []string
	for _, p := range outputPaths {
		if _, statErr := os.Stat(p); statErr != nil {
			common.Logger.WithField("pipe", pipeID).WithField("path", p).Warn("rms: declared output path missing, dropping from task")
			continue
		}
		keptPaths = append(keptPaths, p)
	}

	content, err := json.Marshal(retVal)
	if err != nil {
		return nil, fmt.Errorf("rms: encode return value: %w", err)
	}

	taskInfo := make(map[string]string, len(info)+1)
	for k, v := range info {
		taskInfo[k] = v
	}
	s.mu.Lock()
	scriptID := s.scriptID
	s.mu.Unlock()
	if scriptID != "" {
		taskInfo[model.InfoScriptID] = scriptID
	}

	tid := model.NewID()
	rid := model.NewID()

	task := &model.Task{
		ID:           tid,
		PipeID:       pipeID,
		Args:         taggedArgs,
		Kwargs:       taggedKwargs,
		BeginTime:    beginTime,
		EndTime:      endTime,
		Description:  description,
		Tags:         tags,
		Info:         taskInfo,
		ReturnValues: []string{rid},
	}
	ret := &model.Resource{
		ID:          rid,
		TaskID:      tid,
		Volatile:    h.Pipe.ReturnVolatile,
		HasContent:  true,
		Content:     content,
		Description: description,
	}

	var outputs []*model.FileResource
	var priorFileIDs []string
	for _, p := range keptPaths {
		sum, err := md5File(p)
		if err != nil {
			return nil, fmt.Errorf("rms: hash output file %s: %w", p, err)
		}
		fid := model.NewID()
		outputs = append(outputs, &model.FileResource{ID: fid, TaskID: tid, FilePath: p, MD5: sum})
		task.OutputFiles = append(task.OutputFiles, fid)

		live, err := s.cat.FindLiveFileResourcesByPath(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, f := range live {
			priorFileIDs = append(priorFileIDs, f.ID)
		}
	}

	stmts := catalog.InsertFinishedTaskStmts(task, ret, outputs, priorFileIDs, endTime)
	if err := s.cat.ExecuteAtomic(ctx, stmts); err != nil {
		return nil, err
	}

	events := []model.Event{
		{Kind: model.EventInsert, Entity: task.FullID()},
		{Kind: model.EventInsert, Entity: ret.FullID()},
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.resources[ret.ID] = ret
	for _, f := range outputs {
		s.files[f.ID] = f
		events = append(events, model.Event{Kind: model.EventInsert, Entity: f.FullID()})
	}
	for _, fid := range priorFileIDs {
		if prev, ok := s.files[fid]; ok {
			if prev.Info == nil {
				prev.Info = make(map[string]string)
			}
			prev.Info[model.InfoOverwritten] = endTime.Format(time.RFC3339)
		}
		events = append(events, model.Event{Kind: model.EventModify, Entity: model.FullID{Kind: model.KindFileResource, ID: fid}})
	}
	s.mu.Unlock()

	s.fireEvents(events)
	return ret, nil
}

func (s *System) taskReturnResource(ctx context.Context, t *model.Task) (*model.Resource, error) {
	if len(t.ReturnValues) == 0 {
		return nil, fmt.Errorf("rms: task %s has no return value", t.ID)
	}
	e, err := s.Get(ctx, model.FullID{Kind: model.KindResource, ID: t.ReturnValues[0]}, false)
	if err != nil {
		return nil, err
	}
	return e.(*model.Resource), nil
}

// resolveBinding turns a bound call's live entity references into the
// runtime values a pipe body receives: Resource -> content,
// FileResource -> path, Pipe -> callable, scalar -> itself.
func (s *System) resolveBinding(ctx context.Context, b model.Binding) ([]any, map[string]any, error) {
	args := make([]any, 0, len(b.Args)+len(b.VariadicPositional))
	for _, v := range b.Args {
		rv, err := s.resolveBindingValue(ctx, v, false)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, rv)
	}
	for _, v := range b.VariadicPositional {
		rv, err := s.resolveBindingValue(ctx, v, false)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, rv)
	}

	kwargs := make(map[string]any, len(b.Kwargs)+len(b.VariadicKeyword))
	for k, v := range b.Kwargs {
		rv, err := s.resolveBindingValue(ctx, v, false)
		if err != nil {
			return nil, nil, err
		}
		kwargs[k] = rv
	}
	for k, v := range b.VariadicKeyword {
		rv, err := s.resolveBindingValue(ctx, v, false)
		if err != nil {
			return nil, nil, err
		}
		kwargs[k] = rv
	}
	return args, kwargs, nil
}

func (s *System) resolveBindingValue(ctx context.Context, v any, allowNonDeterministic bool) (any, error) {
	switch t := v.(type) {
	case *model.Resource:
		if isInvalid(t.Info) {
			return nil, &rmserrors.InvalidInput{Entity: t.ID, Reason: "overwritten or obsolete"}
		}
		return s.obtainResourceContent(ctx, t, true, allowNonDeterministic)
	case *model.FileResource:
		if isInvalid(t.Info) {
			return nil, &rmserrors.InvalidInput{Entity: t.ID, Reason: "overwritten or obsolete"}
		}
		return t.FilePath, nil
	case *model.Pipe:
		h, ok := s.FindPipe(t.ID)
		if !ok {
			return nil, fmt.Errorf("rms: pipe %s not registered in this process", t.ID)
		}
		return h.Func, nil
	default:
		return v, nil
	}
}

// obtainResourceContent returns r's value, materializing it from the
// Content Store or, failing that and with autofetch enabled, by
// deterministically re-executing the Task that produced it.
func (s *System) obtainResourceContent(ctx context.Context, r *model.Resource, autofetch, allowNonDeterministic bool) (any, error) {
	if r.Volatile && r.VolatileConsumed() {
		return nil, &rmserrors.ResourceNotReady{Reason: "volatile resource content already consumed"}
	}
	if r.HasContent {
		v, err := decodeContent(r.Content)
		if err != nil {
			return nil, err
		}
		if r.Volatile {
			r.MarkVolatileConsumed()
			r.HasContent = false
			r.Content = nil
		}
		return v, nil
	}

	raw, err := s.content.Load(r.ID)
	if err == nil {
		return decodeContent(raw)
	}
	if !autofetch {
		return nil, &rmserrors.ContentMissing{ResourceID: r.ID}
	}
	return s.autoFetch(ctx, r, allowNonDeterministic)
}

// autoFetch re-derives a missing resource's content by re-running its
// producing pipe on its recorded inputs. No Task is recorded; this
// exists purely to rematerialize a value the Content Store lost.
func (s *System) autoFetch(ctx context.Context, r *model.Resource, allowNonDeterministic bool) (any, error) {
	if r.TaskID == "" {
		return nil, &rmserrors.ContentMissing{ResourceID: r.ID}
	}
	te, err := s.Get(ctx, model.FullID{Kind: model.KindTask, ID: r.TaskID}, false)
	if err != nil {
		return nil, err
	}
	task := te.(*model.Task)

	pe, err := s.Get(ctx, model.FullID{Kind: model.KindPipe, ID: task.PipeID}, false)
	if err != nil {
		return nil, err
	}
	pipe := pe.(*model.Pipe)
	if !pipe.IsDeterministic && !allowNonDeterministic {
		return nil, &rmserrors.NonDeterministic{PipeID: pipe.ID}
	}
	h, ok := s.FindPipe(pipe.ID)
	if !ok {
		return nil, &rmserrors.ContentMissing{ResourceID: r.ID}
	}

	for _, fid := range task.OutputFiles {
		fe, err := s.Get(ctx, model.FullID{Kind: model.KindFileResource, ID: fid}, false)
		if err != nil {
			return nil, err
		}
		fr := fe.(*model.FileResource)
		if _, statErr := os.Stat(fr.FilePath); statErr == nil {
			return nil, &rmserrors.WouldOverwriteFile{Path: fr.FilePath}
		}
	}

	args := make([]any, len(task.Args))
	for i, a := range task.Args {
		v, err := s.resolveArg(ctx, a, allowNonDeterministic)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	kwargs := make(map[string]any, len(task.Kwargs))
	for k, a := range task.Kwargs {
		v, err := s.resolveArg(ctx, a, allowNonDeterministic)
		if err != nil {
			return nil, err
		}
		kwargs[k] = v
	}

	retVal, err := s.runPipe(ctx, h, args, kwargs)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(retVal)
	if err != nil {
		return nil, fmt.Errorf("rms: encode refetched content: %w", err)
	}
	r.Content = raw
	r.HasContent = true
	s.fireEvents([]model.Event{{Kind: model.EventContentChange, Entity: r.FullID()}})
	return retVal, nil
}

// runPipe invokes a pipe handle's body directly, with no dedup check,
// no catalog write, and no Registry cache update -- the unregistered
// execution path auto-fetch uses.
func (s *System) runPipe(ctx context.Context, h *PipeHandle, args []any, kwargs map[string]any) (any, error) {
	return h.Func(ctx, args, kwargs)
}

// SaveResourceContent persists r's current in-RAM content to the
// Content Store, so a volatile-but-dumped resource survives process
// exit. It is a no-op error if r carries no content to save.
func (s *System) SaveResourceContent(r *model.Resource) error {
	if !r.HasContent {
		return fmt.Errorf("rms: resource %s has no in-memory content to save", r.ID)
	}
	return s.content.Store(r.ID, r.Content)
}

func decodeContent(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("rms: decode resource content: %w", err)
	}
	return v, nil
}
