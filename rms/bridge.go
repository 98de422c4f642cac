package rms

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"rmscore.evalgo.org/db"
	"rmscore.evalgo.org/lineage"
	"rmscore.evalgo.org/model"
)

// EnableEventBridge makes this System's events visible to, and aware of,
// every other System sharing the same Catalog database: every locally
// fired event is published on channel via pg_notify, and the System
// subscribes to the same channel so that a peer's mutation evicts or
// refreshes this process's Registry caches. The caller owns pool's
// lifetime and the returned Listener's; call Listener.Stop when this
// System is being torn down.
func (s *System) EnableEventBridge(ctx context.Context, pool *pgxpool.Pool, channel string) (*db.Listener, error) {
	s.RegisterRMSUpdateListener(func(events []model.Event) {
		for _, e := range events {
			n := db.EventNotification{
				Kind:       e.Kind.String(),
				EntityKind: e.Entity.Kind.String(),
				EntityID:   e.Entity.ID,
			}
			_ = db.Publish(ctx, pool, channel, n)
		}
	})

	l := db.NewListener(pool, channel)
	l.OnEvent(func(n db.EventNotification) {
		s.applyRemoteEvent(ctx, n)
	})
	if err := l.Start(); err != nil {
		return nil, err
	}
	return l, nil
}

// applyRemoteEvent reconciles a notification originating from another
// process's System against this System's caches: deletions evict the
// cached entry outright, everything else evicts it too and then
// reloads it from the Catalog right away through Get.
func (s *System) applyRemoteEvent(ctx context.Context, n db.EventNotification) {
	kind, ok := model.KindFromString(n.EntityKind)
	if !ok {
		return
	}
	id := model.FullID{Kind: kind, ID: n.EntityID}

	s.mu.Lock()
	switch kind {
	case model.KindPipe:
		delete(s.pipes, id.ID)
	case model.KindTask:
		delete(s.tasks, id.ID)
	case model.KindResource:
		delete(s.resources, id.ID)
	case model.KindFileResource:
		delete(s.files, id.ID)
	}
	s.mu.Unlock()

	if n.Kind == model.EventDelete.String() {
		return
	}
	// Repopulate eagerly rather than waiting for the next Get, so a
	// listener watching FindConnectedObjs-style traversals observes the
	// peer's write promptly.
	_, _ = s.Get(ctx, id, false)
}

// EnableLineageMirror keeps mirror's Neo4j graph in sync with this
// System's Task/entity inserts and deletes, so deployments that want
// graph-native shortest-path or transitive-closure queries can run them
// against mirror instead of the Catalog's recursive joins. The caller
// owns mirror's lifetime.
func (s *System) EnableLineageMirror(ctx context.Context, mirror *lineage.Mirror) {
	s.RegisterRMSUpdateListener(func(events []model.Event) {
		for _, e := range events {
			switch e.Kind {
			case model.EventInsert:
				if e.Entity.Kind == model.KindTask {
					s.syncTaskToMirror(ctx, mirror, e.Entity.ID)
				}
			case model.EventDelete:
				_ = mirror.Delete(ctx, e.Entity)
			}
		}
	})
}

func (s *System) syncTaskToMirror(ctx context.Context, mirror *lineage.Mirror, tid string) {
	e, err := s.Get(ctx, model.FullID{Kind: model.KindTask, ID: tid}, false)
	if err != nil {
		return
	}
	t := e.(*model.Task)

	var inputs []model.FullID
	for _, a := range t.Args {
		if ref, ok := argFullID(a); ok {
			inputs = append(inputs, ref)
		}
	}
	for _, a := range t.Kwargs {
		if ref, ok := argFullID(a); ok {
			inputs = append(inputs, ref)
		}
	}

	outputs := make([]model.FullID, 0, len(t.ReturnValues)+len(t.OutputFiles))
	for _, rid := range t.ReturnValues {
		outputs = append(outputs, model.FullID{Kind: model.KindResource, ID: rid})
	}
	for _, fid := range t.OutputFiles {
		outputs = append(outputs, model.FullID{Kind: model.KindFileResource, ID: fid})
	}

	_ = mirror.UpsertTask(ctx, tid, t.PipeID, inputs, outputs)
}
