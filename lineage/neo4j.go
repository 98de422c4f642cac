// Package lineage provides an optional Neo4j-backed mirror of the
// provenance graph. It is not the source of truth -- the Catalog Store
// is -- but a sidecar kept in sync via the Registry's own event
// listener mechanism, useful for deployments that want graph-native
// traversal (shortest path, transitive closure) at a scale where the
// Catalog's recursive-join queries get expensive.
package lineage

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"rmscore.evalgo.org/model"
)

// Mirror writes entity nodes and their edges to a Neo4j graph.
type Mirror struct {
	driver neo4j.DriverWithContext
}

// NewMirror connects to a Neo4j instance and verifies connectivity.
func NewMirror(ctx context.Context, uri, username, password string) (*Mirror, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("lineage: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("lineage: connect: %w", err)
	}
	return &Mirror{driver: driver}, nil
}

// Close releases the underlying driver.
func (m *Mirror) Close(ctx context.Context) error { return m.driver.Close(ctx) }

func label(k model.Kind) string {
	switch k {
	case model.KindPipe:
		return "Pipe"
	case model.KindTask:
		return "Task"
	case model.KindResource:
		return "Resource"
	case model.KindFileResource:
		return "FileResource"
	default:
		return "Entity"
	}
}

// UpsertTask writes a Task node and its PRODUCES/CONSUMED_BY/RUNS edges to
// its pipe, input entities, and output entities, merging rather than
// replacing so repeated syncs are idempotent.
func (m *Mirror) UpsertTask(ctx context.Context, tid, pid string, inputs, outputs []model.FullID) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MERGE (t:Task {id: $tid})`, map[string]any{"tid": tid}); err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx, `
			MATCH (t:Task {id: $tid})
			MERGE (p:Pipe {id: $pid})
			MERGE (t)-[:RUNS]->(p)
		`, map[string]any{"tid": tid, "pid": pid}); err != nil {
			return nil, err
		}
		for _, in := range inputs {
			if _, err := tx.Run(ctx, fmt.Sprintf(`
				MATCH (t:Task {id: $tid})
				MERGE (n:%s {id: $nid})
				MERGE (n)-[:CONSUMED_BY]->(t)
			`, label(in.Kind)), map[string]any{"tid": tid, "nid": in.ID}); err != nil {
				return nil, err
			}
		}
		for _, out := range outputs {
			if _, err := tx.Run(ctx, fmt.Sprintf(`
				MATCH (t:Task {id: $tid})
				MERGE (n:%s {id: $nid})
				MERGE (t)-[:PRODUCES]->(n)
			`, label(out.Kind)), map[string]any{"tid": tid, "nid": out.ID}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// Delete removes an entity node and every edge touching it.
func (m *Mirror) Delete(ctx context.Context, id model.FullID) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, fmt.Sprintf(`MATCH (n:%s {id: $id}) DETACH DELETE n`, label(id.Kind)), map[string]any{"id": id.ID})
	})
	return err
}

// Upstream returns every id upstream of id within maxDepth hops
// (unlimited when maxDepth <= 0): the producing task for a
// Resource/FileResource, the inputs of a Task, and so on transitively.
func (m *Mirror) Upstream(ctx context.Context, id model.FullID, maxDepth int) ([]string, error) {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	depth := "*1.."
	if maxDepth > 0 {
		depth = fmt.Sprintf("*1..%d", maxDepth)
	}
	query := fmt.Sprintf(`
		MATCH (n {id: $id})<-[:PRODUCES|RUNS|CONSUMED_BY%s]-(up)
		RETURN DISTINCT up.id AS id
	`, depth)

	result, err := session.Run(ctx, query, map[string]any{"id": id.ID})
	if err != nil {
		return nil, err
	}
	var out []string
	for result.Next(ctx) {
		if v, ok := result.Record().Get("id"); ok {
			out = append(out, v.(string))
		}
	}
	return out, result.Err()
}

// FindPath returns the shortest path of ids between two entities, or
// nil if none exists.
func (m *Mirror) FindPath(ctx context.Context, from, to model.FullID) ([]string, error) {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH p = shortestPath((a {id: $from})-[*]-(b {id: $to}))
		RETURN [n IN nodes(p) | n.id] AS ids
	`, map[string]any{"from": from.ID, "to": to.ID})
	if err != nil {
		return nil, err
	}
	if !result.Next(ctx) {
		return nil, result.Err()
	}
	raw, _ := result.Record().Get("ids")
	list, _ := raw.([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, v.(string))
	}
	return out, nil
}
