package catalog

import (
	"time"

	"rmscore.evalgo.org/db"
	"rmscore.evalgo.org/model"
)

func boolCol(b bool) int {
	if b {
		return 1
	}
	return 0
}

func tagStmts(table, idColumn, id string, tags []string) []db.Statement {
	stmts := make([]db.Statement, 0, len(tags))
	for _, t := range tags {
		stmts = append(stmts, db.Statement{
			SQL:    "INSERT INTO " + table + " (" + idColumn + ", tag) VALUES ($1, $2)",
			Params: []interface{}{id, t},
		})
	}
	return stmts
}

func infoStmts(table, idColumn, id string, info map[string]string) []db.Statement {
	stmts := make([]db.Statement, 0, len(info))
	for k, v := range info {
		stmts = append(stmts, db.Statement{
			SQL:    "INSERT INTO " + table + " (" + idColumn + ", infokey, infovalue) VALUES ($1, $2, $3)",
			Params: []interface{}{id, k, v},
		})
	}
	return stmts
}

// InsertPipeStmts builds the statement batch that registers a new Pipe.
func InsertPipeStmts(p *model.Pipe) []db.Statement {
	stmts := []db.Statement{{
		SQL: `INSERT INTO pipes (pid, func, return_volatile, is_deterministic, module_name, func_name, output_func, description)
		      VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		Params: []interface{}{p.ID, p.Fingerprint, boolCol(p.ReturnVolatile), boolCol(p.IsDeterministic), p.ModuleName, p.FuncName, p.OutputFingerprint, p.Description},
	}}
	stmts = append(stmts, tagStmts("pipe_tags", "pid", p.ID, p.Tags)...)
	stmts = append(stmts, infoStmts("pipe_info", "pid", p.ID, p.Info)...)
	return stmts
}

// InsertFileResourceStmts builds the statement batch that registers a
// standalone FileResource (task_id empty).
func InsertFileResourceStmts(f *model.FileResource) []db.Statement {
	var taskID interface{}
	if f.TaskID != "" {
		taskID = f.TaskID
	}
	stmts := []db.Statement{{
		SQL:    `INSERT INTO files (fid, task_id, file_path, md5, description) VALUES ($1, $2, $3, $4, $5)`,
		Params: []interface{}{f.ID, taskID, f.FilePath, f.MD5, f.Description},
	}}
	stmts = append(stmts, tagStmts("file_tags", "fid", f.ID, f.Tags)...)
	stmts = append(stmts, infoStmts("file_info", "fid", f.ID, f.Info)...)
	return stmts
}

func argStmts(tid string, args []model.Arg, kwargOrder []string, kwargs map[string]model.Arg) []db.Statement {
	var stmts []db.Statement
	for i, a := range args {
		stmts = append(stmts, db.Statement{
			SQL:    "INSERT INTO " + argTable(a.Kind) + " (tid, arg_order, value) VALUES ($1, $2, $3)",
			Params: []interface{}{tid, i, argValue(a)},
		})
	}
	for _, key := range kwargOrder {
		a := kwargs[key]
		stmts = append(stmts, db.Statement{
			SQL:    "INSERT INTO " + kwargTable(a.Kind) + " (tid, arg_key, value) VALUES ($1, $2, $3)",
			Params: []interface{}{tid, key, argValue(a)},
		})
	}
	return stmts
}

func argValue(a model.Arg) interface{} {
	if a.Kind == model.ArgScalar {
		return a.ScalarJSON
	}
	return a.RefID
}

func argTable(k model.ArgKind) string {
	switch k {
	case model.ArgResourceRef:
		return "tasks_args_resource"
	case model.ArgFileRef:
		return "tasks_args_file"
	case model.ArgPipeRef:
		return "tasks_args_pipe"
	default:
		return "tasks_args_json"
	}
}

func kwargTable(k model.ArgKind) string {
	switch k {
	case model.ArgResourceRef:
		return "tasks_kwargs_resource"
	case model.ArgFileRef:
		return "tasks_kwargs_file"
	case model.ArgPipeRef:
		return "tasks_kwargs_pipe"
	default:
		return "tasks_kwargs_json"
	}
}

// InsertFinishedTaskStmts builds the full statement batch for one
// register_finished_task commit: the task row, its argument join-table
// rows, its return-value and output-file join rows, the freshly minted
// Resource and FileResource rows it produced, their tag/info sidecars,
// and overwrite-marks for any prior live FileResource sharing an output
// path. Everything here commits in one ExecuteAtomic call.
func InsertFinishedTaskStmts(t *model.Task, ret *model.Resource, outputs []*model.FileResource, overwrittenFileIDs []string, now time.Time) []db.Statement {
	var stmts []db.Statement

	stmts = append(stmts, db.Statement{
		SQL:    `INSERT INTO tasks (tid, pid, begin_time, end_time, description) VALUES ($1, $2, $3, $4, $5)`,
		Params: []interface{}{t.ID, t.PipeID, t.BeginTime, t.EndTime, t.Description},
	})
	stmts = append(stmts, argStmts(t.ID, t.Args, t.KwargOrder, t.Kwargs)...)
	stmts = append(stmts, tagStmts("task_tags", "tid", t.ID, t.Tags)...)
	stmts = append(stmts, infoStmts("task_info", "tid", t.ID, t.Info)...)

	stmts = append(stmts, db.Statement{
		SQL:    `INSERT INTO resources (rid, task_id, volatile, description) VALUES ($1, $2, $3, $4)`,
		Params: []interface{}{ret.ID, t.ID, boolCol(ret.Volatile), ret.Description},
	})
	stmts = append(stmts, tagStmts("resource_tags", "rid", ret.ID, ret.Tags)...)
	stmts = append(stmts, infoStmts("resource_info", "rid", ret.ID, ret.Info)...)
	stmts = append(stmts, db.Statement{
		SQL:    `INSERT INTO tasks_returnvalue (tid, rid) VALUES ($1, $2)`,
		Params: []interface{}{t.ID, ret.ID},
	})

	for i, f := range outputs {
		stmts = append(stmts, db.Statement{
			SQL:    `INSERT INTO files (fid, task_id, file_path, md5, description) VALUES ($1, $2, $3, $4, $5)`,
			Params: []interface{}{f.ID, t.ID, f.FilePath, f.MD5, f.Description},
		})
		stmts = append(stmts, tagStmts("file_tags", "fid", f.ID, f.Tags)...)
		stmts = append(stmts, infoStmts("file_info", "fid", f.ID, f.Info)...)
		stmts = append(stmts, db.Statement{
			SQL:    `INSERT INTO tasks_outputfiles (tid, forder, fid) VALUES ($1, $2, $3)`,
			Params: []interface{}{t.ID, i, f.ID},
		})
	}

	for _, fid := range overwrittenFileIDs {
		stmts = append(stmts, db.Statement{
			SQL:    `INSERT INTO file_info (fid, infokey, infovalue) VALUES ($1, $2, $3)`,
			Params: []interface{}{fid, model.InfoOverwritten, now.Format(time.RFC3339)},
		})
	}

	return stmts
}

// UpdateColumnStmt builds a single column-level UPDATE for one entity
// kind's primary table.
func UpdateColumnStmt(kind model.Kind, id, column string, value interface{}) db.Statement {
	table, idCol := primaryTable(kind)
	return db.Statement{
		SQL:    "UPDATE " + table + " SET " + column + " = $1 WHERE " + idCol + " = $2",
		Params: []interface{}{value, id},
	}
}

// MarkInfoStmt appends an info-map key (deprecated/overwritten markers)
// for one entity. The sidecar tables have no unique constraint on
// (id, infokey) in this schema, mirroring the source's append-only info
// history, so callers that want "set once" semantics should check first.
func MarkInfoStmt(kind model.Kind, id, key, value string) db.Statement {
	table, idCol := infoTable(kind)
	return db.Statement{
		SQL:    "INSERT INTO " + table + " (" + idCol + ", infokey, infovalue) VALUES ($1, $2, $3)",
		Params: []interface{}{id, key, value},
	}
}

func primaryTable(kind model.Kind) (table, idCol string) {
	switch kind {
	case model.KindPipe:
		return "pipes", "pid"
	case model.KindResource:
		return "resources", "rid"
	case model.KindFileResource:
		return "files", "fid"
	case model.KindTask:
		return "tasks", "tid"
	default:
		return "", ""
	}
}

func infoTable(kind model.Kind) (table, idCol string) {
	switch kind {
	case model.KindPipe:
		return "pipe_info", "pid"
	case model.KindResource:
		return "resource_info", "rid"
	case model.KindFileResource:
		return "file_info", "fid"
	case model.KindTask:
		return "task_info", "tid"
	default:
		return "", ""
	}
}

// DeleteEntityStmts builds the full cascade of DELETE statements for one
// entity, covering its primary row and every sidecar/join table that
// references it. Order matters only for foreign-key-constrained tables
// (tasks' own dependents must already be gone by the time this runs;
// the caller is responsible for deleting in dependency order, e.g. via
// DependentIDs).
func DeleteEntityStmts(kind model.Kind, id string) []db.Statement {
	switch kind {
	case model.KindPipe:
		return []db.Statement{
			{SQL: `DELETE FROM pipe_tags WHERE pid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM pipe_info WHERE pid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM pipes WHERE pid = $1`, Params: []interface{}{id}},
		}
	case model.KindResource:
		return []db.Statement{
			{SQL: `DELETE FROM resource_tags WHERE rid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM resource_info WHERE rid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_returnvalue WHERE rid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_args_resource WHERE value = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_kwargs_resource WHERE value = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM resources WHERE rid = $1`, Params: []interface{}{id}},
		}
	case model.KindFileResource:
		return []db.Statement{
			{SQL: `DELETE FROM file_tags WHERE fid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM file_info WHERE fid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_outputfiles WHERE fid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_args_file WHERE value = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_kwargs_file WHERE value = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM files WHERE fid = $1`, Params: []interface{}{id}},
		}
	case model.KindTask:
		return []db.Statement{
			{SQL: `DELETE FROM task_tags WHERE tid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM task_info WHERE tid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_args_json WHERE tid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_args_resource WHERE tid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_args_file WHERE tid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_args_pipe WHERE tid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_kwargs_json WHERE tid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_kwargs_resource WHERE tid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_kwargs_file WHERE tid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_kwargs_pipe WHERE tid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_returnvalue WHERE tid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks_outputfiles WHERE tid = $1`, Params: []interface{}{id}},
			{SQL: `DELETE FROM tasks WHERE tid = $1`, Params: []interface{}{id}},
		}
	default:
		return nil
	}
}
