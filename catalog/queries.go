package catalog

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"

	"rmscore.evalgo.org/model"
	"rmscore.evalgo.org/rmserrors"
)

func (c *Catalog) loadTags(ctx context.Context, table, idCol, id string) ([]string, error) {
	rows, err := c.pg.Query(ctx, "SELECT tag FROM "+table+" WHERE "+idCol+" = $1", id)
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "load tags", Err: err}
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, &rmserrors.CatalogError{Op: "scan tag", Err: err}
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (c *Catalog) loadInfo(ctx context.Context, table, idCol, id string) (map[string]string, error) {
	rows, err := c.pg.Query(ctx, "SELECT infokey, infovalue FROM "+table+" WHERE "+idCol+" = $1", id)
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "load info", Err: err}
	}
	defer rows.Close()
	info := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, &rmserrors.CatalogError{Op: "scan info", Err: err}
		}
		info[k] = v
	}
	return info, rows.Err()
}

// GetPipe loads a Pipe by id, including its tags and info.
func (c *Catalog) GetPipe(ctx context.Context, id string) (*model.Pipe, error) {
	p := &model.Pipe{ID: id}
	var retVol, det int
	err := c.pg.QueryRow(ctx, `SELECT func, return_volatile, is_deterministic, module_name, func_name, output_func, description
	                            FROM pipes WHERE pid = $1`, id).
		Scan(&p.Fingerprint, &retVol, &det, &p.ModuleName, &p.FuncName, &p.OutputFingerprint, &p.Description)
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "get pipe", Err: err}
	}
	p.ReturnVolatile = retVol != 0
	p.IsDeterministic = det != 0
	p.HasOutputFunc = p.OutputFingerprint != ""

	if p.Tags, err = c.loadTags(ctx, "pipe_tags", "pid", id); err != nil {
		return nil, err
	}
	if p.Info, err = c.loadInfo(ctx, "pipe_info", "pid", id); err != nil {
		return nil, err
	}
	return p, nil
}

// FindPipeByIdentity returns the Pipe matching the full dedup identity
// tuple, or nil if none exists.
func (c *Catalog) FindPipeByIdentity(ctx context.Context, moduleName, funcName string, returnVolatile, isDeterministic bool, fingerprint, outputFingerprint string) (*model.Pipe, error) {
	var pid string
	err := c.pg.QueryRow(ctx, `SELECT pid FROM pipes
	                            WHERE module_name = $1 AND func_name = $2 AND return_volatile = $3
	                              AND is_deterministic = $4 AND func = $5 AND output_func = $6`,
		moduleName, funcName, boolCol(returnVolatile), boolCol(isDeterministic), fingerprint, outputFingerprint).Scan(&pid)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // pgx.ErrNoRows means "not found", not a catalog failure
	}
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "find pipe by identity", Err: err}
	}
	return c.GetPipe(ctx, pid)
}

// ListPipeIDs returns every registered pipe id, for administrative
// listing; callers needing full Pipe records load each via GetPipe.
func (c *Catalog) ListPipeIDs(ctx context.Context) ([]string, error) {
	rows, err := c.pg.Query(ctx, `SELECT pid FROM pipes ORDER BY pid`)
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "list pipe ids", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &rmserrors.CatalogError{Op: "list pipe ids scan", Err: err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetResource loads a Resource's catalog-side metadata. Content is never
// stored here; callers resolve content via the Content Store.
func (c *Catalog) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	r := &model.Resource{ID: id}
	var taskID *string
	var vol int
	err := c.pg.QueryRow(ctx, `SELECT task_id, volatile, description FROM resources WHERE rid = $1`, id).
		Scan(&taskID, &vol, &r.Description)
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "get resource", Err: err}
	}
	if taskID != nil {
		r.TaskID = *taskID
	}
	r.Volatile = vol != 0

	if r.Tags, err = c.loadTags(ctx, "resource_tags", "rid", id); err != nil {
		return nil, err
	}
	if r.Info, err = c.loadInfo(ctx, "resource_info", "rid", id); err != nil {
		return nil, err
	}
	return r, nil
}

// GetFileResource loads a FileResource's catalog row, tags, and info.
func (c *Catalog) GetFileResource(ctx context.Context, id string) (*model.FileResource, error) {
	f := &model.FileResource{ID: id}
	var taskID *string
	err := c.pg.QueryRow(ctx, `SELECT task_id, file_path, md5, description FROM files WHERE fid = $1`, id).
		Scan(&taskID, &f.FilePath, &f.MD5, &f.Description)
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "get fileresource", Err: err}
	}
	if taskID != nil {
		f.TaskID = *taskID
	}

	if f.Tags, err = c.loadTags(ctx, "file_tags", "fid", id); err != nil {
		return nil, err
	}
	if f.Info, err = c.loadInfo(ctx, "file_info", "fid", id); err != nil {
		return nil, err
	}
	return f, nil
}

// FindLiveFileResourcesByPath returns every FileResource at path that
// carries neither an "overwritten" nor a "deprecated" info marker.
func (c *Catalog) FindLiveFileResourcesByPath(ctx context.Context, path string) ([]*model.FileResource, error) {
	rows, err := c.pg.Query(ctx, `
		SELECT fid FROM files f
		WHERE f.file_path = $1
		  AND NOT EXISTS (SELECT 1 FROM file_info i WHERE i.fid = f.fid AND i.infokey = $2)
		  AND NOT EXISTS (SELECT 1 FROM file_info i WHERE i.fid = f.fid AND i.infokey = $3)
	`, path, model.InfoOverwritten, model.InfoDeprecated)
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "find live file resources", Err: err}
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, &rmserrors.CatalogError{Op: "scan fid", Err: err}
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, &rmserrors.CatalogError{Op: "find live file resources", Err: err}
	}

	out := make([]*model.FileResource, 0, len(ids))
	for _, id := range ids {
		f, err := c.GetFileResource(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (c *Catalog) loadTaskArgs(ctx context.Context, tid string) ([]model.Arg, error) {
	type row struct {
		order int
		arg    model.Arg
	}
	var rows []row
	for kind, table := range map[model.ArgKind]string{
		model.ArgScalar: "tasks_args_json", model.ArgResourceRef: "tasks_args_resource",
		model.ArgFileRef: "tasks_args_file", model.ArgPipeRef: "tasks_args_pipe",
	} {
		r, err := c.pg.Query(ctx, "SELECT arg_order, value FROM "+table+" WHERE tid = $1", tid)
		if err != nil {
			return nil, &rmserrors.CatalogError{Op: "load task args", Err: err}
		}
		for r.Next() {
			var order int
			var raw []byte
			if err := r.Scan(&order, &raw); err != nil {
				r.Close()
				return nil, &rmserrors.CatalogError{Op: "scan task arg", Err: err}
			}
			a := model.Arg{Kind: kind}
			if kind == model.ArgScalar {
				a.ScalarJSON = raw
			} else {
				a.RefID = string(raw)
			}
			rows = append(rows, row{order: order, arg: a})
		}
		err = r.Err()
		r.Close()
		if err != nil {
			return nil, &rmserrors.CatalogError{Op: "load task args", Err: err}
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].order < rows[j].order })
	args := make([]model.Arg, len(rows))
	for i, r := range rows {
		args[i] = r.arg
	}
	return args, nil
}

func (c *Catalog) loadTaskKwargs(ctx context.Context, tid string) (map[string]model.Arg, []string, error) {
	kwargs := make(map[string]model.Arg)
	for kind, table := range map[model.ArgKind]string{
		model.ArgScalar: "tasks_kwargs_json", model.ArgResourceRef: "tasks_kwargs_resource",
		model.ArgFileRef: "tasks_kwargs_file", model.ArgPipeRef: "tasks_kwargs_pipe",
	} {
		rows, err := c.pg.Query(ctx, "SELECT arg_key, value FROM "+table+" WHERE tid = $1", tid)
		if err != nil {
			return nil, nil, &rmserrors.CatalogError{Op: "load task kwargs", Err: err}
		}
		for rows.Next() {
			var key string
			var raw []byte
			if err := rows.Scan(&key, &raw); err != nil {
				rows.Close()
				return nil, nil, &rmserrors.CatalogError{Op: "scan task kwarg", Err: err}
			}
			a := model.Arg{Kind: kind}
			if kind == model.ArgScalar {
				a.ScalarJSON = raw
			} else {
				a.RefID = string(raw)
			}
			kwargs[key] = a
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, nil, &rmserrors.CatalogError{Op: "load task kwargs", Err: err}
		}
	}
	order := make([]string, 0, len(kwargs))
	for k := range kwargs {
		order = append(order, k)
	}
	sort.Strings(order) // the schema has no kwarg ordinal column; alphabetical order is deterministic and stable across reloads
	return kwargs, order, nil
}

// GetTask loads a Task's full record: pipe id, timestamps, args/kwargs,
// return value, output files, tags, and info.
func (c *Catalog) GetTask(ctx context.Context, id string) (*model.Task, error) {
	t := &model.Task{ID: id}
	err := c.pg.QueryRow(ctx, `SELECT pid, begin_time, end_time, description FROM tasks WHERE tid = $1`, id).
		Scan(&t.PipeID, &t.BeginTime, &t.EndTime, &t.Description)
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "get task", Err: err}
	}

	if t.Args, err = c.loadTaskArgs(ctx, id); err != nil {
		return nil, err
	}
	if t.Kwargs, t.KwargOrder, err = c.loadTaskKwargs(ctx, id); err != nil {
		return nil, err
	}
	if t.Tags, err = c.loadTags(ctx, "task_tags", "tid", id); err != nil {
		return nil, err
	}
	if t.Info, err = c.loadInfo(ctx, "task_info", "tid", id); err != nil {
		return nil, err
	}

	retRows, err := c.pg.Query(ctx, `SELECT rid FROM tasks_returnvalue WHERE tid = $1`, id)
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "load return values", Err: err}
	}
	for retRows.Next() {
		var rid string
		if err := retRows.Scan(&rid); err != nil {
			retRows.Close()
			return nil, &rmserrors.CatalogError{Op: "scan return value", Err: err}
		}
		t.ReturnValues = append(t.ReturnValues, rid)
	}
	err = retRows.Err()
	retRows.Close()
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "load return values", Err: err}
	}

	outRows, err := c.pg.Query(ctx, `SELECT fid FROM tasks_outputfiles WHERE tid = $1 ORDER BY forder`, id)
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "load output files", Err: err}
	}
	for outRows.Next() {
		var fid string
		if err := outRows.Scan(&fid); err != nil {
			outRows.Close()
			return nil, &rmserrors.CatalogError{Op: "scan output file", Err: err}
		}
		t.OutputFiles = append(t.OutputFiles, fid)
	}
	err = outRows.Err()
	outRows.Close()
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "load output files", Err: err}
	}

	return t, nil
}

// FindTasksByPipe returns every Task whose pid is in pids.
func (c *Catalog) FindTasksByPipe(ctx context.Context, pids []string) ([]*model.Task, error) {
	rows, err := c.pg.Query(ctx, `SELECT tid FROM tasks WHERE pid = ANY($1)`, pids)
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "find tasks by pipe", Err: err}
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, &rmserrors.CatalogError{Op: "scan tid", Err: err}
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, &rmserrors.CatalogError{Op: "find tasks by pipe", Err: err}
	}
	return c.loadTasks(ctx, ids)
}

func (c *Catalog) loadTasks(ctx context.Context, ids []string) ([]*model.Task, error) {
	out := make([]*model.Task, 0, len(ids))
	for _, id := range ids {
		t, err := c.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// IOKind selects which side of a Task's argument/output relation
// FindTasksByIO searches.
type IOKind int

const (
	IOInputResource IOKind = iota
	IOInputFile
	IOInputPipe
	IOOutputResource
	IOOutputFile
)

// FindTasksByIO returns every Task referencing any of ids as the given
// kind of input or output.
func (c *Catalog) FindTasksByIO(ctx context.Context, kind IOKind, ids []string) ([]*model.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var query string
	switch kind {
	case IOInputResource:
		query = `SELECT DISTINCT tid FROM tasks_args_resource WHERE value = ANY($1)
		         UNION SELECT DISTINCT tid FROM tasks_kwargs_resource WHERE value = ANY($1)`
	case IOInputFile:
		query = `SELECT DISTINCT tid FROM tasks_args_file WHERE value = ANY($1)
		         UNION SELECT DISTINCT tid FROM tasks_kwargs_file WHERE value = ANY($1)`
	case IOInputPipe:
		query = `SELECT DISTINCT tid FROM tasks_args_pipe WHERE value = ANY($1)
		         UNION SELECT DISTINCT tid FROM tasks_kwargs_pipe WHERE value = ANY($1)`
	case IOOutputResource:
		query = `SELECT DISTINCT tid FROM tasks_returnvalue WHERE rid = ANY($1)`
	case IOOutputFile:
		query = `SELECT DISTINCT tid FROM tasks_outputfiles WHERE fid = ANY($1)`
	}
	rows, err := c.pg.Query(ctx, query, ids)
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "find tasks by io", Err: err}
	}
	var tids []string
	for rows.Next() {
		var tid string
		if err := rows.Scan(&tid); err != nil {
			rows.Close()
			return nil, &rmserrors.CatalogError{Op: "scan tid", Err: err}
		}
		tids = append(tids, tid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, &rmserrors.CatalogError{Op: "find tasks by io", Err: err}
	}
	return c.loadTasks(ctx, tids)
}

// DependentTaskIDs returns every Task id that references entity id as an
// input or output, across the six resource/file/pipe arg and kwarg
// tables and the return/output join tables -- the set delete() must check is a subset of the
// requested deletion.
func (c *Catalog) DependentTaskIDs(ctx context.Context, id string) ([]string, error) {
	rows, err := c.pg.Query(ctx, `
		SELECT tid FROM tasks_args_resource WHERE value = $1
		UNION SELECT tid FROM tasks_kwargs_resource WHERE value = $1
		UNION SELECT tid FROM tasks_args_file WHERE value = $1
		UNION SELECT tid FROM tasks_kwargs_file WHERE value = $1
		UNION SELECT tid FROM tasks_args_pipe WHERE value = $1
		UNION SELECT tid FROM tasks_kwargs_pipe WHERE value = $1
		UNION SELECT tid FROM tasks_returnvalue WHERE rid = $1
		UNION SELECT tid FROM tasks_outputfiles WHERE fid = $1
	`, id)
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "dependent task ids", Err: err}
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var tid string
		if err := rows.Scan(&tid); err != nil {
			return nil, &rmserrors.CatalogError{Op: "scan tid", Err: err}
		}
		out = append(out, tid)
	}
	return out, rows.Err()
}

// TaskOutputIDs returns the return-resource id and output-file ids a
// Task owns -- the dependent set for deleting a Task itself.
func (c *Catalog) TaskOutputIDs(ctx context.Context, tid string) (resourceIDs, fileIDs []string, err error) {
	rows, err := c.pg.Query(ctx, `SELECT rid FROM tasks_returnvalue WHERE tid = $1`, tid)
	if err != nil {
		return nil, nil, &rmserrors.CatalogError{Op: "task output resources", Err: err}
	}
	for rows.Next() {
		var rid string
		if err := rows.Scan(&rid); err != nil {
			rows.Close()
			return nil, nil, &rmserrors.CatalogError{Op: "scan rid", Err: err}
		}
		resourceIDs = append(resourceIDs, rid)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, nil, &rmserrors.CatalogError{Op: "task output resources", Err: err}
	}

	fileRows, err := c.pg.Query(ctx, `SELECT fid FROM tasks_outputfiles WHERE tid = $1`, tid)
	if err != nil {
		return nil, nil, &rmserrors.CatalogError{Op: "task output files", Err: err}
	}
	for fileRows.Next() {
		var fid string
		if err := fileRows.Scan(&fid); err != nil {
			fileRows.Close()
			return nil, nil, &rmserrors.CatalogError{Op: "scan fid", Err: err}
		}
		fileIDs = append(fileIDs, fid)
	}
	err = fileRows.Err()
	fileRows.Close()
	if err != nil {
		return nil, nil, &rmserrors.CatalogError{Op: "task output files", Err: err}
	}
	return resourceIDs, fileIDs, nil
}
