package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmscore.evalgo.org/model"
)

func TestInsertPipeStmtsIncludesTagsAndInfo(t *testing.T) {
	p := &model.Pipe{
		ID:         "p1",
		ModuleName: "pkg",
		FuncName:   "f",
		Tags:       []string{"a", "b"},
		Info:       map[string]string{"k": "v"},
	}
	stmts := InsertPipeStmts(p)
	require.NotEmpty(t, stmts)
	assert.Contains(t, stmts[0].SQL, "INSERT INTO pipes")
	assert.Equal(t, "p1", stmts[0].Params[0])

	var sawTag, sawInfo bool
	for _, s := range stmts[1:] {
		if s.SQL == "INSERT INTO pipe_tags (pid, tag) VALUES ($1, $2)" {
			sawTag = true
		}
		if s.SQL == "INSERT INTO pipe_info (pid, infokey, infovalue) VALUES ($1, $2, $3)" {
			sawInfo = true
		}
	}
	assert.True(t, sawTag)
	assert.True(t, sawInfo)
}

func TestArgTableRoutingByKind(t *testing.T) {
	cases := []struct {
		kind  model.ArgKind
		table string
	}{
		{model.ArgScalar, "tasks_args_json"},
		{model.ArgResourceRef, "tasks_args_resource"},
		{model.ArgFileRef, "tasks_args_file"},
		{model.ArgPipeRef, "tasks_args_pipe"},
	}
	for _, c := range cases {
		assert.Equal(t, c.table, argTable(c.kind))
	}
}

func TestKwargTableRoutingByKind(t *testing.T) {
	cases := []struct {
		kind  model.ArgKind
		table string
	}{
		{model.ArgScalar, "tasks_kwargs_json"},
		{model.ArgResourceRef, "tasks_kwargs_resource"},
		{model.ArgFileRef, "tasks_kwargs_file"},
		{model.ArgPipeRef, "tasks_kwargs_pipe"},
	}
	for _, c := range cases {
		assert.Equal(t, c.table, kwargTable(c.kind))
	}
}

func TestInsertFinishedTaskStmtsCoversOutputsAndOverwrites(t *testing.T) {
	now := time.Now().UTC()
	task := &model.Task{
		ID:           "t1",
		PipeID:       "p1",
		BeginTime:    now,
		EndTime:      now,
		ReturnValues: []string{"r1"},
		OutputFiles:  []string{"f1"},
	}
	ret := &model.Resource{ID: "r1", TaskID: "t1"}
	outputs := []*model.FileResource{{ID: "f1", TaskID: "t1", FilePath: "/tmp/x"}}

	stmts := InsertFinishedTaskStmts(task, ret, outputs, []string{"f0"}, now)

	var sawTaskInsert, sawResourceInsert, sawFileInsert, sawReturnJoin, sawOutputJoin, sawOverwriteMark bool
	for _, s := range stmts {
		switch {
		case s.SQL == `INSERT INTO tasks (tid, pid, begin_time, end_time, description) VALUES ($1, $2, $3, $4, $5)`:
			sawTaskInsert = true
		case s.SQL == `INSERT INTO resources (rid, task_id, volatile, description) VALUES ($1, $2, $3, $4)`:
			sawResourceInsert = true
		case s.SQL == `INSERT INTO files (fid, task_id, file_path, md5, description) VALUES ($1, $2, $3, $4, $5)`:
			sawFileInsert = true
		case s.SQL == `INSERT INTO tasks_returnvalue (tid, rid) VALUES ($1, $2)`:
			sawReturnJoin = true
		case s.SQL == `INSERT INTO tasks_outputfiles (tid, forder, fid) VALUES ($1, $2, $3)`:
			sawOutputJoin = true
		case s.SQL == `INSERT INTO file_info (fid, infokey, infovalue) VALUES ($1, $2, $3)`:
			sawOverwriteMark = true
			assert.Equal(t, "f0", s.Params[0])
			assert.Equal(t, model.InfoOverwritten, s.Params[1])
		}
	}
	assert.True(t, sawTaskInsert)
	assert.True(t, sawResourceInsert)
	assert.True(t, sawFileInsert)
	assert.True(t, sawReturnJoin)
	assert.True(t, sawOutputJoin)
	assert.True(t, sawOverwriteMark)
}

func TestDeleteEntityStmtsCoversEveryKind(t *testing.T) {
	for _, kind := range []model.Kind{model.KindPipe, model.KindResource, model.KindFileResource, model.KindTask} {
		stmts := DeleteEntityStmts(kind, "x1")
		assert.NotEmpty(t, stmts, "kind %v", kind)
		last := stmts[len(stmts)-1]
		assert.Equal(t, "x1", last.Params[0])
	}
}

func TestDeleteEntityStmtsUnknownKind(t *testing.T) {
	assert.Nil(t, DeleteEntityStmts(model.KindVirtualResource, "x1"))
}

func TestUpdateColumnStmtBuildsTargetedUpdate(t *testing.T) {
	stmt := UpdateColumnStmt(model.KindTask, "t1", "description", "new")
	assert.Equal(t, "UPDATE tasks SET description = $1 WHERE tid = $2", stmt.SQL)
	assert.Equal(t, []interface{}{"new", "t1"}, stmt.Params)
}

func TestMarkInfoStmtRoutesToInfoTable(t *testing.T) {
	stmt := MarkInfoStmt(model.KindFileResource, "f1", model.InfoDeprecated, "2026-01-01T00:00:00Z")
	assert.Equal(t, "INSERT INTO file_info (fid, infokey, infovalue) VALUES ($1, $2, $3)", stmt.SQL)
	assert.Equal(t, []interface{}{"f1", model.InfoDeprecated, "2026-01-01T00:00:00Z"}, stmt.Params)
}
