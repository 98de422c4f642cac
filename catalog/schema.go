package catalog

// schema holds the bit-exact DDL for every table the kernel persists.
// Column names and table names are part of the external interface and
// must not drift: other collaborators (backup utilities, the HTTP
// wrapper) read this schema directly.
const schema = `
CREATE TABLE IF NOT EXISTS metainfo (
	infokey   TEXT PRIMARY KEY,
	infovalue TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pipes (
	pid              TEXT PRIMARY KEY,
	func             TEXT NOT NULL,
	return_volatile  SMALLINT NOT NULL,
	is_deterministic SMALLINT NOT NULL,
	module_name      TEXT NOT NULL,
	func_name        TEXT NOT NULL,
	output_func      TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS resources (
	rid         TEXT PRIMARY KEY,
	task_id     TEXT,
	volatile    SMALLINT NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS files (
	fid         TEXT PRIMARY KEY,
	task_id     TEXT,
	file_path   TEXT NOT NULL,
	md5         TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tasks (
	tid         TEXT PRIMARY KEY,
	pid         TEXT NOT NULL REFERENCES pipes(pid),
	begin_time  TIMESTAMPTZ NOT NULL,
	end_time    TIMESTAMPTZ NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tasks_returnvalue (
	tid TEXT NOT NULL REFERENCES tasks(tid),
	rid TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks_outputfiles (
	tid    TEXT NOT NULL REFERENCES tasks(tid),
	forder INTEGER NOT NULL,
	fid    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks_args_json (
	tid       TEXT NOT NULL REFERENCES tasks(tid),
	arg_order INTEGER NOT NULL,
	value     JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks_args_resource (
	tid       TEXT NOT NULL REFERENCES tasks(tid),
	arg_order INTEGER NOT NULL,
	value     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks_args_file (
	tid       TEXT NOT NULL REFERENCES tasks(tid),
	arg_order INTEGER NOT NULL,
	value     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks_args_pipe (
	tid       TEXT NOT NULL REFERENCES tasks(tid),
	arg_order INTEGER NOT NULL,
	value     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks_kwargs_json (
	tid     TEXT NOT NULL REFERENCES tasks(tid),
	arg_key TEXT NOT NULL,
	value   JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks_kwargs_resource (
	tid     TEXT NOT NULL REFERENCES tasks(tid),
	arg_key TEXT NOT NULL,
	value   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks_kwargs_file (
	tid     TEXT NOT NULL REFERENCES tasks(tid),
	arg_key TEXT NOT NULL,
	value   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks_kwargs_pipe (
	tid     TEXT NOT NULL REFERENCES tasks(tid),
	arg_key TEXT NOT NULL,
	value   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pipe_tags     (pid TEXT NOT NULL REFERENCES pipes(pid),     tag TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS resource_tags (rid TEXT NOT NULL,                           tag TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS file_tags     (fid TEXT NOT NULL,                           tag TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS task_tags     (tid TEXT NOT NULL REFERENCES tasks(tid),     tag TEXT NOT NULL);

CREATE TABLE IF NOT EXISTS pipe_info     (pid TEXT NOT NULL REFERENCES pipes(pid),     infokey TEXT NOT NULL, infovalue TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS resource_info (rid TEXT NOT NULL,                           infokey TEXT NOT NULL, infovalue TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS file_info     (fid TEXT NOT NULL,                           infokey TEXT NOT NULL, infovalue TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS task_info     (tid TEXT NOT NULL REFERENCES tasks(tid),     infokey TEXT NOT NULL, infovalue TEXT NOT NULL);

CREATE INDEX IF NOT EXISTS idx_files_path ON files(file_path);
CREATE INDEX IF NOT EXISTS idx_tasks_pid ON tasks(pid);
CREATE INDEX IF NOT EXISTS idx_resources_task ON resources(task_id);
CREATE INDEX IF NOT EXISTS idx_files_task ON files(task_id);
CREATE INDEX IF NOT EXISTS idx_tasks_args_resource_value ON tasks_args_resource(value);
CREATE INDEX IF NOT EXISTS idx_tasks_args_file_value ON tasks_args_file(value);
CREATE INDEX IF NOT EXISTS idx_tasks_kwargs_resource_value ON tasks_kwargs_resource(value);
CREATE INDEX IF NOT EXISTS idx_tasks_kwargs_file_value ON tasks_kwargs_file(value);
`
