package store

// migration is one schema step. Statements run individually so both drivers
// accept them.
type migration struct {
	version    int
	statements []string
}

var sqliteMigrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS conversations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				customer_email TEXT NOT NULL,
				state INTEGER NOT NULL DEFAULT 2,
				threads_count INTEGER NOT NULL DEFAULT 0,
				last_reply_at INTEGER,
				auto_reply_sent INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_customer_email ON conversations(customer_email)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_state ON conversations(state)`,
			`CREATE TABLE IF NOT EXISTS threads (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id INTEGER NOT NULL,
				type INTEGER NOT NULL,
				body TEXT,
				action_type INTEGER,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_threads_conversation_id ON threads(conversation_id)`,
			`CREATE TABLE IF NOT EXISTS attachments (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				thread_id INTEGER NOT NULL,
				file_name TEXT NOT NULL DEFAULT '',
				size INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_attachments_thread_id ON attachments(thread_id)`,
		},
	},
	{
		version: 2,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS maintenance_runs (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				started_at INTEGER NOT NULL,
				finished_at INTEGER NOT NULL,
				dry_run INTEGER NOT NULL DEFAULT 0,
				error TEXT NOT NULL DEFAULT '',
				conversations_merged INTEGER NOT NULL DEFAULT 0,
				conversations_deleted INTEGER NOT NULL DEFAULT 0,
				threads_moved INTEGER NOT NULL DEFAULT 0,
				threads_cleaned INTEGER NOT NULL DEFAULT 0,
				echoes_deleted INTEGER NOT NULL DEFAULT 0,
				duplicates_deleted INTEGER NOT NULL DEFAULT 0,
				lineitems_deleted INTEGER NOT NULL DEFAULT 0,
				attachments_deleted INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_maintenance_runs_started_at ON maintenance_runs(started_at)`,
		},
	},
}

var postgresMigrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS conversations (
				id BIGSERIAL PRIMARY KEY,
				customer_email TEXT NOT NULL,
				state INTEGER NOT NULL DEFAULT 2,
				threads_count INTEGER NOT NULL DEFAULT 0,
				last_reply_at BIGINT,
				auto_reply_sent INTEGER NOT NULL DEFAULT 0,
				created_at BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_customer_email ON conversations(customer_email)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_state ON conversations(state)`,
			`CREATE TABLE IF NOT EXISTS threads (
				id BIGSERIAL PRIMARY KEY,
				conversation_id BIGINT NOT NULL,
				type INTEGER NOT NULL,
				body TEXT,
				action_type INTEGER,
				created_at BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_threads_conversation_id ON threads(conversation_id)`,
			`CREATE TABLE IF NOT EXISTS attachments (
				id BIGSERIAL PRIMARY KEY,
				thread_id BIGINT NOT NULL,
				file_name TEXT NOT NULL DEFAULT '',
				size BIGINT NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_attachments_thread_id ON attachments(thread_id)`,
		},
	},
	{
		version: 2,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS maintenance_runs (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				started_at BIGINT NOT NULL,
				finished_at BIGINT NOT NULL,
				dry_run INTEGER NOT NULL DEFAULT 0,
				error TEXT NOT NULL DEFAULT '',
				conversations_merged INTEGER NOT NULL DEFAULT 0,
				conversations_deleted INTEGER NOT NULL DEFAULT 0,
				threads_moved INTEGER NOT NULL DEFAULT 0,
				threads_cleaned INTEGER NOT NULL DEFAULT 0,
				echoes_deleted INTEGER NOT NULL DEFAULT 0,
				duplicates_deleted INTEGER NOT NULL DEFAULT 0,
				lineitems_deleted INTEGER NOT NULL DEFAULT 0,
				attachments_deleted INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_maintenance_runs_started_at ON maintenance_runs(started_at)`,
		},
	},
}
