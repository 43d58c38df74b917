package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS mutations (
	id          TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	operation   TEXT NOT NULL,
	payload     TEXT NOT NULL DEFAULT '{}',
	enqueued_at DATETIME NOT NULL,
	synced      INTEGER NOT NULL DEFAULT 0 CHECK(synced IN (0, 1)),
	synced_at   DATETIME,
	attempts    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dead_mutations (
	id          TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	operation   TEXT NOT NULL,
	payload     TEXT NOT NULL DEFAULT '{}',
	enqueued_at DATETIME NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	reason      TEXT NOT NULL DEFAULT '',
	failed_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	title      TEXT NOT NULL,
	body       TEXT NOT NULL DEFAULT '',
	data       TEXT NOT NULL DEFAULT '{}',
	read       INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mutations_synced ON mutations(synced);
CREATE INDEX IF NOT EXISTS idx_mutations_entity_type ON mutations(entity_type);
CREATE INDEX IF NOT EXISTS idx_mutations_enqueued_at ON mutations(enqueued_at);
CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(read);
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_dead_mutations_failed_at
	ON dead_mutations(failed_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
