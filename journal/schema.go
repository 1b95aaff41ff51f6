package journal

const Schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	level TEXT NOT NULL,
	scope_key TEXT NOT NULL,
	code TEXT NOT NULL,
	message TEXT NOT NULL,
	time DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_scope ON events(scope_key);
CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);

CREATE TABLE IF NOT EXISTS intervals (
	scope_key TEXT PRIMARY KEY,
	minutes INTEGER NOT NULL,
	updated DATETIME NOT NULL
);
`
