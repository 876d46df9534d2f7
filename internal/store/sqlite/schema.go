package sqlite

// Schema is the DDL for the local calendar database.
const Schema = `
CREATE TABLE IF NOT EXISTS calendars (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    is_default  INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id           TEXT PRIMARY KEY,
    calendar_id  TEXT NOT NULL,
    uid          TEXT NOT NULL,
    sequence     INTEGER NOT NULL DEFAULT 0,
    status       TEXT,
    data         TEXT NOT NULL,
    updated_at   INTEGER NOT NULL,
    UNIQUE(calendar_id, uid),
    FOREIGN KEY (calendar_id) REFERENCES calendars(id)
);

CREATE INDEX IF NOT EXISTS idx_events_uid ON events(uid);
`
