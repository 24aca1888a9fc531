package dataset

// SchemaVersion is the current dataset schema version.
const SchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
    year INTEGER PRIMARY KEY,
    households INTEGER NOT NULL,
    people INTEGER NOT NULL,
    checksum TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS arrays (
    year INTEGER NOT NULL,
    name TEXT NOT NULL,
    data BLOB NOT NULL,
    PRIMARY KEY (year, name),
    FOREIGN KEY (year) REFERENCES datasets(year) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);
`

const insertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

const getSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
