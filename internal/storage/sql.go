package storage

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS uplinks (
    id          TEXT PRIMARY KEY,
    dev_eui     TEXT NOT NULL,
    f_port      INTEGER NOT NULL,
    f_cnt       INTEGER NOT NULL,
    received_at INTEGER NOT NULL,
    kind        TEXT NOT NULL,
    payload     TEXT NOT NULL,
    plausible   INTEGER NOT NULL,
    consistent  INTEGER NOT NULL,
    tracking    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_uplinks_device_time ON uplinks(dev_eui, received_at DESC);
`

const insertUplinkSQL = `
INSERT OR IGNORE INTO uplinks (id, dev_eui, f_port, f_cnt, received_at, kind, payload, plausible, consistent, tracking)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectUplinksSQL = `
SELECT tracking FROM uplinks
WHERE dev_eui = ?
ORDER BY received_at DESC, rowid DESC
LIMIT ?`

const countUplinksSQL = `SELECT COUNT(*) FROM uplinks WHERE dev_eui = ?`
