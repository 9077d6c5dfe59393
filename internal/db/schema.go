package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS progress (
    user_id INTEGER PRIMARY KEY,
    stage INTEGER NOT NULL DEFAULT 0,
    non_tech_streak INTEGER NOT NULL DEFAULT 0,
    submitted_links TEXT NOT NULL DEFAULT '[]',
    quiz_passed BOOLEAN NOT NULL DEFAULT FALSE,
    awaiting_link BOOLEAN NOT NULL DEFAULT FALSE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_progress_stage ON progress(stage);

CREATE TABLE IF NOT EXISTS lessons (
    stage INTEGER PRIMARY KEY,
    content TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
