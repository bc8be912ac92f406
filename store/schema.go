package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Schema creates the content and run-log tables. Timestamps are unix
// milliseconds and election dates YYYY-MM-DD text, so the same DDL runs on
// SQLite and Postgres.
const Schema = `
CREATE TABLE IF NOT EXISTS news (
    id             TEXT PRIMARY KEY,
    title          TEXT NOT NULL,
    content        TEXT NOT NULL DEFAULT '',
    title_bn       TEXT NOT NULL DEFAULT '',
    content_bn     TEXT NOT NULL DEFAULT '',
    category       TEXT NOT NULL DEFAULT '',
    image_url      TEXT NOT NULL DEFAULT '',
    published_date BIGINT,
    scraped_at     BIGINT,
    created_at     BIGINT NOT NULL,
    updated_at     BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_news_published ON news(published_date);

CREATE TABLE IF NOT EXISTS notices (
    id             TEXT PRIMARY KEY,
    title          TEXT NOT NULL,
    content        TEXT NOT NULL DEFAULT '',
    title_bn       TEXT NOT NULL DEFAULT '',
    content_bn     TEXT NOT NULL DEFAULT '',
    priority       TEXT NOT NULL DEFAULT 'medium',
    notice_type    TEXT NOT NULL DEFAULT '',
    file_url       TEXT NOT NULL DEFAULT '',
    published_date BIGINT,
    scraped_at     BIGINT,
    created_at     BIGINT NOT NULL,
    updated_at     BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notices_published ON notices(published_date);

CREATE TABLE IF NOT EXISTS officers (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    name_bn         TEXT NOT NULL DEFAULT '',
    position        TEXT NOT NULL DEFAULT '',
    position_bn     TEXT NOT NULL DEFAULT '',
    department      TEXT NOT NULL DEFAULT '',
    email           TEXT NOT NULL DEFAULT '',
    phone           TEXT NOT NULL DEFAULT '',
    image_url       TEXT NOT NULL DEFAULT '',
    hierarchy_level BIGINT NOT NULL DEFAULT 0,
    scraped_at      BIGINT,
    created_at      BIGINT NOT NULL,
    updated_at      BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_officers_level ON officers(hierarchy_level);

CREATE TABLE IF NOT EXISTS elections (
    id             TEXT PRIMARY KEY,
    title          TEXT NOT NULL,
    title_bn       TEXT NOT NULL DEFAULT '',
    description    TEXT NOT NULL DEFAULT '',
    description_bn TEXT NOT NULL DEFAULT '',
    election_date  TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'upcoming',
    results        TEXT NOT NULL DEFAULT '',
    scraped_at     BIGINT,
    created_at     BIGINT NOT NULL,
    updated_at     BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_elections_date ON elections(election_date);

CREATE TABLE IF NOT EXISTS scraping_logs (
    id             TEXT PRIMARY KEY,
    job_id         TEXT NOT NULL UNIQUE,
    target_type    TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'running',
    items_scraped  BIGINT NOT NULL DEFAULT 0,
    items_rejected BIGINT NOT NULL DEFAULT 0,
    error_message  TEXT NOT NULL DEFAULT '',
    started_at     BIGINT NOT NULL,
    completed_at   BIGINT
);
CREATE INDEX IF NOT EXISTS idx_scraping_logs_started ON scraping_logs(started_at DESC);
`

// ApplySchema creates the tables if they do not exist. Statements run one by
// one so the extended query protocol never sees a multi-statement string.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: apply schema: %w", err)
		}
	}
	return nil
}
