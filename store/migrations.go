package store

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
    id TEXT PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    alias TEXT NOT NULL DEFAULT '',
    country TEXT NOT NULL DEFAULT '',
    tier TEXT NOT NULL DEFAULT 'free',
    total_points INTEGER NOT NULL DEFAULT 0,
    stripe_customer_id TEXT NOT NULL DEFAULT '',
    trial_started_at INTEGER,
    guest_merged_at INTEGER,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE TABLE IF NOT EXISTS game_sessions (
    id TEXT PRIMARY KEY,
    invite_code TEXT UNIQUE NOT NULL,
    host_user_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'open',
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE TABLE IF NOT EXISTS session_participants (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    display_name TEXT NOT NULL,
    score INTEGER NOT NULL DEFAULT 0,
    joined_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    UNIQUE (session_id, user_id),
    FOREIGN KEY (session_id) REFERENCES game_sessions(id)
);

CREATE TABLE IF NOT EXISTS game_rounds (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    round_number INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'open',
    payload TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    FOREIGN KEY (session_id) REFERENCES game_sessions(id)
);

CREATE TABLE IF NOT EXISTS round_answers (
    round_id TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    selected_index INTEGER NOT NULL,
    is_correct INTEGER NOT NULL DEFAULT 0,
    answered_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    PRIMARY KEY (round_id, participant_id)
);

CREATE TABLE IF NOT EXISTS points_ledger (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    points INTEGER NOT NULL,
    reason TEXT NOT NULL,
    meta TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE TABLE IF NOT EXISTS game_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    mode TEXT NOT NULL,
    score INTEGER NOT NULL,
    points_awarded INTEGER NOT NULL,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE TABLE IF NOT EXISTS daily_vocab (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    for_date TEXT UNIQUE NOT NULL,
    term TEXT NOT NULL,
    definition TEXT NOT NULL DEFAULT '',
    options TEXT NOT NULL DEFAULT '[]',
    correct_index INTEGER NOT NULL,
    points_award INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS trial_quizzes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    for_date TEXT NOT NULL,
    locale TEXT NOT NULL DEFAULT 'en',
    title TEXT NOT NULL DEFAULT '',
    questions TEXT NOT NULL DEFAULT '[]',
    points_award INTEGER NOT NULL DEFAULT 1,
    UNIQUE (for_date, locale)
);

CREATE TABLE IF NOT EXISTS swirdle_words (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    for_date TEXT UNIQUE NOT NULL,
    word TEXT NOT NULL,
    hint TEXT NOT NULL DEFAULT '',
    points_award INTEGER NOT NULL DEFAULT 6
);

CREATE TABLE IF NOT EXISTS guess_what_challenges (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    week_start TEXT UNIQUE NOT NULL,
    clues TEXT NOT NULL DEFAULT '[]',
    options TEXT NOT NULL DEFAULT '[]',
    correct_index INTEGER NOT NULL,
    points_award INTEGER NOT NULL DEFAULT 5
);

CREATE TABLE IF NOT EXISTS content_attempts (
    user_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    content_id INTEGER NOT NULL,
    for_date TEXT NOT NULL,
    correct INTEGER NOT NULL DEFAULT 0,
    points INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    PRIMARY KEY (user_id, kind, content_id)
);

CREATE TABLE IF NOT EXISTS trial_quiz_attempts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    quiz_id INTEGER NOT NULL,
    correct_count INTEGER NOT NULL,
    total_questions INTEGER NOT NULL DEFAULT 0,
    points_awarded INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    UNIQUE (user_id, quiz_id)
);

CREATE TABLE IF NOT EXISTS badges (
    code TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    tier TEXT NOT NULL DEFAULT 'bronze',
    icon TEXT NOT NULL DEFAULT '',
    rule TEXT NOT NULL,
    mode TEXT NOT NULL DEFAULT '',
    threshold INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS badge_awards (
    user_id TEXT NOT NULL,
    code TEXT NOT NULL,
    awarded_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    PRIMARY KEY (user_id, code)
);

CREATE INDEX IF NOT EXISTS idx_game_rounds_session ON game_rounds(session_id, round_number);
CREATE INDEX IF NOT EXISTS idx_participants_session ON session_participants(session_id);
CREATE INDEX IF NOT EXISTS idx_points_ledger_user ON points_ledger(user_id);
CREATE INDEX IF NOT EXISTS idx_game_results_user_mode ON game_results(user_id, mode);
`

// addedColumns are columns introduced after a table was first created.
// CREATE TABLE IF NOT EXISTS leaves older tables alone, so they are added here.
var addedColumns = []struct {
	table, column, definition string
}{
	{"profiles", "guest_merged_at", "INTEGER"},
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	for _, c := range addedColumns {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", c.table, c.column).Scan(&n); err != nil {
			return fmt.Errorf("failed to inspect %s: %w", c.table, err)
		}
		if n > 0 {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.column, c.definition)); err != nil {
			return fmt.Errorf("failed to add %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}
