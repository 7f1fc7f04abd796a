package database

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT NOT NULL UNIQUE,
    server TEXT NOT NULL,
    smtp_server TEXT NOT NULL DEFAULT '',
    username_enc TEXT NOT NULL,
    password_enc TEXT NOT NULL,
    needs_credential_reset BOOLEAN DEFAULT false,
    is_admin BOOLEAN DEFAULT false,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS forward_destinations (
    user_id INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    email TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'unverified',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS forward_policies (
    user_id INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    target_mode TEXT NOT NULL DEFAULT 'stopped',
    keep_unread BOOLEAN DEFAULT true,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS forward_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    status TEXT NOT NULL DEFAULT 'pending',
    new_mail_count INTEGER DEFAULT 0,
    message TEXT NOT NULL DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS task_run_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    is_running BOOLEAN NOT NULL DEFAULT false,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

INSERT OR IGNORE INTO task_run_state (id, is_running) VALUES (1, false);

CREATE INDEX IF NOT EXISTS idx_history_user_created ON forward_history(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_history_user_status ON forward_history(user_id, status, created_at);
CREATE INDEX IF NOT EXISTS idx_users_reset ON users(needs_credential_reset);
`
