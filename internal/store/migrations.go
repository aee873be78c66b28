package store

import (
	"strings"

	"github.com/nhle/bizops/internal/model"
)

// migration holds a single schema migration with its target version and SQL.
// The SQL is written once with dialect tokens that are expanded per driver.
type migration struct {
	version int
	sql     string
}

// dialectTokens maps the placeholders used in migrations to concrete
// column types for each supported driver.
var dialectTokens = map[string]*strings.Replacer{
	model.DriverSQLite: strings.NewReplacer(
		"{{timestamp}}", "DATETIME",
		"{{bool}}", "INTEGER",
		"{{false}}", "0",
		"{{money}}", "TEXT",
		"{{json}}", "TEXT",
	),
	model.DriverPostgres: strings.NewReplacer(
		"{{timestamp}}", "TIMESTAMPTZ",
		"{{bool}}", "BOOLEAN",
		"{{false}}", "FALSE",
		"{{money}}", "NUMERIC(12,2)",
		"{{json}}", "JSONB",
	),
}

// statements expands the dialect tokens and splits the migration into
// individual statements.
func (m migration) statements(driver string) []string {
	expanded := dialectTokens[driver].Replace(m.sql)

	var out []string
	for _, stmt := range strings.Split(expanded, ";\n") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS users (
	id          TEXT PRIMARY KEY,
	email       TEXT NOT NULL UNIQUE,
	first_name  TEXT NOT NULL DEFAULT '',
	last_name   TEXT NOT NULL DEFAULT '',
	role        TEXT NOT NULL DEFAULT 'employee'
		CHECK(role IN ('admin', 'manager', 'accountant', 'employee')),
	is_active   {{bool}} NOT NULL DEFAULT {{false}},
	created_at  {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS customers (
	id                  TEXT PRIMARY KEY,
	company_name        TEXT NOT NULL DEFAULT '',
	contact_name        TEXT NOT NULL DEFAULT '',
	email               TEXT NOT NULL DEFAULT '',
	phone               TEXT NOT NULL DEFAULT '',
	outstanding_balance {{money}} NOT NULL DEFAULT '0',
	total_spent         {{money}} NOT NULL DEFAULT '0',
	created_at          {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	customer_id TEXT REFERENCES customers(id) ON DELETE SET NULL,
	status      TEXT NOT NULL DEFAULT 'active',
	created_at  {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'pending'
		CHECK(status IN ('pending', 'in_progress', 'completed', 'cancelled')),
	priority      TEXT NOT NULL DEFAULT 'medium',
	due_date      {{timestamp}},
	project_id    TEXT REFERENCES projects(id) ON DELETE SET NULL,
	customer_id   TEXT REFERENCES customers(id) ON DELETE SET NULL,
	assigned_to   TEXT REFERENCES users(id) ON DELETE SET NULL,
	reminder_sent {{bool}} NOT NULL DEFAULT {{false}},
	created_at    {{timestamp}} NOT NULL,
	updated_at    {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS invoices (
	id                 TEXT PRIMARY KEY,
	invoice_number     TEXT NOT NULL UNIQUE,
	customer_id        TEXT NOT NULL REFERENCES customers(id),
	issue_date         {{timestamp}} NOT NULL,
	due_date           {{timestamp}} NOT NULL,
	total_amount       {{money}} NOT NULL,
	status             TEXT NOT NULL DEFAULT 'pending'
		CHECK(status IN ('pending', 'paid', 'overdue', 'cancelled')),
	last_reminder_date {{timestamp}},
	created_at         {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS payments (
	id           TEXT PRIMARY KEY,
	invoice_id   TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	amount       {{money}} NOT NULL,
	payment_date {{timestamp}} NOT NULL,
	method       TEXT NOT NULL,
	reference    TEXT NOT NULL DEFAULT '',
	created_at   {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS appointments (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	start_time    {{timestamp}} NOT NULL,
	end_time      {{timestamp}} NOT NULL,
	customer_id   TEXT REFERENCES customers(id) ON DELETE SET NULL,
	reminder_sent {{bool}} NOT NULL DEFAULT {{false}},
	created_at    {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS appointment_attendees (
	appointment_id TEXT NOT NULL REFERENCES appointments(id) ON DELETE CASCADE,
	user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	PRIMARY KEY (appointment_id, user_id)
);

CREATE TABLE IF NOT EXISTS notifications (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	type                TEXT NOT NULL
		CHECK(type IN ('task_due', 'invoice_due', 'appointment')),
	title               TEXT NOT NULL,
	message             TEXT NOT NULL,
	is_read             {{bool}} NOT NULL DEFAULT {{false}},
	related_entity_type TEXT NOT NULL DEFAULT '',
	related_entity_id   TEXT NOT NULL DEFAULT '',
	created_at          {{timestamp}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date);
CREATE INDEX IF NOT EXISTS idx_tasks_assigned_to ON tasks(assigned_to);
CREATE INDEX IF NOT EXISTS idx_invoices_due ON invoices(due_date);
CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);
CREATE INDEX IF NOT EXISTS idx_appointments_start ON appointments(start_time);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications(user_id, is_read);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS reminders (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL
		CHECK(type IN ('task_due', 'invoice_due', 'invoice_overdue')),
	ref_id        TEXT NOT NULL,
	scheduled_for {{timestamp}} NOT NULL,
	sent_at       {{timestamp}},
	channel       TEXT NOT NULL DEFAULT 'internal',
	payload       {{json}},
	UNIQUE(type, ref_id, scheduled_for)
);

CREATE INDEX IF NOT EXISTS idx_reminders_ref ON reminders(ref_id);
CREATE INDEX IF NOT EXISTS idx_reminders_sched ON reminders(scheduled_for);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
CREATE TABLE IF NOT EXISTS job_leases (
	name       TEXT PRIMARY KEY,
	holder     TEXT NOT NULL,
	expires_at {{timestamp}} NOT NULL
);

INSERT INTO schema_version (version) VALUES (3);
`,
	},
}
