package postgres

// Released leases keep their row with an empty holder so terms stay monotonic.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS quest_leases (
	name TEXT PRIMARY KEY,
	holder TEXT NOT NULL,
	term BIGINT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	CONSTRAINT term_positive CHECK (term >= 1)
);

CREATE INDEX IF NOT EXISTS quest_leases_expires_at_idx ON quest_leases (expires_at);
`
