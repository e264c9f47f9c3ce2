package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS quest_config (
	id SMALLINT PRIMARY KEY DEFAULT 1,
	authority BYTEA NOT NULL,
	treasury BYTEA NOT NULL,
	fee_bps INTEGER NOT NULL,
	burn_bps INTEGER NOT NULL,
	quest_count BIGINT NOT NULL,
	proof_window_hours BIGINT NOT NULL,
	review_window_hours BIGINT NOT NULL,

	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	CONSTRAINT quest_config_singleton CHECK (id = 1),
	CONSTRAINT authority_len CHECK (octet_length(authority) = 20),
	CONSTRAINT treasury_len CHECK (octet_length(treasury) = 20),
	CONSTRAINT fee_bps_range CHECK (fee_bps >= 0 AND fee_bps <= 10000),
	CONSTRAINT burn_bps_range CHECK (burn_bps >= 0 AND burn_bps <= 10000),
	CONSTRAINT quest_count_nonneg CHECK (quest_count >= 0)
);

CREATE TABLE IF NOT EXISTS quests (
	id BIGINT PRIMARY KEY,
	creator BYTEA NOT NULL,
	escrow BYTEA NOT NULL UNIQUE,
	reward_mint BYTEA NOT NULL,
	reward_amount BIGINT NOT NULL,
	kind SMALLINT NOT NULL,
	status SMALLINT NOT NULL,
	target BYTEA NOT NULL,
	max_claimers SMALLINT NOT NULL,
	current_claimers SMALLINT NOT NULL,
	expires_at BIGINT NOT NULL,
	proof_window_hours BIGINT NOT NULL,
	review_window_hours BIGINT NOT NULL,
	description_hash BYTEA NOT NULL,
	created_at BIGINT NOT NULL,

	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	CONSTRAINT quests_id_nonneg CHECK (id >= 0),
	CONSTRAINT creator_len CHECK (octet_length(creator) = 20),
	CONSTRAINT escrow_len CHECK (octet_length(escrow) = 20),
	CONSTRAINT reward_mint_len CHECK (octet_length(reward_mint) = 20),
	CONSTRAINT target_len CHECK (octet_length(target) = 20),
	CONSTRAINT description_hash_len CHECK (octet_length(description_hash) = 32),
	CONSTRAINT reward_amount_nonneg CHECK (reward_amount >= 0),
	CONSTRAINT kind_range CHECK (kind >= 1 AND kind <= 2),
	CONSTRAINT status_range CHECK (status >= 1 AND status <= 5),
	CONSTRAINT claimers_bound CHECK (current_claimers >= 0 AND current_claimers <= max_claimers AND max_claimers <= 100)
);

CREATE INDEX IF NOT EXISTS quests_status_idx ON quests (status, id);
CREATE INDEX IF NOT EXISTS quests_creator_idx ON quests (creator, id);

CREATE TABLE IF NOT EXISTS quest_claims (
	quest_id BIGINT NOT NULL REFERENCES quests (id),
	claimer BYTEA NOT NULL,
	stake_amount BIGINT NOT NULL,
	status SMALLINT NOT NULL,
	proof_deadline BIGINT NOT NULL,
	review_deadline BIGINT NOT NULL DEFAULT 0,
	proof_hash BYTEA NOT NULL,
	claimed_at BIGINT NOT NULL,
	submitted_at BIGINT NOT NULL DEFAULT 0,
	seq BIGSERIAL,

	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	PRIMARY KEY (quest_id, claimer),
	CONSTRAINT claimer_len CHECK (octet_length(claimer) = 20),
	CONSTRAINT proof_hash_len CHECK (octet_length(proof_hash) = 32),
	CONSTRAINT stake_amount_nonneg CHECK (stake_amount >= 0),
	CONSTRAINT claim_status_range CHECK (status >= 1 AND status <= 7)
);

CREATE INDEX IF NOT EXISTS quest_claims_claimer_idx ON quest_claims (claimer, seq);
CREATE INDEX IF NOT EXISTS quest_claims_proof_due_idx ON quest_claims (proof_deadline) WHERE status = 1;
CREATE INDEX IF NOT EXISTS quest_claims_review_due_idx ON quest_claims (review_deadline) WHERE status = 2;

CREATE TABLE IF NOT EXISTS ledger_owners (
	account BYTEA PRIMARY KEY,
	owner BYTEA NOT NULL,

	CONSTRAINT account_len CHECK (octet_length(account) = 20),
	CONSTRAINT owner_len CHECK (octet_length(owner) = 20)
);

CREATE TABLE IF NOT EXISTS ledger_balances (
	account BYTEA NOT NULL,
	mint BYTEA NOT NULL,
	amount BIGINT NOT NULL,

	PRIMARY KEY (account, mint),
	CONSTRAINT balance_account_len CHECK (octet_length(account) = 20),
	CONSTRAINT balance_mint_len CHECK (octet_length(mint) = 20),
	CONSTRAINT amount_nonneg CHECK (amount >= 0)
);

CREATE TABLE IF NOT EXISTS quest_events (
	seq BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	quest_id BIGINT,
	at BIGINT NOT NULL,
	payload BYTEA NOT NULL,
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS quest_events_unpublished_idx ON quest_events (seq) WHERE published_at IS NULL;
`
