package db

// PostgreSQL migrations for the analysis store

var postgresMigrations = []Migration{
	{
		Version: 1,
		Name:    "create_analyses_table",
		Up: `
			CREATE TABLE IF NOT EXISTS analyses (
				id TEXT PRIMARY KEY,
				url TEXT NOT NULL UNIQUE,
				final_url TEXT NOT NULL,
				verdict TEXT NOT NULL,
				score DOUBLE PRECISION NOT NULL,
				slug TEXT,
				data TEXT NOT NULL,
				created_at TIMESTAMPTZ DEFAULT NOW(),
				updated_at TIMESTAMPTZ DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_analyses_url ON analyses(url);
			CREATE INDEX IF NOT EXISTS idx_analyses_updated_at ON analyses(updated_at);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_analyses_updated_at;
			DROP INDEX IF EXISTS idx_analyses_url;
			DROP TABLE IF EXISTS analyses;
		`,
	},
	{
		Version: 2,
		Name:    "index_analyses_verdict",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_analyses_verdict ON analyses(verdict);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_analyses_verdict;
		`,
	},
}
