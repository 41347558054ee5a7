package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE tools (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				repository VARCHAR(512) NOT NULL UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				install_method VARCHAR(16) NOT NULL CHECK (install_method IN ('git', 'go')),
				install_command TEXT NOT NULL DEFAULT '',
				install_path TEXT NOT NULL DEFAULT '',
				status VARCHAR(16) NOT NULL CHECK (status IN ('pending', 'installing', 'ready', 'error')),
				error TEXT NOT NULL DEFAULT '',
				sequence BIGINT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_tools_sequence ON tools(sequence);
		`,
		2: `
			CREATE TABLE workflows (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				steps JSONB NOT NULL DEFAULT '[]',
				schedule VARCHAR(255) NOT NULL DEFAULT '',
				sequence BIGINT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_sequence ON workflows(sequence);
		`,
	}
}
