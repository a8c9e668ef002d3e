package db

import "database/sql"

func init() {
	RegisterMigration(Migration{
		Version:     1,
		Description: "Initial schema",
		Up:          migration001Initial,
	})
}

func migration001Initial(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Files table. Timestamps are epoch milliseconds.
	_, err = tx.Exec(`
		CREATE TABLE files (
			path TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_folder INTEGER NOT NULL DEFAULT 0,
			size INTEGER,
			mime_type TEXT,
			hash TEXT,
			modified_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			last_scanned_at INTEGER,
			text_preview TEXT,
			screenshot_sqlar TEXT
		);

		CREATE INDEX idx_files_is_folder ON files(is_folder);
		CREATE INDEX idx_files_modified_at ON files(modified_at);
		CREATE INDEX idx_files_last_scanned_at ON files(last_scanned_at);
	`)
	if err != nil {
		return err
	}

	// Digests table, one row per (file_path, digester output name)
	_, err = tx.Exec(`
		CREATE TABLE digests (
			id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			digester TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'todo',
			content TEXT,
			sqlar_name TEXT,
			error TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE(file_path, digester)
		);

		CREATE INDEX idx_digests_file_path ON digests(file_path);
		CREATE INDEX idx_digests_digester ON digests(digester);
		CREATE INDEX idx_digests_status ON digests(status);
	`)
	if err != nil {
		return err
	}

	// Per-file advisory locks; acquisition is an INSERT that either
	// succeeds or conflicts
	_, err = tx.Exec(`
		CREATE TABLE file_locks (
			file_path TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			acquired_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	// SQLAR blob storage (zlib-compressed)
	_, err = tx.Exec(`
		CREATE TABLE sqlar (
			name TEXT PRIMARY KEY,
			mode INTEGER,
			mtime INTEGER,
			sz INTEGER,
			data BLOB
		);
	`)
	if err != nil {
		return err
	}

	// Task queue
	_, err = tx.Exec(`
		CREATE TABLE tasks (
			id TEXT PRIMARY KEY,
			task_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX idx_tasks_status ON tasks(status, created_at);
	`)
	if err != nil {
		return err
	}

	// Keyword-search documents, one per file
	_, err = tx.Exec(`
		CREATE TABLE meili_documents (
			document_id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL,
			summary TEXT,
			tags TEXT,
			content_hash TEXT NOT NULL,
			word_count INTEGER NOT NULL DEFAULT 0,
			mime_type TEXT,
			meili_status TEXT NOT NULL DEFAULT 'pending',
			meili_error TEXT,
			meili_indexed_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX idx_meili_documents_status ON meili_documents(meili_status);
	`)
	if err != nil {
		return err
	}

	// Semantic-search chunks, several per file
	_, err = tx.Exec(`
		CREATE TABLE qdrant_documents (
			document_id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			source_type TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			chunk_count INTEGER NOT NULL,
			chunk_text TEXT NOT NULL,
			span_start INTEGER NOT NULL DEFAULT 0,
			span_end INTEGER NOT NULL DEFAULT 0,
			overlap_tokens INTEGER NOT NULL DEFAULT 0,
			word_count INTEGER NOT NULL DEFAULT 0,
			token_count INTEGER NOT NULL DEFAULT 0,
			content_hash TEXT NOT NULL,
			embedding_status TEXT NOT NULL DEFAULT 'pending',
			qdrant_error TEXT,
			qdrant_indexed_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX idx_qdrant_documents_file ON qdrant_documents(file_path);
		CREATE INDEX idx_qdrant_documents_status ON qdrant_documents(embedding_status);
	`)
	if err != nil {
		return err
	}

	return tx.Commit()
}
