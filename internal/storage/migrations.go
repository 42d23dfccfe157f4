// Package storage содержит миграции SQLite базы данных.
package storage

// migrations содержит SQL-миграции в порядке выполнения.
var migrations = []string{
	// Миграция 1: Задачи клонирования.
	// Контрольная точка last_synced_message_id растёт монотонно и
	// обновляется только после подтверждённой доставки сообщения.
	`CREATE TABLE IF NOT EXISTS SyncTasks (
		origin_chat_id INTEGER PRIMARY KEY,
		origin_chat_title TEXT,
		destination_chat_id INTEGER,
		cloning_strategy TEXT DEFAULT 'unknown',
		last_synced_message_id INTEGER DEFAULT 0
	);`,

	// Миграция 2: Задачи скачивания видео.
	`CREATE TABLE IF NOT EXISTS DownloadTasks (
		origin_chat_id INTEGER PRIMARY KEY,
		origin_chat_title TEXT,
		last_downloaded_message_id INTEGER DEFAULT 0,
		total_videos INTEGER DEFAULT 0,
		downloaded_videos INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`,

	// Миграция 3: Задачи публикации.
	// Флаги is_* - монотонные защёлки этапов конвейера: взводятся после
	// появления артефактов этапа и никогда не сбрасываются в этой таблице.
	`CREATE TABLE IF NOT EXISTS PublishTasks (
		source_folder_path TEXT PRIMARY KEY,
		project_name TEXT NOT NULL,
		destination_chat_id INTEGER,
		current_step TEXT,
		status TEXT DEFAULT 'pending',
		is_started BOOLEAN DEFAULT 0,
		is_zipped BOOLEAN DEFAULT 0,
		is_reported BOOLEAN DEFAULT 0,
		is_reencode_auth BOOLEAN DEFAULT 0,
		is_reencoded BOOLEAN DEFAULT 0,
		is_joined BOOLEAN DEFAULT 0,
		is_timestamped BOOLEAN DEFAULT 0,
		is_upload_auth BOOLEAN DEFAULT 0,
		is_published BOOLEAN DEFAULT 0,
		last_uploaded_file TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`,

	// Миграция 4: Индекс для выборки незавершённых публикаций.
	`CREATE INDEX IF NOT EXISTS ix_publish_status ON PublishTasks (status);`,

	// Миграция 5: Пригласительная ссылка канала-назначения.
	// ALTER TABLE падает с "duplicate column name" на уже обновлённой базе,
	// такие ошибки migrate() молча поглощает.
	`ALTER TABLE PublishTasks ADD COLUMN invite_link TEXT;`,

	// Миграция 6: Таблица метаданных для версионирования схемы.
	`CREATE TABLE IF NOT EXISTS schema_info (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,

	// Миграция 7: Запись версии схемы.
	`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', '2');`,
}

// GetMigrations возвращает список SQL-миграций.
func GetMigrations() []string {
	return migrations
}

/*
Возможные расширения:
- Добавить таблицу истории запусков (время старта, длительность, итог)
- Добавить поддержку отката миграций (down migrations)
*/
