// Package storage содержит логику работы с SQLite базой данных.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Storage предоставляет методы для работы с задачами клонирования,
// скачивания и публикации. Каждая мутация фиксируется в БД до возврата
// управления: кэша записи в памяти нет.
type Storage struct {
	db *sql.DB
}

// New создаёт новое подключение к SQLite и выполняет миграции.
func New(dbPath string) (*Storage, error) {
	// Создаём директорию для БД, если не существует
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию для БД: %w", err)
	}

	// Открываем/создаём БД с параметрами для concurrent доступа
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть БД: %w", err)
	}

	// Проверяем подключение
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	// Настраиваем пул соединений
	db.SetMaxOpenConns(1) // SQLite не поддерживает concurrent writes
	db.SetMaxIdleConns(1)

	s := &Storage{db: db}

	// Выполняем миграции
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось выполнить миграции: %w", err)
	}

	return s, nil
}

// migrate выполняет все SQL-миграции. Повторное добавление колонки
// поглощается: схема остаётся совместимой с базами прошлых версий.
func (s *Storage) migrate() error {
	for i, m := range GetMigrations() {
		if _, err := s.db.Exec(m); err != nil {
			if isDuplicateColumnError(err) {
				continue
			}
			return fmt.Errorf("миграция %d: %w", i+1, err)
		}
	}
	return nil
}

// Close закрывает подключение к БД.
func (s *Storage) Close() error {
	return s.db.Close()
}

// --- Задачи клонирования ---

// GetSyncTask возвращает задачу клонирования по идентификатору исходного
// чата. Если задачи нет, возвращает nil без ошибки.
func (s *Storage) GetSyncTask(originID int64) (*SyncTask, error) {
	query := `
		SELECT origin_chat_id, origin_chat_title, destination_chat_id,
		       cloning_strategy, last_synced_message_id
		FROM SyncTasks WHERE origin_chat_id = ?
	`
	var t SyncTask
	var title, strategy sql.NullString
	var dest sql.NullInt64
	err := s.db.QueryRow(query, originID).
		Scan(&t.OriginChatID, &title, &dest, &strategy, &t.LastSyncedMessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать задачу клонирования: %w", err)
	}
	t.OriginChatTitle = title.String
	t.DestinationChatID = dest.Int64
	t.Strategy = StrategyUnknown
	if strategy.Valid && strategy.String != "" {
		t.Strategy = Strategy(strategy.String)
	}
	return &t, nil
}

// UpsertSyncTask создаёт задачу клонирования или перезаписывает существующую.
func (s *Storage) UpsertSyncTask(t *SyncTask) error {
	query := `
		INSERT INTO SyncTasks (origin_chat_id, origin_chat_title, destination_chat_id,
		                       cloning_strategy, last_synced_message_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(origin_chat_id) DO UPDATE SET
			origin_chat_title = excluded.origin_chat_title,
			destination_chat_id = excluded.destination_chat_id,
			cloning_strategy = excluded.cloning_strategy,
			last_synced_message_id = excluded.last_synced_message_id
	`
	_, err := s.db.Exec(query, t.OriginChatID, t.OriginChatTitle,
		t.DestinationChatID, string(t.Strategy), t.LastSyncedMessageID)
	if err != nil {
		return fmt.Errorf("не удалось сохранить задачу клонирования: %w", err)
	}
	return nil
}

// UpdateSyncStrategy меняет стратегию клонирования существующей задачи.
func (s *Storage) UpdateSyncStrategy(originID int64, strategy Strategy) error {
	result, err := s.db.Exec(
		"UPDATE SyncTasks SET cloning_strategy = ? WHERE origin_chat_id = ?",
		string(strategy), originID,
	)
	if err != nil {
		return fmt.Errorf("не удалось обновить стратегию: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("задача клонирования %d не найдена", originID)
	}
	return nil
}

// AdvanceSyncTask продвигает контрольную точку задачи клонирования.
// Контрольная точка монотонна: попытка записать меньший идентификатор
// оставляет прежнее значение.
func (s *Storage) AdvanceSyncTask(originID, messageID int64) error {
	result, err := s.db.Exec(`
		UPDATE SyncTasks
		SET last_synced_message_id = MAX(last_synced_message_id, ?)
		WHERE origin_chat_id = ?
	`, messageID, originID)
	if err != nil {
		return fmt.Errorf("не удалось продвинуть контрольную точку: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("задача клонирования %d не найдена", originID)
	}
	return nil
}

// DeleteSyncTask удаляет задачу клонирования. Отсутствие задачи не ошибка.
func (s *Storage) DeleteSyncTask(originID int64) error {
	if _, err := s.db.Exec("DELETE FROM SyncTasks WHERE origin_chat_id = ?", originID); err != nil {
		return fmt.Errorf("не удалось удалить задачу клонирования: %w", err)
	}
	return nil
}

// --- Задачи скачивания ---

// GetDownloadTask возвращает задачу скачивания по идентификатору чата.
// Если задачи нет, возвращает nil без ошибки.
func (s *Storage) GetDownloadTask(originID int64) (*DownloadTask, error) {
	query := `
		SELECT origin_chat_id, origin_chat_title, last_downloaded_message_id,
		       total_videos, downloaded_videos, created_at, updated_at
		FROM DownloadTasks WHERE origin_chat_id = ?
	`
	var t DownloadTask
	var title sql.NullString
	var created, updated sql.NullTime
	err := s.db.QueryRow(query, originID).
		Scan(&t.OriginChatID, &title, &t.LastDownloadedMessageID,
			&t.TotalVideos, &t.DownloadedVideos, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать задачу скачивания: %w", err)
	}
	t.OriginChatTitle = title.String
	t.CreatedAt = created.Time
	t.UpdatedAt = updated.Time
	return &t, nil
}

// UpsertDownloadTask создаёт задачу скачивания или перезаписывает существующую.
func (s *Storage) UpsertDownloadTask(t *DownloadTask) error {
	query := `
		INSERT INTO DownloadTasks (origin_chat_id, origin_chat_title,
		                           last_downloaded_message_id, total_videos, downloaded_videos)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(origin_chat_id) DO UPDATE SET
			origin_chat_title = excluded.origin_chat_title,
			last_downloaded_message_id = excluded.last_downloaded_message_id,
			total_videos = excluded.total_videos,
			downloaded_videos = excluded.downloaded_videos,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.db.Exec(query, t.OriginChatID, t.OriginChatTitle,
		t.LastDownloadedMessageID, t.TotalVideos, t.DownloadedVideos)
	if err != nil {
		return fmt.Errorf("не удалось сохранить задачу скачивания: %w", err)
	}
	return nil
}

// AdvanceDownloadTask продвигает контрольную точку скачивания и счётчик
// скачанных видео. Контрольная точка монотонна.
func (s *Storage) AdvanceDownloadTask(originID, messageID, downloaded int64) error {
	result, err := s.db.Exec(`
		UPDATE DownloadTasks
		SET last_downloaded_message_id = MAX(last_downloaded_message_id, ?),
		    downloaded_videos = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE origin_chat_id = ?
	`, messageID, downloaded, originID)
	if err != nil {
		return fmt.Errorf("не удалось продвинуть контрольную точку скачивания: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("задача скачивания %d не найдена", originID)
	}
	return nil
}

// DeleteDownloadTask удаляет задачу скачивания. Отсутствие задачи не ошибка.
func (s *Storage) DeleteDownloadTask(originID int64) error {
	if _, err := s.db.Exec("DELETE FROM DownloadTasks WHERE origin_chat_id = ?", originID); err != nil {
		return fmt.Errorf("не удалось удалить задачу скачивания: %w", err)
	}
	return nil
}

// --- Задачи публикации ---

// GetPublishTask возвращает задачу публикации по пути к исходной папке.
// Если задачи нет, возвращает nil без ошибки.
func (s *Storage) GetPublishTask(sourceFolder string) (*PublishTask, error) {
	query := `
		SELECT source_folder_path, project_name, destination_chat_id,
		       current_step, status,
		       is_started, is_zipped, is_reported, is_reencode_auth, is_reencoded,
		       is_joined, is_timestamped, is_upload_auth, is_published,
		       last_uploaded_file, invite_link, created_at, updated_at
		FROM PublishTasks WHERE source_folder_path = ?
	`
	var t PublishTask
	var dest sql.NullInt64
	var step, status, lastFile, invite sql.NullString
	var created, updated sql.NullTime
	err := s.db.QueryRow(query, sourceFolder).
		Scan(&t.SourceFolderPath, &t.ProjectName, &dest, &step, &status,
			&t.IsStarted, &t.IsZipped, &t.IsReported, &t.IsReencodeAuth, &t.IsReencoded,
			&t.IsJoined, &t.IsTimestamped, &t.IsUploadAuth, &t.IsPublished,
			&lastFile, &invite, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать задачу публикации: %w", err)
	}
	t.DestinationChatID = dest.Int64
	t.CurrentStep = Step(step.String)
	t.Status = StatusPending
	if status.Valid && status.String != "" {
		t.Status = Status(status.String)
	}
	t.LastUploadedFile = lastFile.String
	t.InviteLink = invite.String
	t.CreatedAt = created.Time
	t.UpdatedAt = updated.Time
	return &t, nil
}

// GetOrCreatePublishTask возвращает существующую задачу публикации или
// создаёт новую с чистыми защёлками.
func (s *Storage) GetOrCreatePublishTask(sourceFolder, projectName string) (*PublishTask, error) {
	query := `
		INSERT OR IGNORE INTO PublishTasks (source_folder_path, project_name)
		VALUES (?, ?)
	`
	if _, err := s.db.Exec(query, sourceFolder, projectName); err != nil {
		return nil, fmt.Errorf("не удалось создать задачу публикации: %w", err)
	}
	task, err := s.GetPublishTask(sourceFolder)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("задача публикации %s не найдена после создания", sourceFolder)
	}
	return task, nil
}

// CompleteStage взводит защёлку завершённого этапа. Защёлка монотонна:
// метод только устанавливает её, сброс невозможен.
func (s *Storage) CompleteStage(sourceFolder string, flag StageFlag) error {
	if !stageFlags[flag] {
		return fmt.Errorf("неизвестная защёлка этапа: %s", flag)
	}
	query := fmt.Sprintf(`
		UPDATE PublishTasks
		SET %s = 1, updated_at = CURRENT_TIMESTAMP
		WHERE source_folder_path = ?
	`, flag)
	result, err := s.db.Exec(query, sourceFolder)
	if err != nil {
		return fmt.Errorf("не удалось взвести защёлку %s: %w", flag, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("задача публикации %s не найдена", sourceFolder)
	}
	return nil
}

// SetPublishStep записывает текущий этап и состояние конвейера.
func (s *Storage) SetPublishStep(sourceFolder string, step Step, status Status) error {
	result, err := s.db.Exec(`
		UPDATE PublishTasks
		SET current_step = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE source_folder_path = ?
	`, string(step), string(status), sourceFolder)
	if err != nil {
		return fmt.Errorf("не удалось обновить этап публикации: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("задача публикации %s не найдена", sourceFolder)
	}
	return nil
}

// SetLastUploadedFile запоминает последний успешно загруженный файл.
func (s *Storage) SetLastUploadedFile(sourceFolder, file string) error {
	result, err := s.db.Exec(`
		UPDATE PublishTasks
		SET last_uploaded_file = ?, updated_at = CURRENT_TIMESTAMP
		WHERE source_folder_path = ?
	`, file, sourceFolder)
	if err != nil {
		return fmt.Errorf("не удалось сохранить последний загруженный файл: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("задача публикации %s не найдена", sourceFolder)
	}
	return nil
}

// SetPublishDestination записывает канал-назначение публикации.
func (s *Storage) SetPublishDestination(sourceFolder string, chatID int64) error {
	result, err := s.db.Exec(`
		UPDATE PublishTasks
		SET destination_chat_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE source_folder_path = ?
	`, chatID, sourceFolder)
	if err != nil {
		return fmt.Errorf("не удалось сохранить канал-назначение: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("задача публикации %s не найдена", sourceFolder)
	}
	return nil
}

// SetPublishInviteLink записывает пригласительную ссылку канала.
func (s *Storage) SetPublishInviteLink(sourceFolder, link string) error {
	result, err := s.db.Exec(`
		UPDATE PublishTasks
		SET invite_link = ?, updated_at = CURRENT_TIMESTAMP
		WHERE source_folder_path = ?
	`, link, sourceFolder)
	if err != nil {
		return fmt.Errorf("не удалось сохранить пригласительную ссылку: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("задача публикации %s не найдена", sourceFolder)
	}
	return nil
}

// DeletePublishTask удаляет задачу публикации. Отсутствие задачи не ошибка.
func (s *Storage) DeletePublishTask(sourceFolder string) error {
	if _, err := s.db.Exec("DELETE FROM PublishTasks WHERE source_folder_path = ?", sourceFolder); err != nil {
		return fmt.Errorf("не удалось удалить задачу публикации: %w", err)
	}
	return nil
}

// GetStats возвращает количество задач каждого вида.
func (s *Storage) GetStats() (*Stats, error) {
	var st Stats
	if err := s.db.QueryRow("SELECT COUNT(*) FROM SyncTasks").Scan(&st.SyncTasks); err != nil {
		return nil, fmt.Errorf("не удалось получить статистику: %w", err)
	}
	_ = s.db.QueryRow("SELECT COUNT(*) FROM DownloadTasks").Scan(&st.DownloadTasks)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM PublishTasks").Scan(&st.PublishTasks)
	return &st, nil
}

// isDuplicateColumnError проверяет, что ALTER TABLE добавляет уже
// существующую колонку.
func isDuplicateColumnError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

/*
Возможные расширения:
- Добавить метод для экспорта статистики в JSON
- Добавить выборку всех незавершённых задач публикации для команды статуса
- Добавить поддержку транзакций для batch-операций
*/
