// Package storage содержит модели и логику работы с SQLite базой данных.
package storage

import "time"

// Strategy определяет способ клонирования сообщений.
type Strategy string

const (
	// StrategyUnknown - стратегия ещё не выбрана.
	StrategyUnknown Strategy = "unknown"
	// StrategyForward - пересылка сообщений напрямую (быстро, без скачивания).
	StrategyForward Strategy = "forward"
	// StrategyDownload - скачивание и повторная загрузка (для защищённых чатов).
	StrategyDownload Strategy = "download_upload"
)

// Step определяет этап конвейера публикации.
type Step string

const (
	StepInit         Step = "init"
	StepZip          Step = "zip"
	StepReport       Step = "report"
	StepReencodeAuth Step = "reencode_auth"
	StepReencode     Step = "reencode"
	StepJoin         Step = "join"
	StepTimestamp    Step = "timestamp"
	StepUploadAuth   Step = "upload_auth"
	StepUpload       Step = "upload"
	StepDone         Step = "done"
)

// Status определяет состояние задачи публикации.
type Status string

const (
	// StatusPending - задача создана, но конвейер ещё не запускался.
	StatusPending Status = "pending"
	// StatusInProgress - конвейер выполняется или прерван на середине.
	StatusInProgress Status = "in_progress"
	// StatusDone - все этапы завершены.
	StatusDone Status = "done"
	// StatusFailed - последний запуск упал на границе этапа.
	StatusFailed Status = "failed"
)

// StageFlag именует защёлку завершённого этапа в таблице PublishTasks.
// Защёлки монотонны: взведённая защёлка никогда не сбрасывается,
// сброс возможен только удалением задачи целиком (--restart).
type StageFlag string

const (
	FlagStarted      StageFlag = "is_started"
	FlagZipped       StageFlag = "is_zipped"
	FlagReported     StageFlag = "is_reported"
	FlagReencodeAuth StageFlag = "is_reencode_auth"
	FlagReencoded    StageFlag = "is_reencoded"
	FlagJoined       StageFlag = "is_joined"
	FlagTimestamped  StageFlag = "is_timestamped"
	FlagUploadAuth   StageFlag = "is_upload_auth"
	FlagPublished    StageFlag = "is_published"
)

// stageFlags перечисляет допустимые защёлки. Имя защёлки подставляется
// в SQL-запрос, поэтому значения вне списка отклоняются.
var stageFlags = map[StageFlag]bool{
	FlagStarted:      true,
	FlagZipped:       true,
	FlagReported:     true,
	FlagReencodeAuth: true,
	FlagReencoded:    true,
	FlagJoined:       true,
	FlagTimestamped:  true,
	FlagUploadAuth:   true,
	FlagPublished:    true,
}

// SyncTask представляет задачу клонирования чата.
type SyncTask struct {
	// OriginChatID - идентификатор исходного чата (первичный ключ).
	OriginChatID int64 `db:"origin_chat_id"`

	// OriginChatTitle - название исходного чата на момент создания задачи.
	OriginChatTitle string `db:"origin_chat_title"`

	// DestinationChatID - идентификатор чата-назначения.
	DestinationChatID int64 `db:"destination_chat_id"`

	// Strategy - выбранная стратегия клонирования. Фиксируется при создании
	// задачи и не меняется между запусками (кроме --restart).
	Strategy Strategy `db:"cloning_strategy"`

	// LastSyncedMessageID - контрольная точка: идентификатор последнего
	// подтверждённо доставленного сообщения. Только растёт.
	LastSyncedMessageID int64 `db:"last_synced_message_id"`
}

// DownloadTask представляет задачу скачивания видео из чата.
type DownloadTask struct {
	// OriginChatID - идентификатор исходного чата (первичный ключ).
	OriginChatID int64 `db:"origin_chat_id"`

	// OriginChatTitle - название исходного чата.
	OriginChatTitle string `db:"origin_chat_title"`

	// LastDownloadedMessageID - контрольная точка скачивания. Только растёт.
	LastDownloadedMessageID int64 `db:"last_downloaded_message_id"`

	// TotalVideos - сколько видео найдено в чате при создании задачи.
	TotalVideos int64 `db:"total_videos"`

	// DownloadedVideos - сколько видео уже скачано.
	DownloadedVideos int64 `db:"downloaded_videos"`

	// CreatedAt - время создания задачи.
	CreatedAt time.Time `db:"created_at"`

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time `db:"updated_at"`
}

// PublishTask представляет задачу публикации папки с материалами.
type PublishTask struct {
	// SourceFolderPath - абсолютный путь к исходной папке (первичный ключ).
	SourceFolderPath string `db:"source_folder_path"`

	// ProjectName - имя проекта, производное от имени папки.
	ProjectName string `db:"project_name"`

	// DestinationChatID - канал, в который идёт публикация (0 - ещё не выбран).
	DestinationChatID int64 `db:"destination_chat_id"`

	// CurrentStep - этап, на котором находится конвейер.
	CurrentStep Step `db:"current_step"`

	// Status - общее состояние задачи.
	Status Status `db:"status"`

	// Защёлки завершённых этапов. Каждая взводится после того, как
	// артефакты этапа существуют на диске и запись зафиксирована в БД.
	IsStarted      bool `db:"is_started"`
	IsZipped       bool `db:"is_zipped"`
	IsReported     bool `db:"is_reported"`
	IsReencodeAuth bool `db:"is_reencode_auth"`
	IsReencoded    bool `db:"is_reencoded"`
	IsJoined       bool `db:"is_joined"`
	IsTimestamped  bool `db:"is_timestamped"`
	IsUploadAuth   bool `db:"is_upload_auth"`
	IsPublished    bool `db:"is_published"`

	// LastUploadedFile - последний успешно загруженный файл из плана загрузки.
	// Позволяет возобновить загрузку с места обрыва.
	LastUploadedFile string `db:"last_uploaded_file"`

	// InviteLink - пригласительная ссылка канала-назначения (если создана).
	InviteLink string `db:"invite_link"`

	// CreatedAt - время создания задачи.
	CreatedAt time.Time `db:"created_at"`

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time `db:"updated_at"`
}

// StageDone сообщает, взведена ли защёлка этапа.
func (t *PublishTask) StageDone(flag StageFlag) bool {
	switch flag {
	case FlagStarted:
		return t.IsStarted
	case FlagZipped:
		return t.IsZipped
	case FlagReported:
		return t.IsReported
	case FlagReencodeAuth:
		return t.IsReencodeAuth
	case FlagReencoded:
		return t.IsReencoded
	case FlagJoined:
		return t.IsJoined
	case FlagTimestamped:
		return t.IsTimestamped
	case FlagUploadAuth:
		return t.IsUploadAuth
	case FlagPublished:
		return t.IsPublished
	}
	return false
}

// Stats содержит количество задач каждого вида.
type Stats struct {
	// SyncTasks - количество задач клонирования.
	SyncTasks int64

	// DownloadTasks - количество задач скачивания.
	DownloadTasks int64

	// PublishTasks - количество задач публикации.
	PublishTasks int64
}

/*
Возможные расширения:
- Добавить поле для количества пропущенных сообщений (для статистики)
- Добавить таблицу истории запусков с длительностью каждого
- Добавить поддержку нескольких назначений для одной задачи клонирования
*/
