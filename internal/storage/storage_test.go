package storage

import (
	"path/filepath"
	"testing"
)

// newTestStorage создаёт хранилище во временной директории.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "clonechat.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew_MigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "clonechat.db")

	// Первое открытие создаёт схему
	s1, err := New(dbPath)
	if err != nil {
		t.Fatalf("первое New() error = %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Повторное открытие прогоняет миграции заново, включая ALTER TABLE:
	// ошибка "duplicate column name" должна поглощаться
	s2, err := New(dbPath)
	if err != nil {
		t.Fatalf("повторное New() error = %v", err)
	}
	defer s2.Close()

	if _, err := s2.GetStats(); err != nil {
		t.Errorf("GetStats() после повторной миграции error = %v", err)
	}
}

func TestSyncTask_Lifecycle(t *testing.T) {
	s := newTestStorage(t)

	// Отсутствующая задача - nil без ошибки
	task, err := s.GetSyncTask(-1001234)
	if err != nil {
		t.Fatalf("GetSyncTask() error = %v", err)
	}
	if task != nil {
		t.Fatalf("GetSyncTask() для отсутствующей задачи = %+v, want nil", task)
	}

	// Создание
	want := &SyncTask{
		OriginChatID:      -1001234,
		OriginChatTitle:   "Учебный канал",
		DestinationChatID: -1005678,
		Strategy:          StrategyForward,
	}
	if err := s.UpsertSyncTask(want); err != nil {
		t.Fatalf("UpsertSyncTask() error = %v", err)
	}

	task, err = s.GetSyncTask(-1001234)
	if err != nil {
		t.Fatalf("GetSyncTask() error = %v", err)
	}
	if task == nil {
		t.Fatal("GetSyncTask() = nil после создания")
	}
	if task.OriginChatTitle != want.OriginChatTitle {
		t.Errorf("OriginChatTitle = %q, want %q", task.OriginChatTitle, want.OriginChatTitle)
	}
	if task.DestinationChatID != want.DestinationChatID {
		t.Errorf("DestinationChatID = %d, want %d", task.DestinationChatID, want.DestinationChatID)
	}
	if task.Strategy != StrategyForward {
		t.Errorf("Strategy = %q, want %q", task.Strategy, StrategyForward)
	}
	if task.LastSyncedMessageID != 0 {
		t.Errorf("LastSyncedMessageID = %d, want 0", task.LastSyncedMessageID)
	}

	// Смена стратегии
	if err := s.UpdateSyncStrategy(-1001234, StrategyDownload); err != nil {
		t.Fatalf("UpdateSyncStrategy() error = %v", err)
	}
	task, _ = s.GetSyncTask(-1001234)
	if task.Strategy != StrategyDownload {
		t.Errorf("Strategy после смены = %q, want %q", task.Strategy, StrategyDownload)
	}

	// Удаление
	if err := s.DeleteSyncTask(-1001234); err != nil {
		t.Fatalf("DeleteSyncTask() error = %v", err)
	}
	task, _ = s.GetSyncTask(-1001234)
	if task != nil {
		t.Errorf("GetSyncTask() после удаления = %+v, want nil", task)
	}

	// Повторное удаление не ошибка
	if err := s.DeleteSyncTask(-1001234); err != nil {
		t.Errorf("повторный DeleteSyncTask() error = %v", err)
	}
}

func TestAdvanceSyncTask_Monotonic(t *testing.T) {
	s := newTestStorage(t)

	if err := s.UpsertSyncTask(&SyncTask{OriginChatID: 100, Strategy: StrategyForward}); err != nil {
		t.Fatalf("UpsertSyncTask() error = %v", err)
	}

	steps := []struct {
		advance int64
		want    int64
	}{
		{advance: 10, want: 10},
		{advance: 11, want: 11},
		// Откат назад игнорируется: контрольная точка только растёт
		{advance: 5, want: 11},
		{advance: 50, want: 50},
	}

	for _, step := range steps {
		if err := s.AdvanceSyncTask(100, step.advance); err != nil {
			t.Fatalf("AdvanceSyncTask(%d) error = %v", step.advance, err)
		}
		task, err := s.GetSyncTask(100)
		if err != nil {
			t.Fatalf("GetSyncTask() error = %v", err)
		}
		if task.LastSyncedMessageID != step.want {
			t.Errorf("после AdvanceSyncTask(%d): LastSyncedMessageID = %d, want %d",
				step.advance, task.LastSyncedMessageID, step.want)
		}
	}
}

func TestAdvanceSyncTask_NotFound(t *testing.T) {
	s := newTestStorage(t)
	if err := s.AdvanceSyncTask(999, 1); err == nil {
		t.Error("AdvanceSyncTask() для отсутствующей задачи должен вернуть ошибку")
	}
}

func TestDownloadTask_Lifecycle(t *testing.T) {
	s := newTestStorage(t)

	task, err := s.GetDownloadTask(-1009999)
	if err != nil {
		t.Fatalf("GetDownloadTask() error = %v", err)
	}
	if task != nil {
		t.Fatalf("GetDownloadTask() для отсутствующей задачи = %+v, want nil", task)
	}

	want := &DownloadTask{
		OriginChatID:    -1009999,
		OriginChatTitle: "Видеокурс",
		TotalVideos:     42,
	}
	if err := s.UpsertDownloadTask(want); err != nil {
		t.Fatalf("UpsertDownloadTask() error = %v", err)
	}

	// Прогресс: контрольная точка и счётчик
	if err := s.AdvanceDownloadTask(-1009999, 17, 3); err != nil {
		t.Fatalf("AdvanceDownloadTask() error = %v", err)
	}
	task, err = s.GetDownloadTask(-1009999)
	if err != nil {
		t.Fatalf("GetDownloadTask() error = %v", err)
	}
	if task.LastDownloadedMessageID != 17 {
		t.Errorf("LastDownloadedMessageID = %d, want 17", task.LastDownloadedMessageID)
	}
	if task.DownloadedVideos != 3 {
		t.Errorf("DownloadedVideos = %d, want 3", task.DownloadedVideos)
	}
	if task.TotalVideos != 42 {
		t.Errorf("TotalVideos = %d, want 42", task.TotalVideos)
	}
	if task.CreatedAt.IsZero() {
		t.Error("CreatedAt не заполнено")
	}

	// Контрольная точка монотонна
	if err := s.AdvanceDownloadTask(-1009999, 5, 4); err != nil {
		t.Fatalf("AdvanceDownloadTask() error = %v", err)
	}
	task, _ = s.GetDownloadTask(-1009999)
	if task.LastDownloadedMessageID != 17 {
		t.Errorf("LastDownloadedMessageID после отката = %d, want 17", task.LastDownloadedMessageID)
	}
	if task.DownloadedVideos != 4 {
		t.Errorf("DownloadedVideos = %d, want 4", task.DownloadedVideos)
	}

	if err := s.DeleteDownloadTask(-1009999); err != nil {
		t.Fatalf("DeleteDownloadTask() error = %v", err)
	}
	task, _ = s.GetDownloadTask(-1009999)
	if task != nil {
		t.Errorf("GetDownloadTask() после удаления = %+v, want nil", task)
	}
}

func TestPublishTask_Lifecycle(t *testing.T) {
	s := newTestStorage(t)
	folder := "/курсы/мой-проект"

	// Создание с чистыми защёлками
	task, err := s.GetOrCreatePublishTask(folder, "мой-проект")
	if err != nil {
		t.Fatalf("GetOrCreatePublishTask() error = %v", err)
	}
	if task.ProjectName != "мой-проект" {
		t.Errorf("ProjectName = %q, want %q", task.ProjectName, "мой-проект")
	}
	if task.Status != StatusPending {
		t.Errorf("Status = %q, want %q", task.Status, StatusPending)
	}
	if task.IsStarted || task.IsZipped || task.IsPublished {
		t.Errorf("новая задача имеет взведённые защёлки: %+v", task)
	}

	// Повторный вызов возвращает ту же задачу, не сбрасывая прогресс
	if err := s.CompleteStage(folder, FlagStarted); err != nil {
		t.Fatalf("CompleteStage() error = %v", err)
	}
	task, err = s.GetOrCreatePublishTask(folder, "мой-проект")
	if err != nil {
		t.Fatalf("повторный GetOrCreatePublishTask() error = %v", err)
	}
	if !task.IsStarted {
		t.Error("повторный GetOrCreatePublishTask() сбросил защёлку is_started")
	}

	// Прогресс конвейера
	if err := s.SetPublishStep(folder, StepZip, StatusInProgress); err != nil {
		t.Fatalf("SetPublishStep() error = %v", err)
	}
	if err := s.SetLastUploadedFile(folder, "zipped/проект-001.zip"); err != nil {
		t.Fatalf("SetLastUploadedFile() error = %v", err)
	}
	if err := s.SetPublishDestination(folder, -1002222); err != nil {
		t.Fatalf("SetPublishDestination() error = %v", err)
	}
	if err := s.SetPublishInviteLink(folder, "https://t.me/+abcdef"); err != nil {
		t.Fatalf("SetPublishInviteLink() error = %v", err)
	}

	task, _ = s.GetPublishTask(folder)
	if task.CurrentStep != StepZip {
		t.Errorf("CurrentStep = %q, want %q", task.CurrentStep, StepZip)
	}
	if task.Status != StatusInProgress {
		t.Errorf("Status = %q, want %q", task.Status, StatusInProgress)
	}
	if task.LastUploadedFile != "zipped/проект-001.zip" {
		t.Errorf("LastUploadedFile = %q", task.LastUploadedFile)
	}
	if task.DestinationChatID != -1002222 {
		t.Errorf("DestinationChatID = %d, want -1002222", task.DestinationChatID)
	}
	if task.InviteLink != "https://t.me/+abcdef" {
		t.Errorf("InviteLink = %q", task.InviteLink)
	}

	// Удаление (перезапуск конвейера)
	if err := s.DeletePublishTask(folder); err != nil {
		t.Fatalf("DeletePublishTask() error = %v", err)
	}
	task, _ = s.GetPublishTask(folder)
	if task != nil {
		t.Errorf("GetPublishTask() после удаления = %+v, want nil", task)
	}
}

func TestCompleteStage(t *testing.T) {
	s := newTestStorage(t)
	folder := "/курсы/защёлки"

	if _, err := s.GetOrCreatePublishTask(folder, "защёлки"); err != nil {
		t.Fatalf("GetOrCreatePublishTask() error = %v", err)
	}

	flags := []StageFlag{
		FlagStarted, FlagZipped, FlagReported, FlagReencodeAuth, FlagReencoded,
		FlagJoined, FlagTimestamped, FlagUploadAuth, FlagPublished,
	}

	// Взводим защёлки по порядку; ранее взведённые остаются
	for i, flag := range flags {
		if err := s.CompleteStage(folder, flag); err != nil {
			t.Fatalf("CompleteStage(%s) error = %v", flag, err)
		}
		task, err := s.GetPublishTask(folder)
		if err != nil {
			t.Fatalf("GetPublishTask() error = %v", err)
		}
		for j, prev := range flags[:i+1] {
			if !task.StageDone(prev) {
				t.Errorf("после CompleteStage(%s): защёлка %s (шаг %d) сброшена", flag, prev, j)
			}
		}
		for _, next := range flags[i+1:] {
			if task.StageDone(next) {
				t.Errorf("после CompleteStage(%s): защёлка %s взведена преждевременно", flag, next)
			}
		}
	}

	// Повторное взведение не меняет состояние
	if err := s.CompleteStage(folder, FlagZipped); err != nil {
		t.Errorf("повторный CompleteStage() error = %v", err)
	}

	// Неизвестная защёлка отклоняется
	if err := s.CompleteStage(folder, StageFlag("is_hacked; DROP TABLE PublishTasks")); err == nil {
		t.Error("CompleteStage() с неизвестной защёлкой должен вернуть ошибку")
	}

	// Отсутствующая задача
	if err := s.CompleteStage("/нет/такой", FlagStarted); err == nil {
		t.Error("CompleteStage() для отсутствующей задачи должен вернуть ошибку")
	}
}

func TestGetStats(t *testing.T) {
	s := newTestStorage(t)

	if err := s.UpsertSyncTask(&SyncTask{OriginChatID: 1, Strategy: StrategyForward}); err != nil {
		t.Fatalf("UpsertSyncTask() error = %v", err)
	}
	if err := s.UpsertSyncTask(&SyncTask{OriginChatID: 2, Strategy: StrategyDownload}); err != nil {
		t.Fatalf("UpsertSyncTask() error = %v", err)
	}
	if err := s.UpsertDownloadTask(&DownloadTask{OriginChatID: 3}); err != nil {
		t.Fatalf("UpsertDownloadTask() error = %v", err)
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.SyncTasks != 2 {
		t.Errorf("SyncTasks = %d, want 2", stats.SyncTasks)
	}
	if stats.DownloadTasks != 1 {
		t.Errorf("DownloadTasks = %d, want 1", stats.DownloadTasks)
	}
	if stats.PublishTasks != 0 {
		t.Errorf("PublishTasks = %d, want 0", stats.PublishTasks)
	}
}
