package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/thiagofdso/chat-cloner/internal/config"
	"github.com/thiagofdso/chat-cloner/internal/ffmpegfinder"
	"github.com/thiagofdso/chat-cloner/internal/logging"
	"github.com/thiagofdso/chat-cloner/internal/media"
	"github.com/thiagofdso/chat-cloner/internal/resolver"
	"github.com/thiagofdso/chat-cloner/internal/retry"
	"github.com/thiagofdso/chat-cloner/internal/storage"
	"github.com/thiagofdso/chat-cloner/internal/telegram"
)

// app - открытые ресурсы одной команды: конфигурация, журнал, база и
// клиент платформы. Закрывается в обратном порядке через close.
type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	store  *storage.Storage
	client telegram.Client
	retry  retry.Config
}

// openApp собирает окружение команды: конфигурация (.env -> окружение ->
// YAML), журнал, база данных и сессия платформы.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.Verbose, _ = cmd.Flags().GetBool("verbose")
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ошибка конфигурации: %w", err)
	}

	log, err := logging.Setup(cfg.LogPath(), cfg.Verbose)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("не удалось инициализировать БД: %w", err)
	}

	client, err := telegram.Open(cmd.Context(), cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		log:    log,
		store:  store,
		client: client,
		retry:  retry.DefaultConfig(),
	}, nil
}

// close освобождает ресурсы приложения.
func (a *app) close() {
	if err := a.client.Close(); err != nil && a.log != nil {
		a.log.Warnf("не удалось закрыть сессию платформы: %v", err)
	}
	if err := a.store.Close(); err != nil && a.log != nil {
		a.log.Warnf("не удалось закрыть базу данных: %v", err)
	}
}

// rsv создаёт резолвер идентификаторов поверх открытого клиента.
func (a *app) rsv() *resolver.Resolver {
	return resolver.New(a.client, a.retry, a.log)
}

// newTranscoder ищет ffmpeg/ffprobe и создаёт транскодер. Отсутствие
// инструментов - ToolMissingError с кодом выхода 2.
func (a *app) newTranscoder() (*media.Transcoder, error) {
	tools, err := ffmpegfinder.NewFinder(a.cfg.FFmpegPath).Find()
	if err != nil {
		return nil, err
	}
	fmt.Printf("📦 Найден ffmpeg: %s (версия %s)\n", tools.FFmpeg, tools.Version)

	trans := media.New(tools, a.log)
	trans.SetTimeout(a.cfg.TimeLimit())
	return trans, nil
}
