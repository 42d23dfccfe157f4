// Package worker содержит пул воркеров для параллельного опроса видео.
package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/thiagofdso/chat-cloner/internal/cache"
	"github.com/thiagofdso/chat-cloner/internal/media"
	"github.com/thiagofdso/chat-cloner/internal/progress"
	"github.com/thiagofdso/chat-cloner/internal/scanner"
)

// Stats содержит статистику опроса.
type Stats struct {
	// Probed - количество файлов, опрошенных через ffprobe.
	Probed int64

	// Cached - количество файлов, взятых из кэша.
	Cached int64

	// Failed - количество файлов с ошибками.
	Failed int64

	// Total - общее количество файлов.
	Total int64
}

// FormatBytes форматирует байты в человекочитаемый формат.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Result - результат опроса одного файла.
type Result struct {
	// File - опрошенный файл.
	File scanner.File

	// Probe - метаданные файла; nil при ошибке.
	Probe *media.ProbeResult

	// Err - ошибка опроса.
	Err error
}

// Prober опрашивает медиафайл. Реализуется media.Transcoder.
type Prober interface {
	Probe(ctx context.Context, path string) (*media.ProbeResult, error)
}

// Pool управляет пулом воркеров опроса видеофайлов.
type Pool struct {
	prober   Prober
	cache    *cache.Cache
	workers  int
	stats    Stats
	progress *progress.Bar
}

// New создаёт новый пул воркеров.
func New(prober Prober, c *cache.Cache, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		prober:  prober,
		cache:   c,
		workers: workers,
	}
}

// SetProgressBar устанавливает прогресс-бар для отображения прогресса.
func (p *Pool) SetProgressBar(bar *progress.Bar) {
	p.progress = bar
}

// Process опрашивает файлы и возвращает результаты в порядке входа.
func (p *Pool) Process(ctx context.Context, files []scanner.File) []Result {
	results := make([]Result, len(files))

	jobs := make(chan int, len(files))
	for i := range files {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup

	// Запускаем воркеров
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, files, jobs, results)
		}()
	}

	// Ждём завершения всех воркеров
	wg.Wait()

	return results
}

// worker обрабатывает индексы файлов из канала. Каждый воркер пишет
// только в свои ячейки results, поэтому синхронизация не нужна.
func (p *Pool) worker(ctx context.Context, files []scanner.File, jobs <-chan int, results []Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case i, ok := <-jobs:
			if !ok {
				return
			}
			results[i] = p.probeFile(ctx, files[i])
		}
	}
}

// probeFile опрашивает один файл, используя кэш.
func (p *Pool) probeFile(ctx context.Context, file scanner.File) Result {
	atomic.AddInt64(&p.stats.Total, 1)

	if err := ctx.Err(); err != nil {
		atomic.AddInt64(&p.stats.Failed, 1)
		return Result{File: file, Err: err}
	}

	if p.cache != nil {
		if cached := p.cache.Get(file.Path); cached != nil {
			atomic.AddInt64(&p.stats.Cached, 1)
			if p.progress != nil {
				p.progress.Increment()
			}
			return Result{File: file, Probe: cached}
		}
	}

	probe, err := p.prober.Probe(ctx, file.Path)
	if err != nil {
		p.logError(file.Path, err)
		atomic.AddInt64(&p.stats.Failed, 1)
		if p.progress != nil {
			p.progress.IncrementFailed()
		}
		return Result{File: file, Err: err}
	}

	if p.cache != nil {
		// Несохранённый кэш не мешает работе
		_ = p.cache.Put(file.Path, probe)
	}

	atomic.AddInt64(&p.stats.Probed, 1)
	if p.progress != nil {
		p.progress.Increment()
	}
	return Result{File: file, Probe: probe}
}

// logError логирует ошибку.
func (p *Pool) logError(path string, err error) {
	if p.progress != nil && !p.progress.IsDisabled() {
		p.progress.WriteMessage("❌ %s: %v\n", path, err)
	} else {
		fmt.Fprintf(os.Stderr, "❌ %s: %v\n", path, err)
	}
}

// GetStats возвращает текущую статистику.
func (p *Pool) GetStats() Stats {
	return Stats{
		Probed: atomic.LoadInt64(&p.stats.Probed),
		Cached: atomic.LoadInt64(&p.stats.Cached),
		Failed: atomic.LoadInt64(&p.stats.Failed),
		Total:  atomic.LoadInt64(&p.stats.Total),
	}
}

/*
Возможные расширения:
- Добавить rate limiting
- Добавить сбор метрик времени опроса
*/
