// Package errs содержит таксономию ошибок клонирования и карту кодов выхода.
package errs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// Коды выхода процесса.
const (
	// ExitOK - успешное завершение.
	ExitOK = 0
	// ExitUsage - пользовательская ошибка: неверные аргументы,
	// неразрешимый идентификатор, отсутствующие учётные данные.
	ExitUsage = 1
	// ExitToolMissing - внешний инструмент (ffmpeg) не найден.
	ExitToolMissing = 2
	// ExitInterrupted - работа прервана сигналом; чекпоинт зафиксирован.
	ExitInterrupted = 3
	// ExitPermanent - постоянная ошибка платформы.
	ExitPermanent = 4
)

// ErrInterrupted - работа прервана пользователем.
var ErrInterrupted = errors.New("работа прервана")

// ErrUnresolvable - идентификатор не разобран локально (без сетевого вызова).
var ErrUnresolvable = errors.New("идентификатор не распознан")

// FloodWaitError - предписание платформы подождать N секунд.
// Ретрай-адаптер обязан выдержать паузу и повторить тот же вызов,
// не расходуя счётчик попыток.
type FloodWaitError struct {
	// Seconds - длительность ожидания, продиктованная сервером.
	Seconds int
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("платформа требует паузу %d с", e.Seconds)
}

// TransientError - временный сбой: обрыв соединения, таймаут,
// неоднозначная ошибка удалённой стороны.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("временный сбой: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError - постоянная ошибка: авторизация, чат не найден,
// запрет доступа, некорректный запрос. Не повторяется.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("постоянная ошибка платформы: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// RestrictedError - источник запрещает пересылку содержимого.
// Движок клонирования понижает стратегию до download_upload и продолжает.
type RestrictedError struct {
	// ChatID - чат с защищённым содержимым.
	ChatID int64
}

func (e *RestrictedError) Error() string {
	return fmt.Sprintf("чат %d запрещает пересылку содержимого", e.ChatID)
}

// UnsupportedError - сообщение такого вида не обрабатывается.
// Логируется, пропускается, чекпоинт продвигается.
type UnsupportedError struct {
	// Kind - вид сообщения.
	Kind string
	// Reason - уточнение причины пропуска (необязательно).
	Reason string
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("неподдерживаемое сообщение (%s): %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("неподдерживаемый вид сообщения: %s", e.Kind)
}

// ExternalToolError - внешний инструмент завершился с ошибкой или был
// прерван по таймауту.
type ExternalToolError struct {
	// Tool - имя инструмента (ffmpeg, ffprobe).
	Tool string
	// Killed - процесс снят по лимиту времени.
	Killed bool
	// Stderr - хвост диагностического вывода инструмента.
	Stderr string
	Err    error
}

func (e *ExternalToolError) Error() string {
	if e.Killed {
		return fmt.Sprintf("%s прерван по лимиту времени: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s завершился с ошибкой: %v", e.Tool, e.Err)
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

// ToolMissingError - внешний инструмент не найден в системе.
type ToolMissingError struct {
	// Tool - имя искомого бинарника.
	Tool string
}

func (e *ToolMissingError) Error() string {
	return fmt.Sprintf("инструмент %s не найден: укажите FFMPEG_PATH или установите его в PATH", e.Tool)
}

// FloodWait извлекает из цепочки ошибок предписанную паузу.
func FloodWait(err error) (int, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Seconds, true
	}
	return 0, false
}

// IsTransient сообщает, стоит ли повторять вызов с отступом.
// Помимо явной TransientError распознаются сетевые таймауты и обрывы.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	return false
}

// IsPermanent сообщает, что вызов повторять бессмысленно.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsRestricted сообщает о запрете пересылки.
func IsRestricted(err error) bool {
	var re *RestrictedError
	return errors.As(err, &re)
}

// IsUnsupported сообщает, что сообщение следует пропустить.
func IsUnsupported(err error) bool {
	var ue *UnsupportedError
	return errors.As(err, &ue)
}

// IsInterrupted распознаёт прерывание пользователем, в том числе
// отмену контекста.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ExitCode переводит ошибку в код выхода процесса.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var tm *ToolMissingError
	switch {
	case errors.As(err, &tm):
		return ExitToolMissing
	case IsInterrupted(err):
		return ExitInterrupted
	case IsPermanent(err):
		return ExitPermanent
	default:
		return ExitUsage
	}
}

// Permanentf оборачивает форматированную постоянную ошибку.
func Permanentf(format string, args ...interface{}) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

// Transientf оборачивает форматированную временную ошибку.
func Transientf(format string, args ...interface{}) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// NotFound - постоянная ошибка «чат не найден / нет доступа».
func NotFound(ref string) error {
	return &PermanentError{Err: fmt.Errorf("чат %q не найден или нет доступа", ref)}
}

// IsNotFound грубо распознаёт ошибку отсутствия доступа по тексту.
func IsNotFound(err error) bool {
	return IsPermanent(err) && strings.Contains(err.Error(), "не найден")
}

/*
Возможные расширения:
- Добавить код ошибки платформы (строковый) для точной классификации
- Добавить MultiError для пакетного режима
*/
