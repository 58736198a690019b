package services

import (
	"errors"
	"fmt"

	"van-dispatch/internal/repository"
)

var (
	// ErrNotFound запрошенная запись не существует
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput ошибка валидации входных данных
	ErrInvalidInput = errors.New("invalid input")
	// ErrGenerationInProgress генерация маршрутов уже запущена другим запросом
	ErrGenerationInProgress = errors.New("route generation already in progress")
	// ErrInvalidTransition недопустимая смена статуса
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict данные изменились параллельно или нарушают уникальность
	ErrConflict = errors.New("conflict")
)

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// translate переводит ошибки хранилища в ошибки сервисного слоя
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%s: %w: %v", what, ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
