// Package sl содержит небольшие хелперы для структурированного логгера slog.
package sl

import "log/slog"

// Err оборачивает ошибку в атрибут slog с ключом "error".
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}
