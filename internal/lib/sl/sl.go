// Package sl содержит небольшие помощники для структурированного
// логирования через slog.
package sl

import "log/slog"

// Err оборачивает ошибку в slog.Attr с ключом "error", чтобы ошибки
// во всех логах выглядели одинаково.
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}
