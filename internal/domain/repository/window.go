package repository

import "WalletWatch/internal/domain/models"

// IsValidWindow returns true if w is a supported accuracy window.
func IsValidWindow(w models.AccuracyWindow) bool {
	switch w {
	case models.WindowDay, models.WindowWeek, models.WindowMonth, models.WindowQuarter, models.WindowAllTime:
		return true
	default:
		return false
	}
}

// DefaultWindow returns the default accuracy window.
func DefaultWindow() models.AccuracyWindow { return models.WindowAllTime }

// NormalizeWindow converts a raw query string to a valid window (or default).
func NormalizeWindow(s string) models.AccuracyWindow {
	if s == "" {
		return DefaultWindow()
	}
	w := models.AccuracyWindow(s)
	if IsValidWindow(w) {
		return w
	}
	return DefaultWindow()
}
