package export

import (
	"github.com/haven/analytics-sync/internal/daterange"
	"github.com/haven/analytics-sync/internal/pkg/logger"
)

// LogProgress reports chunk progress through the logger.
func LogProgress() daterange.Progress {
	return daterange.ProgressFunc(func(current, total int, label string) {
		logger.Info(label, "current", current, "total", total)
	})
}
