package logging

import "go.uber.org/zap"

// New builds the production logger used across the API process. Callers own
// the returned logger and should defer Sync before exit.
func New() (*zap.Logger, error) {
	return zap.NewProduction()
}
