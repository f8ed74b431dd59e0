package config

import "go.uber.org/zap"

// NewLogger builds the process logger. Production gets the JSON encoder,
// everything else the human-readable development one.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
