package logging

import "go.uber.org/zap"

// New builds the process logger. The returned cleanup flushes buffered entries.
func New(isProd bool) (*zap.Logger, func() error, error) {
	var (
		logger *zap.Logger
		err    error
	)

	if isProd {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		return nil, nil, err
	}

	cleanup := func() error { return logger.Sync() }
	return logger.With(zap.String("service", "pizza-tracker")), cleanup, nil
}
