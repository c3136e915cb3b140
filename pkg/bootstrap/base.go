package bootstrap

import (
	"context"
	"fmt"

	"relaymirror/internal/config"
	"relaymirror/internal/logger"
	"relaymirror/internal/source"
)

type Base struct {
	Config *config.Config
	Logger logger.Logger
	Source source.Source
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitSource wires the configured source platform stream (kafka or an
// in-process channel for embedded use).
func (b *Base) InitSource(serviceName string) error {
	src, err := source.New(b.Config.Source, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	if serviceName != "" {
		src.SetServiceName(serviceName)
	}

	b.Source = src
	return nil
}

func (b *Base) ShutdownSource() []error {
	var errs []error

	if b.Source != nil {
		if err := b.Source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("source close error: %w", err))
		}
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	errs = append(errs, b.ShutdownSource()...)

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
