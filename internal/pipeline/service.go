package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/ai"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/db"
)

// ProgressFunc receives the processed count and batch limit as a stage
// advances through its batch.
type ProgressFunc func(processed, total int)

// Service runs the extract, normalize, and dedup stages against the shared
// pool. The AI capability is optional; stages that would escalate to it
// degrade to their deterministic path when it is nil.
type Service struct {
	pool     *db.Pool
	logger   zerolog.Logger
	ai       ai.Capability
	progress ProgressFunc
}

func NewService(pool *db.Pool, logger zerolog.Logger, capability ai.Capability) *Service {
	return &Service{
		pool:   pool,
		logger: logger.With().Str("component", "pipeline").Logger(),
		ai:     capability,
	}
}

// OnProgress registers a callback invoked after every processed row.
func (s *Service) OnProgress(fn ProgressFunc) {
	s.progress = fn
}

func (s *Service) reportProgress(processed, total int) {
	if s.progress != nil {
		s.progress(processed, total)
	}
}
