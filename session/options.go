package session

import (
	"log/slog"

	"github.com/flashbots/maskagg/protocol"
	"github.com/flashbots/maskagg/report"
	"github.com/flashbots/maskagg/sim"
)

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the logger used by the session and its roles.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithReporter sets the collaborator receiving round reports.
func WithReporter(r report.Reporter) Option {
	return func(s *Session) { s.reporter = r }
}

// WithReadingSource replaces the readings derived from the configuration.
func WithReadingSource(src protocol.ReadingSource) Option {
	return func(s *Session) { s.readings = src }
}

// WithDropFilter installs a filter on the simulated network.
func WithDropFilter(f sim.DropFilter) Option {
	return func(s *Session) { s.dropFilters = append(s.dropFilters, f) }
}

// WithEngine runs the session on an existing engine.
func WithEngine(e *sim.Engine) Option {
	return func(s *Session) { s.engine = e }
}
