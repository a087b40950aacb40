// Package services – OracleService
//
// This file implements OracleService, the orchestration around one oracle
// request: validate the supplied turns, enforce the per-conversation turn
// cap, obtain a reply through the model-fallback caller, and hand the
// completed exchange to the conversation logger on a detached goroutine so
// the caller-visible path never waits on persistence.
package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkaramanlis/oracle-backend/internal/llm"
)

// Generator produces a reply from an ordered model-fallback strategy.
// *llm.FallbackCaller is the production implementation.
type Generator interface {
	Generate(ctx context.Context, turns []llm.Turn, systemPrompt string) (text, model string, err error)
}

// ExchangeLogger records a completed exchange. *ConversationService is the
// production implementation.
type ExchangeLogger interface {
	LogExchange(ctx context.Context, clientID, lang string, turns []llm.Turn, reply string) error
}

// OracleService coordinates generation and best-effort logging for the
// oracle endpoint.
type OracleService struct {
	Generator Generator
	Logger    ExchangeLogger

	// MaxTurns caps how many turns one logical conversation may carry.
	MaxTurns int
	// MaxPromptRunes caps a single turn by rune length (0 disables).
	MaxPromptRunes int
	// SystemPrompt is the persona instruction passed to the provider.
	SystemPrompt string

	// logged, when non-nil, is closed-over by tests to observe the detached
	// logging goroutine finishing.
	logged chan struct{}
}

// Answer validates turns, generates a reply, and schedules logging of the
// exchange. It returns as soon as the reply is available; logging runs
// detached and its failures are recorded but never surfaced.
func (s *OracleService) Answer(ctx context.Context, clientID, lang string, turns []llm.Turn) (string, error) {
	tr := otel.Tracer("services/OracleService")
	ctx, span := tr.Start(ctx, "Answer",
		trace.WithAttributes(
			attribute.String("client.id", clientID),
			attribute.Int("turns", len(turns)),
		),
	)
	defer span.End()

	if err := s.validate(turns); err != nil {
		return "", err
	}
	if s.MaxTurns > 0 && len(turns) > s.MaxTurns {
		return "", ErrQuotaExceeded
	}

	text, model, err := s.Generator.Generate(ctx, turns, s.SystemPrompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	span.SetAttributes(attribute.String("llm.model", model))

	// Detached: the response must not wait on persistence, and a logging
	// failure must not fail a request that already succeeded.
	go s.logExchange(clientID, lang, turns, text)

	return text, nil
}

// logExchange runs the conversation logger on its own goroutine with a fresh
// context (the request context is likely cancelled by the time this runs).
func (s *OracleService) logExchange(clientID, lang string, turns []llm.Turn, reply string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("conversation logging panicked")
		}
		if s.logged != nil {
			s.logged <- struct{}{}
		}
	}()

	if s.Logger == nil {
		return
	}
	if err := s.Logger.LogExchange(context.Background(), clientID, lang, turns, reply); err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("conversation logging failed")
	}
}

// validate checks the turn batch shape: non-empty, known roles, a non-blank
// newest turn, and per-turn length within bounds.
func (s *OracleService) validate(turns []llm.Turn) error {
	if len(turns) == 0 {
		return ErrEmptyConversation
	}
	for _, t := range turns {
		if t.Role != llm.RoleUser && t.Role != llm.RoleModel {
			return ErrInvalidRole
		}
		if s.MaxPromptRunes > 0 && utf8.RuneCountInString(t.Content) > s.MaxPromptRunes {
			return ErrTooLong
		}
	}
	if strings.TrimSpace(turns[len(turns)-1].Content) == "" {
		return ErrEmptyPrompt
	}
	return nil
}
