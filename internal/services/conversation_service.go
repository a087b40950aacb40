// Package services – ConversationService
//
// This file implements ConversationService, the best-effort logger that
// records a completed exchange after the response has already been sent.
// It reuses a recent conversation for the same (client, language) session or
// creates a new one, and persists the new message rows plus the conversation
// counters as a single transaction so the two can never diverge.
//
// Failures here must never affect the request that triggered the logging;
// the orchestration runs LogExchange on a detached goroutine and only logs
// the returned error.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/language"

	"github.com/mkaramanlis/oracle-backend/internal/domain"
	"github.com/mkaramanlis/oracle-backend/internal/llm"
	"github.com/mkaramanlis/oracle-backend/internal/repo"
)

// bumpConversation is a seam so tests can inject a failure at the
// transaction boundary between message inserts and the counter update.
var bumpConversation = repo.BumpConversation

// ConversationService records exchanges into Conversation/Message rows.
type ConversationService struct {
	DB *gorm.DB

	// ReuseWindow is how far back a conversation's StartedAt may lie for the
	// session to be reused instead of split.
	ReuseWindow time.Duration

	// Now is a seam for tests; defaults to time.Now.
	Now func() time.Time
}

// NewConversationService constructs a ConversationService with the default
// 30-minute reuse window.
func NewConversationService(db *gorm.DB, reuseWindow time.Duration) *ConversationService {
	if reuseWindow <= 0 {
		reuseWindow = 30 * time.Minute
	}
	return &ConversationService{
		DB:          db,
		ReuseWindow: reuseWindow,
		Now:         time.Now,
	}
}

// LogExchange persists one exchange: the supplied turn history (or just its
// newest user turn when the conversation already exists) plus the assistant
// reply.
//
// Insert shape:
//   - brand-new conversation: every supplied turn is written, in order;
//   - existing conversation: only the newest turn is written, and only when
//     its role is "user" (older history is already on disk);
//   - in both cases one extra assistant row is appended for the reply.
//
// Rows and the conversation's message_count/last_message_at move in one
// transaction. Duplicate rows from replayed batches are skipped at the store
// level and excluded from the counter delta.
func (s *ConversationService) LogExchange(ctx context.Context, clientID, lang string, turns []llm.Turn, reply string) error {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "LogExchange",
		trace.WithAttributes(
			attribute.String("client.id", clientID),
			attribute.Int("turns", len(turns)),
		),
	)
	defer span.End()

	now := s.nowUTC()
	lang = NormalizeLanguage(lang)

	conv, err := repo.FindRecentConversation(ctx, s.DB, clientID, lang, now.Add(-s.ReuseWindow))
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		isNew := conv == nil
		if isNew {
			c, err := repo.CreateConversation(ctx, tx, clientID, lang, now)
			if err != nil {
				return err
			}
			conv = c
		}

		rows := buildMessageRows(conv, isNew, turns, reply, now)
		inserted, err := repo.InsertMessages(tx, rows)
		if err != nil {
			return err
		}
		return bumpConversation(tx, conv.ID, int(inserted), now)
	})
}

// buildMessageRows assembles the Message rows for one exchange. Seq continues
// from the conversation's current count so replays of the same batch collide
// with the already-written rows instead of appending twice.
func buildMessageRows(conv *domain.Conversation, isNew bool, turns []llm.Turn, reply string, now time.Time) []domain.Message {
	rows := make([]domain.Message, 0, len(turns)+1)
	seq := conv.MessageCount

	add := func(role, content string) {
		rows = append(rows, domain.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Seq:            seq,
			Role:           role,
			Content:        content,
			CreatedAt:      now,
		})
		seq++
	}

	if isNew {
		for _, t := range turns {
			add(persistRole(t.Role), t.Content)
		}
	} else if n := len(turns); n > 0 && turns[n-1].Role == llm.RoleUser {
		add(domain.RoleUser, turns[n-1].Content)
	}

	add(domain.RoleAssistant, reply)
	return rows
}

// persistRole maps the wire role ("model") to the stored role ("assistant").
func persistRole(wire string) string {
	if wire == llm.RoleUser {
		return domain.RoleUser
	}
	return domain.RoleAssistant
}

// NormalizeLanguage canonicalizes a client-supplied language tag ("en-us" →
// "en-US"). Unparseable or empty values fall back to English rather than
// fragmenting sessions across junk tags.
func NormalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return "en"
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return "en"
	}
	return tag.String()
}

func (s *ConversationService) nowUTC() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
