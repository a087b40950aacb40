// Oracle HTTP handler.
//
// This file exposes the main endpoint of the service:
//   - POST /oracle   (rate-limited question answering)
//
// The handler is transport-thin: it validates and normalizes the payload,
// resolves the client identity, runs the quota check, and delegates to the
// oracle service. Conversation logging happens inside the service on a
// detached goroutine and never shows up in the response path.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mkaramanlis/oracle-backend/internal/http/middleware"
	"github.com/mkaramanlis/oracle-backend/internal/llm"
	"github.com/mkaramanlis/oracle-backend/internal/ratelimit"
	"github.com/mkaramanlis/oracle-backend/internal/services"
	"gorm.io/gorm"
)

//
// Service contracts (context-aware)
//

// OracleAsker defines the question-answering operation consumed by the HTTP
// layer. Implementations must be safe for concurrent use and honor the
// provided context.
type OracleAsker interface {
	// Answer validates turns, generates a reply through the model fallback
	// chain, and schedules best-effort logging of the exchange.
	Answer(ctx context.Context, clientID, lang string, turns []llm.Turn) (string, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for the oracle and conversation
// resources. It depends on the OracleAsker interface to keep transport
// concerns separate from business logic; the *gorm.DB handle serves the
// read-only conversation listings.
type Handlers struct {
	oracle  OracleAsker
	limiter *ratelimit.Limiter
	db      *gorm.DB

	// devMode widens error messages with underlying causes. Never enable in
	// production: provider errors may leak endpoint details.
	devMode bool
}

// New constructs a Handlers instance bound to the given dependencies.
func New(oracle OracleAsker, limiter *ratelimit.Limiter, db *gorm.DB, devMode bool) *Handlers {
	return &Handlers{oracle: oracle, limiter: limiter, db: db, devMode: devMode}
}

//
// DTOs
//

// OracleTurn is one turn of the conversation as sent by the client.
// Role is "user" or "model".
type OracleTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// OracleRequest is the JSON payload for POST /oracle. Messages carries the
// full turn history so far, newest last; Language is an optional BCP 47 tag
// used to group conversations.
type OracleRequest struct {
	Messages []OracleTurn `json:"messages" binding:"required"`
	Language string       `json:"language"`
}

// OracleResponse is the success envelope: the generated reply plus how many
// requests the client has left in the current window.
type OracleResponse struct {
	Text      string `json:"text"`
	Remaining int    `json:"remaining"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeText normalizes user text: CRLF/CR to LF, runs of blank lines
// collapsed, surrounding whitespace trimmed.
func sanitizeText(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// setRateHeaders writes the X-RateLimit-* trio for a quota check outcome.
func (h *Handlers) setRateHeaders(c *gin.Context, res ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(h.limiter.Max()))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Header("X-RateLimit-Reset", ratelimit.FormatReset(res.ResetAt))
}

//
// Handlers
//

// AskOracle handles POST /oracle.
//
// Flow: bind and validate the payload first, then resolve the client identity
// and check the fixed-window quota. The order matters: a request that could
// never be served must not consume a quota slot, so only well-formed requests
// reach the counter. Denials get a 429 with the X-RateLimit-* headers and a
// Retry-After. Validation failures from the service map to 400, the
// per-conversation turn cap to 429 with its own code, and model exhaustion
// to 500.
func (h *Handlers) AskOracle(c *gin.Context) {
	ctx := c.Request.Context()

	var req OracleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "messages required")
		return
	}

	clientID := ratelimit.ClientIdentifier(c.Request.Header, c.Request.RemoteAddr)
	res := h.limiter.Check(ctx, clientID)
	h.setRateHeaders(c, res)
	if !res.Allowed {
		retry := time.Until(res.ResetAt)
		if retry < 0 {
			retry = 0
		}
		c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
		return
	}

	turns := make([]llm.Turn, 0, len(req.Messages))
	for _, m := range req.Messages {
		turns = append(turns, llm.Turn{Role: m.Role, Content: sanitizeText(m.Text)})
	}

	text, err := h.oracle.Answer(ctx, clientID, req.Language, turns)
	if err != nil {
		h.failAnswer(c, err)
		return
	}

	ok(c, http.StatusOK, OracleResponse{Text: text, Remaining: res.Remaining})
}

// failAnswer maps service errors from Answer to HTTP responses.
func (h *Handlers) failAnswer(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyConversation),
		errors.Is(err, services.ErrEmptyPrompt):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "a non-empty question is required")
	case errors.Is(err, services.ErrInvalidRole):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message roles must be user or model")
	case errors.Is(err, services.ErrTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message too long")
	case errors.Is(err, services.ErrQuotaExceeded):
		fail(c, http.StatusTooManyRequests, ErrCodeConversationLimit,
			"this conversation reached its turn limit, start a new one")
	case errors.Is(err, services.ErrGenerationUnavailable):
		msg := "the oracle is unavailable right now, try again shortly"
		if h.devMode {
			msg = fmt.Sprintf("%s: %v", msg, err)
		}
		fail(c, http.StatusInternalServerError, ErrCodeAnswerFailed, msg)
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("oracle answer failed")
		msg := "something went wrong"
		if h.devMode {
			msg = err.Error()
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, msg)
	}
}
