// Response dispatch: connects inbound messages to the conversation engine.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gymbrocolombia/gymbot/internal/flow"
	"github.com/gymbrocolombia/gymbot/internal/models"
	"github.com/gymbrocolombia/gymbot/internal/session"
	"github.com/gymbrocolombia/gymbot/internal/store"
)

// DefaultSendDelay is the pause between consecutive replies to one message,
// so multi-part answers arrive in order and read naturally.
const DefaultSendDelay = 500 * time.Millisecond

// ResponseHandler routes incoming responses through the conversation engine
// under the per-identifier session lock, then performs the resulting sends
// and persistence writes.
type ResponseHandler struct {
	msgService Service
	sessions   *session.Store
	engine     *flow.Engine
	store      store.Store
	sendDelay  time.Duration
	// cleanup triggers the inactivity sweep when the admin command asks
	// for it. Nil disables the command's effect.
	cleanup func()
}

// HandlerOption configures a ResponseHandler.
type HandlerOption func(*ResponseHandler)

// WithSendDelay overrides the pause between consecutive replies.
func WithSendDelay(d time.Duration) HandlerOption {
	return func(rh *ResponseHandler) { rh.sendDelay = d }
}

// WithCleanupTrigger wires the admin cleanup command to the inactivity sweep.
func WithCleanupTrigger(fn func()) HandlerOption {
	return func(rh *ResponseHandler) { rh.cleanup = fn }
}

// NewResponseHandler creates a ResponseHandler.
func NewResponseHandler(msgService Service, sessions *session.Store, engine *flow.Engine, st store.Store, opts ...HandlerOption) *ResponseHandler {
	rh := &ResponseHandler{
		msgService: msgService,
		sessions:   sessions,
		engine:     engine,
		store:      st,
		sendDelay:  DefaultSendDelay,
	}
	for _, opt := range opts {
		opt(rh)
	}
	return rh
}

// Start begins processing responses from the messaging service. It returns
// after spawning the processing loop; the loop exits when the context is
// cancelled or the responses channel closes.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler starting response processing")

	go func() {
		for {
			select {
			case <-ctx.Done():
				slog.Info("ResponseHandler stopping due to context cancellation")
				return
			case response, ok := <-rh.msgService.Responses():
				if !ok {
					slog.Info("ResponseHandler responses channel closed, stopping")
					return
				}
				if err := rh.ProcessResponse(ctx, response); err != nil {
					slog.Error("ResponseHandler failed to process response", "error", err, "from", response.From)
				}
			}
		}
	}()
}

// ProcessResponse handles one incoming response: it runs the engine under
// the session lock, sends the resulting replies in order, then applies the
// persistence directives. Persistence failures are logged but never surface
// to the user; send failures trigger a best-effort apology.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	canonicalFrom, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler sender validation failed", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}

	slog.Debug("ResponseHandler processing response", "from", canonicalFrom, "body_length", len(response.Body))

	var (
		result flow.Result
		plan   string
		lastAt time.Time
	)
	rh.sessions.Do(canonicalFrom, func(st *models.ConversationState, created bool) session.Outcome {
		if created {
			slog.Debug("ResponseHandler created session", "from", canonicalFrom)
		}
		result = rh.engine.Handle(st, response.Body)
		plan = st.Plan
		lastAt = st.LastActivity
		if result.EndSession {
			return session.Remove
		}
		return session.Keep
	})

	if result.Suppressed {
		slog.Debug("ResponseHandler message suppressed (human handoff)", "from", canonicalFrom)
		return nil
	}

	if err := rh.sendReplies(ctx, canonicalFrom, result.Replies); err != nil {
		slog.Error("ResponseHandler send failed", "error", err, "from", canonicalFrom, "rule", result.Rule)
		if sendErr := rh.msgService.SendMessage(ctx, canonicalFrom, flow.ProcessingErrorMessage); sendErr != nil {
			slog.Error("ResponseHandler failed to send apology", "error", sendErr, "from", canonicalFrom)
		}
		return fmt.Errorf("failed to send replies: %w", err)
	}

	rh.persistResult(canonicalFrom, result, plan, lastAt)

	if result.RunCleanup && rh.cleanup != nil {
		slog.Info("ResponseHandler triggering inactivity sweep", "from", canonicalFrom)
		rh.cleanup()
	}

	slog.Info("ResponseHandler response processed", "from", canonicalFrom, "rule", result.Rule, "replies", len(result.Replies))
	return nil
}

// sendReplies sends the replies in order with a pacing delay between them.
func (rh *ResponseHandler) sendReplies(ctx context.Context, to string, replies []models.Reply) error {
	for i, reply := range replies {
		if i > 0 && rh.sendDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(rh.sendDelay):
			}
		}
		var err error
		if reply.IsMedia() {
			err = rh.msgService.SendMedia(ctx, to, reply.MediaPath, reply.Caption)
		} else {
			err = rh.msgService.SendMessage(ctx, to, reply.Text)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// persistResult applies the engine's persistence directives. Each write is
// independent and best-effort.
func (rh *ResponseHandler) persistResult(phone string, result flow.Result, plan string, lastAt time.Time) {
	if rh.store == nil {
		return
	}

	if result.Persist || result.EndSession {
		if err := rh.store.UpsertInteraction(phone, plan, lastAt); err != nil {
			slog.Error("ResponseHandler failed to persist interaction", "error", err, "phone", phone)
		}
	}
	if result.Contracted {
		if err := rh.store.MarkContracted(phone, lastAt, result.ContractDurationDays); err != nil {
			slog.Error("ResponseHandler failed to mark contracted", "error", err, "phone", phone)
		}
	}
	if result.Feedback != "" {
		if err := rh.store.UpdateFeedback(phone, result.Feedback); err != nil {
			slog.Error("ResponseHandler failed to record feedback", "error", err, "phone", phone)
		}
	}
}
