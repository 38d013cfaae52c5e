package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/projectbrain/backend/internal/email"
	"github.com/projectbrain/backend/internal/reindex"
)

type Handler struct {
	runner *reindex.Runner
	mailer email.Mailer
	logger *slog.Logger
}

func NewHandler(runner *reindex.Runner, mailer email.Mailer, logger *slog.Logger) *Handler {
	return &Handler{
		runner: runner,
		mailer: mailer,
		logger: logger,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeReindexTick, h.HandleReindexTick)
	mux.HandleFunc(TypeWelcomeEmail, h.HandleWelcomeEmail)
}

// HandleReindexTick runs one reindex decision cycle. Errors propagate so
// asynq's error reporting sees failed indexer runs; the runner has
// already released the lock by then.
func (h *Handler) HandleReindexTick(ctx context.Context, t *asynq.Task) error {
	return h.runner.Run(ctx)
}

func (h *Handler) HandleWelcomeEmail(ctx context.Context, t *asynq.Task) error {
	var payload WelcomeEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := h.mailer.SendWelcome(ctx, payload.Email, payload.Name); err != nil {
		h.logger.Error("welcome email send failed", "email", payload.Email, "error", err)
		return err
	}

	h.logger.Info("welcome email sent", "email", payload.Email)
	return nil
}
