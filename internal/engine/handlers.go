package engine

import (
	"context"

	"github.com/leadcadencehq/leadcadence-backend/internal/drafts"
	"github.com/leadcadencehq/leadcadence-backend/pkg/db/models"
	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
)

// defaultDMText goes out when a dm step has no configured text and the lead
// has no reviewed draft.
const defaultDMText = "Hi! Your recent post caught our attention. Happy to connect."

// Connector performs outbound actions on the social platform.
type Connector interface {
	Like(ctx context.Context, postID string) (bool, error)
	Follow(ctx context.Context, userID string) (bool, error)
	PostReply(ctx context.Context, postID, text string) (string, error)
	SendDM(ctx context.Context, userID, text string) (bool, error)
}

// stepContext carries everything a handler needs to perform one step.
type stepContext struct {
	enrollment *models.Enrollment
	step       *models.SequenceStep
	lead       *models.Lead
	draft      *models.ReplyDraft
}

// outcome is the uniform result of one dispatched step. Connector failures
// land here as ok=false; they are audit rows, not errors.
type outcome struct {
	ok        bool
	payload   map[string]any
	sentDraft *models.ReplyDraft
}

type handlerFunc func(ctx context.Context, sc *stepContext) outcome

func (e *Engine) actionHandlers() map[enums.ActionType]handlerFunc {
	return map[enums.ActionType]handlerFunc{
		enums.ActionTypeLike:          e.handleLike,
		enums.ActionTypeFollow:        e.handleFollow,
		enums.ActionTypeReply:         e.handleReply,
		enums.ActionTypeDM:            e.handleDM,
		enums.ActionTypeWait:          e.handleWait,
		enums.ActionTypeCheckResponse: e.handleCheckResponse,
	}
}

func (e *Engine) handleLike(ctx context.Context, sc *stepContext) outcome {
	if _, err := e.connector.Like(ctx, sc.lead.PlatformPostID); err != nil {
		return failure(err)
	}
	return success(map[string]any{"post_id": sc.lead.PlatformPostID})
}

func (e *Engine) handleFollow(ctx context.Context, sc *stepContext) outcome {
	if _, err := e.connector.Follow(ctx, sc.lead.AuthorDID); err != nil {
		return failure(err)
	}
	return success(map[string]any{"author_did": sc.lead.AuthorDID})
}

func (e *Engine) handleReply(ctx context.Context, sc *stepContext) outcome {
	if sc.draft == nil {
		return outcome{ok: false, payload: map[string]any{"error": "no reviewed draft available"}}
	}
	replyID, err := e.connector.PostReply(ctx, sc.lead.PlatformPostID, drafts.Text(sc.draft))
	if err != nil {
		return failure(err)
	}
	return outcome{
		ok: true,
		payload: map[string]any{
			"reply_id": replyID,
			"draft_id": sc.draft.ID.String(),
		},
		sentDraft: sc.draft,
	}
}

func (e *Engine) handleDM(ctx context.Context, sc *stepContext) outcome {
	text := defaultDMText
	source := "default"
	switch {
	case sc.step.Config != nil && sc.step.Config.DMText != nil && *sc.step.Config.DMText != "":
		text = *sc.step.Config.DMText
		source = "step_config"
	case sc.draft != nil:
		text = drafts.Text(sc.draft)
		source = "draft"
	}
	if _, err := e.connector.SendDM(ctx, sc.lead.AuthorDID, text); err != nil {
		return failure(err)
	}
	return success(map[string]any{
		"author_did":  sc.lead.AuthorDID,
		"text_source": source,
	})
}

// Wait steps burn their delay and nothing else; the pause itself lives in
// the step's delay_hours.
func (e *Engine) handleWait(ctx context.Context, sc *stepContext) outcome {
	return success(nil)
}

func (e *Engine) handleCheckResponse(ctx context.Context, sc *stepContext) outcome {
	responded := sc.lead.RespondedAt != nil
	payload := map[string]any{"responded": responded}
	if responded {
		payload["responded_at"] = sc.lead.RespondedAt.UTC()
	}
	return success(payload)
}

func success(payload map[string]any) outcome {
	return outcome{ok: true, payload: payload}
}

func failure(err error) outcome {
	return outcome{ok: false, payload: map[string]any{"error": err.Error()}}
}
