package orchestrator

import (
	"context"
	"fmt"

	"shopchat/pkg/log"
)

// DefaultResyncLimit caps the messages republished by one resync call
const DefaultResyncLimit = 100

// Resync republishes ai_response_ready for userID's messages whose reply was
// generated but never acknowledged as delivered. It returns how many were published.
func (o *Orchestrator) Resync(ctx context.Context, userID int64, limit int) (int, error) {
	if limit <= 0 || limit > DefaultResyncLimit {
		limit = DefaultResyncLimit
	}

	pending, err := o.messages.ListUndelivered(ctx, userID, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list undelivered messages of user %d: %w", userID, err)
	}

	published := 0
	for _, m := range pending {
		if !m.HasResponse() {
			continue
		}
		if err := o.publishResponse(ctx, o.pub, m.ID, *m.ResponseMessage, sourceResync); err != nil {
			return published, err
		}
		published++
	}

	log.WithFields(map[string]interface{}{
		"user_id":   userID,
		"pending":   len(pending),
		"published": published,
	}).Info("Resynced undelivered responses")
	return published, nil
}
