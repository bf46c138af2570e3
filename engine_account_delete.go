package goGrant

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goGrant/userstore"
)

// DeleteAccount removes userID from the durable store and the user mirror
// after closing every live session. Pending accounts only have a mirror.
func (e *Engine) DeleteAccount(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if userID == "" {
		return ErrInvalidInput
	}

	entry, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return mapUserError(err)
	}

	if _, err := e.CloseAllSessions(ctx, userID); err != nil {
		return err
	}

	if !entry.Incomplete {
		if err := e.users.Store().DeleteByID(ctx, userID); err != nil && !errors.Is(err, userstore.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
		}
	}
	if err := e.users.Delete(ctx, userID); err != nil {
		return mapUserError(err)
	}

	e.metricInc(MetricAccountDeleted)
	e.logger.InfoContext(ctx, "account deleted", "user_id", userID)
	return nil
}
