package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsvalues/terrafield/internal/common"
)

// Sync forces an immediate drain of both queues.
func (a *App) Sync(ctx context.Context) error {
	s, err := a.engine.ForceSync(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNetworkUnavailable) {
			fmt.Println("Offline; queued work will be delivered when the connection returns")
			return nil
		}
		fmt.Println("Sync failed:", err)
		return err
	}

	if s.PendingRequests+s.PendingFragments == 0 {
		fmt.Println("Everything synced")
	} else {
		fmt.Printf("Sync finished, %d request(s) and %d fragment(s) still pending\n",
			s.PendingRequests, s.PendingFragments)
	}
	return nil
}
