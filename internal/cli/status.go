package cli

import (
	"context"
	"fmt"
)

// Status prints the current sync snapshot.
func (a *App) Status(ctx context.Context) error {
	s := a.engine.Status()

	mode := "offline"
	if s.Connected {
		mode = "online"
	}

	fmt.Printf("Connection:        %s\n", mode)
	fmt.Printf("State:             %s\n", s.State)
	fmt.Printf("Pending requests:  %d\n", s.PendingRequests)
	fmt.Printf("Pending fragments: %d\n", s.PendingFragments)
	if s.LastSyncAt.IsZero() {
		fmt.Println("Last sync:         never")
	} else {
		fmt.Printf("Last sync:         %s\n", s.LastSyncAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
