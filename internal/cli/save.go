package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

// Save submits a property details payload to the backend, or queues it when
// the connection is down.
func (a *App) Save(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "Property ID", os.Stdout)
	if err != nil {
		return err
	}
	if id == "" {
		fmt.Println("Property ID is required")
		return nil
	}

	body, err := GetSimpleText(a.reader, "Details (JSON)", os.Stdout)
	if err != nil {
		return err
	}
	if !json.Valid([]byte(body)) {
		fmt.Println("Details must be valid JSON")
		return nil
	}

	_, queued, err := a.dispatcher.Send(ctx, http.MethodPut, "/api/properties/"+id, json.RawMessage(body))
	if err != nil {
		fmt.Println("Save failed:", err)
		return err
	}
	if queued {
		fmt.Println("Offline; save queued for delivery")
	} else {
		fmt.Println("Saved")
	}
	return nil
}
