package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/bsvalues/terrafield/internal/common"
)

// Login prompts for credentials and authenticates against the backend.
// The password buffer is wiped as soon as the attempt finishes.
func (a *App) Login(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := GetPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeBytes(password)

	if err := a.client.Login(ctx, username, string(password)); err != nil {
		fmt.Println("Login failed:", err)
		return err
	}

	a.setLoggedIn(true)
	fmt.Println("Logged in as", username)
	return nil
}

// Logout clears the persisted session. Queued work is left alone so an
// appraiser can log back in later and still deliver it.
func (a *App) Logout(ctx context.Context) error {
	if err := a.tokens.Clear(); err != nil {
		a.log.Warn(ctx, "could not clear session tokens", "error", err)
	}
	a.setLoggedIn(false)
	fmt.Println("Logged out")
	return nil
}
