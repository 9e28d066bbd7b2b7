package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/akyairhashvil/tally/internal/config"
	"github.com/akyairhashvil/tally/internal/license"
)

// NewLicenseCommand creates the license command group.
func NewLicenseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Manage the Pro license",
		Long: `Activate, inspect, or remove the Pro license. The free tier tracks up
to ` + fmt.Sprint(config.FreeActivityLimit) + ` active activities; a Pro license lifts the limit.`,
	}

	cmd.AddCommand(newLicenseActivateCommand(rootOpts))
	cmd.AddCommand(newLicenseStatusCommand(rootOpts))
	cmd.AddCommand(newLicenseRemoveCommand(rootOpts))

	return cmd
}

// licenseJSON is the JSON shape for license state.
type licenseJSON struct {
	Tier      string `json:"tier"` // "free" or "pro"
	Product   string `json:"product,omitempty"`
	Holder    string `json:"holder,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Limit     int    `json:"activity_limit,omitempty"` // 0 = unlimited
}

func licenseToJSON(claims *license.Claims) licenseJSON {
	if claims == nil {
		return licenseJSON{Tier: "free", Limit: config.FreeActivityLimit}
	}
	out := licenseJSON{Tier: "pro", Product: claims.Product, Holder: claims.Subject}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.Format(time.RFC3339)
	}
	return out
}

func newLicenseActivateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate <token>",
		Short: "Verify and store a license token",
		Long: `Verify a license token and store it for future runs. The argument is
the token itself or a path to a file containing it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			return runLicenseActivate(cmd.Context(), app, rootOpts.formatter(cmd), args[0])
		},
	}
	return cmd
}

func runLicenseActivate(ctx context.Context, app *App, f *OutputFormatter, tokenArg string) error {
	token := tokenArg
	if data, err := os.ReadFile(tokenArg); err == nil {
		token = strings.TrimSpace(string(data))
	}

	claims, err := license.Activate(app.Config.LicensePath, token, app.LicenseKey)
	switch {
	case errors.Is(err, license.ErrLicenseExpired):
		return WrapExitError(ExitCommandError, "activate license", err)
	case errors.Is(err, license.ErrInvalidLicense), errors.Is(err, license.ErrNoLicense):
		return WrapExitError(ExitCommandError, "activate license", err)
	case err != nil:
		return WrapExitError(ExitFailure, "activate license", err)
	}

	text := fmt.Sprintf("Pro unlocked for %s", claims.Subject)
	if claims.ExpiresAt != nil {
		text += fmt.Sprintf(" (valid until %s)", claims.ExpiresAt.Time.Format("2006-01-02"))
	}
	return f.Emit(licenseToJSON(claims), text)
}

func newLicenseStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show the current license tier",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			return runLicenseStatus(cmd.Context(), app, rootOpts.formatter(cmd))
		},
	}
	return cmd
}

func runLicenseStatus(ctx context.Context, app *App, f *OutputFormatter) error {
	claims, err := license.Load(app.Config.LicensePath, app.LicenseKey)
	if errors.Is(err, license.ErrNoLicense) {
		count, cerr := app.DB.CountActiveActivities(ctx)
		text := fmt.Sprintf("Free tier: up to %d active activities", config.FreeActivityLimit)
		if cerr == nil {
			text = fmt.Sprintf("Free tier: %d of %d active activities used", count, config.FreeActivityLimit)
		}
		return f.Emit(licenseToJSON(nil), text)
	}
	if err != nil {
		// A stored token that stopped verifying is worth surfacing, but
		// the command itself did its job.
		text := fmt.Sprintf("Stored license is not valid (%v); running on the free tier", err)
		return f.Emit(licenseToJSON(nil), text)
	}

	text := fmt.Sprintf("Pro license for %s", claims.Subject)
	if claims.ExpiresAt != nil {
		text += fmt.Sprintf(", valid until %s", claims.ExpiresAt.Time.Format("2006-01-02"))
	}
	return f.Emit(licenseToJSON(claims), text)
}

func newLicenseRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "remove",
		Short:         "Remove the stored license",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			return runLicenseRemove(cmd.Context(), app, rootOpts.formatter(cmd))
		},
	}
	return cmd
}

func runLicenseRemove(ctx context.Context, app *App, f *OutputFormatter) error {
	if err := license.Remove(app.Config.LicensePath); err != nil {
		return WrapExitError(ExitFailure, "remove license", err)
	}
	return f.Emit(licenseToJSON(nil), "License removed; back on the free tier.")
}
