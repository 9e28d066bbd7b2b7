package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// WidgetOptions holds flags for the widget command.
type WidgetOptions struct {
	*RootOptions
	Show bool
}

// NewWidgetCommand creates the widget command.
func NewWidgetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WidgetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "widget",
		Short: "Rewrite the widget snapshot file",
		Long: `Rebuild the shared JSON snapshot that widgets and status bars read.
Mutating commands and sync passes refresh it automatically; this forces
a rewrite.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer app.Close()
			return runWidget(cmd.Context(), app, opts.formatter(cmd), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Show, "show", false, "print the snapshot content instead of the path")

	return cmd
}

func runWidget(ctx context.Context, app *App, f *OutputFormatter, opts *WidgetOptions) error {
	if app.Widget == nil {
		return NewExitError(ExitCommandError, "the widget file is disabled: set widget.enabled in the config file")
	}
	if err := app.Widget.Refresh(ctx, app.DB); err != nil {
		return WrapExitError(ExitFailure, "refresh widget snapshot", err)
	}

	if opts.Show {
		data, err := os.ReadFile(app.Widget.Path())
		if err != nil {
			return WrapExitError(ExitFailure, "read widget snapshot", err)
		}
		_, err = f.Writer.Write(data)
		return err
	}

	payload := map[string]string{"path": app.Widget.Path()}
	return f.Emit(payload, fmt.Sprintf("Widget snapshot written to %s", app.Widget.Path()))
}
