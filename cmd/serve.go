package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/devreload/internal/config"
	"github.com/conneroisu/devreload/internal/engine"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the development server with live reload",
	Long: `Build the stylesheet and the component page, serve them and rebuild
whenever a source file changes. Every connected browser tab reloads after
each rebuild.

Examples:
  devreload serve                          # Serve src/ on localhost:3000
  devreload serve --port 8080              # Serve on another port
  devreload serve --open                   # Also open the browser
  devreload serve --source web --output build
  devreload serve --props '{"Title":"Hi"}' # Render the entry with props`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 3000, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	addPathFlags(serveCmd)
	serveCmd.Flags().Duration("debounce", 0, "Watcher debounce window (default from config, 50ms)")
	serveCmd.Flags().Bool("open", false, "Open the page in the default browser")

	mustBind(viper.GetViper(), serveCmd.Flags(), map[string]string{
		"port": "server.port",
		"host": "server.host",
	})
}

// addPathFlags registers the flags shared by serve and build.
func addPathFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "", "Source directory (default from config, src)")
	cmd.Flags().String("output", "", "Output directory (default from config, dist)")
	cmd.Flags().String("props", "", "Component props as JSON or @file.json")
}

// commandConfig loads the configuration and applies the flags that are only
// honoured when set explicitly.
func commandConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.GetViper()
	if f := cmd.Flags().Lookup("source"); f != nil && f.Changed {
		v.Set("paths.source", f.Value.String())
	}
	if f := cmd.Flags().Lookup("output"); f != nil && f.Changed {
		v.Set("paths.output", f.Value.String())
	}
	if f := cmd.Flags().Lookup("debounce"); f != nil && f.Changed {
		v.Set("watcher.debounce", f.Value.String())
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if f := cmd.Flags().Lookup("props"); f != nil && f.Changed {
		props, err := parseProps(f.Value.String())
		if err != nil {
			return nil, err
		}
		cfg.Render.Props = props
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	open, _ := cmd.Flags().GetBool("open")
	e, err := engine.New(cfg, engine.Options{
		Logger:      logger,
		Console:     cmd.OutOrStdout(),
		OpenBrowser: open,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return e.Run(ctx)
}
