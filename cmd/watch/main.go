package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-watch/internal/layers"
	"github.com/joeblew999/plat-watch/internal/mapstate"
	"github.com/joeblew999/plat-watch/internal/server"
)

// Options defines all CLI flags and env vars for the watch server.
// Flags: --host, --port, --data-dir, --web-dir, --layers, --settings, --remote, --signed-in, --debug
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, SERVICE_LAYERS, ...
type Options struct {
	Host     string `doc:"Host to bind to" default:"0.0.0.0"`
	Port     int    `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir  string `doc:"Directory for area watches and settings" default:".data"`
	WebDir   string `doc:"Path to web/ directory" default:""`
	Layers   string `doc:"YAML layer configuration to mount" short:"l" default:""`
	Settings string `doc:"Settings backend: memory, file, badger or duckdb" default:"file"`
	Remote   string `doc:"Sync area watches with this server instead of the local store" default:""`
	SignedIn bool   `doc:"Start with a signed-in session" default:"false"`
	Debug    bool   `doc:"Enable debug logging" default:"false"`
}

func newLogger(opts *Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newServer(opts *Options) (*server.Server, error) {
	return server.New(server.Config{
		Host:   opts.Host,
		Port:   fmt.Sprintf("%d", opts.Port),
		WebDir: opts.WebDir,
		App: mapstate.Config{
			DataDir:         opts.DataDir,
			LayersFile:      opts.Layers,
			SettingsBackend: opts.Settings,
			RemoteURL:       opts.Remote,
			SignedIn:        opts.SignedIn,
			FlyDuration:     800 * time.Millisecond,
			Logger:          newLogger(opts),
		},
	})
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var srv *server.Server
		var httpServer *http.Server

		hooks.OnStart(func() {
			var err error
			srv, err = newServer(opts)
			if err != nil {
				log.Fatalf("Startup error: %v", err)
			}
			srv.Start(context.Background())

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-watch API server starting...\n")
			fmt.Printf("  Server:   %s\n", baseURL)
			fmt.Printf("  Data:     %s\n", opts.DataDir)
			fmt.Printf("  Settings: %s\n", opts.Settings)
			if opts.Remote != "" {
				fmt.Printf("  Remote:   %s\n", opts.Remote)
			}
			fmt.Println()
			fmt.Printf("  Events:   %s/api/v1/map/events\n", baseURL)
			fmt.Printf("  Docs:     %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI:  %s/openapi.json\n", baseURL)
			fmt.Println()

			httpServer = &http.Server{Addr: addr, Handler: srv}
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server error: %v", err)
			}
		})

		hooks.OnStop(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if httpServer != nil {
				httpServer.Shutdown(ctx)
			}
			if srv != nil {
				if err := srv.Close(); err != nil {
					log.Printf("Shutdown error: %v", err)
				}
			}
		})
	})

	cli.Root().Use = "watch"
	cli.Root().Short = "Map interaction state and area-watch server"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.Settings = mapstate.BackendMemory
			opts.DataDir = ""
			srv, err := newServer(opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating server: %v\n", err)
				os.Exit(1)
			}
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// layers subcommand: validate a layer file and print the render order
	layersCmd := &cobra.Command{
		Use:   "layers [file]",
		Short: "Validate a YAML layer configuration and print its render order",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := layers.LoadConfigFile(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid layer file: %v\n", err)
				os.Exit(1)
			}
			registry := layers.NewRegistry(layers.Options{})
			if err := registry.Mount(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "Invalid layer file: %v\n", err)
				os.Exit(1)
			}
			for _, l := range registry.Layers() {
				fmt.Printf("%3d.%-3d %-24s %-20s %s\n", l.Order, l.SubOrder, l.ID, l.GroupID, l.Layout.Visibility)
			}
			fmt.Printf("signature: %s\n", registry.OrderSignature())
		},
	}
	cli.Root().AddCommand(layersCmd)

	cli.Run()
}
