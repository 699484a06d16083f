// Command overlay-viewer shows a user's now-playing overlay in the terminal.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/justestif/go-spotify-overlay/internal/logging"
	"github.com/justestif/go-spotify-overlay/internal/overlay"
	"github.com/justestif/go-spotify-overlay/internal/viewer"
)

func main() {
	app := &cli.Command{
		Name:  "overlay-viewer",
		Usage: "Show a Spotify now-playing overlay in the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Overlay server base URL",
				Value:   "http://localhost:3000",
				Sources: cli.EnvVars("OVERLAY_SERVER"),
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Overlay user ID",
				Sources: cli.EnvVars("OVERLAY_USER"),
			},
			&cli.StringFlag{
				Name:  "url",
				Usage: "Overlay link to read the user ID and display options from",
			},
			&cli.StringFlag{Name: "label", Usage: "Caption above the track"},
			&cli.BoolFlag{Name: "simplified", Usage: "Single \"track • artists\" line"},
			&cli.BoolFlag{Name: "no-album", Usage: "Hide the album"},
			&cli.BoolFlag{Name: "no-progress", Usage: "Hide the progress bar"},
			&cli.BoolFlag{Name: "no-artist", Usage: "Hide the artists"},
			&cli.BoolFlag{Name: "no-logo", Usage: "Hide the Spotify logo"},
			&cli.BoolFlag{Name: "no-indicator", Usage: "Hide the playing indicator"},
			&cli.StringFlag{
				Name:  "position",
				Usage: "bottom-left, bottom-right, top-left or top-right",
			},
			&cli.StringFlag{Name: "size", Usage: "small, medium or large"},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "How often to ask the server for playback",
				Value: overlay.DefaultPollInterval,
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs here while the viewer runs",
				Value: "./tmp/overlay-viewer.log",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:  "print-url",
				Usage: "Print the browser overlay link and exit",
			},
		},
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal("overlay-viewer failed", "error", err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	userID, cfg, err := displayOptions(cmd)
	if err != nil {
		return err
	}

	server := cmd.String("server")
	if cmd.Bool("print-url") {
		fmt.Println(overlay.OverlayURL(server, userID, cfg))
		return nil
	}

	logger, closeLog, err := fileLogger(cmd.String("log-file"), cmd.String("log-level"))
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := overlay.NewClient(server)
	program := tea.NewProgram(viewer.New(cfg), tea.WithAltScreen(), tea.WithContext(ctx))

	player := overlay.NewPlayer(client, userID,
		overlay.WithIntervals(cmd.Duration("poll-interval"), 0),
		overlay.WithRender(func(s overlay.State) { program.Send(viewer.StateMsg(s)) }),
		overlay.WithPlayerLogger(logger),
	)

	if userID != "" {
		go func() {
			u, err := client.User(ctx, userID)
			if err != nil {
				logger.Warn("Fetching overlay owner", "user", userID, "error", err)
				return
			}
			program.Send(viewer.OwnerMsg(u.DisplayName))
		}()
	}

	go func() {
		if err := player.Run(ctx); err != nil {
			logger.Error("Player stopped", "error", err)
		}
	}()

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running viewer: %w", err)
	}
	return nil
}

// displayOptions builds the user ID and display config from --url, then
// applies the individual flags on top.
func displayOptions(cmd *cli.Command) (string, overlay.DisplayConfig, error) {
	cfg := overlay.DefaultDisplayConfig()
	userID := cmd.String("user")

	if raw := cmd.String("url"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return "", cfg, fmt.Errorf("parsing --url: %w", err)
		}
		q := u.Query()
		cfg = overlay.ParseDisplayConfig(q)
		if userID == "" {
			userID = q.Get("userId")
		}
	}

	if cmd.IsSet("label") {
		cfg.Label = cmd.String("label")
	}
	if cmd.Bool("simplified") {
		cfg.Simplified = true
	}
	for flag, field := range map[string]*bool{
		"no-album":     &cfg.ShowAlbum,
		"no-progress":  &cfg.ShowProgress,
		"no-artist":    &cfg.ShowArtist,
		"no-logo":      &cfg.ShowLogo,
		"no-indicator": &cfg.ShowIndicator,
	} {
		if cmd.Bool(flag) {
			*field = false
		}
	}

	// Reuse the query parser so invalid values fall back the same way.
	layout := url.Values{}
	layout.Set("position", cmd.String("position"))
	layout.Set("size", cmd.String("size"))
	parsed := overlay.ParseDisplayConfig(layout)
	if cmd.IsSet("position") {
		cfg.Position = parsed.Position
	}
	if cmd.IsSet("size") {
		cfg.Size = parsed.Size
	}

	return userID, cfg, nil
}

// fileLogger sends logs to path so they do not corrupt the terminal UI.
func fileLogger(path, level string) (*log.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	logger := logging.New(f, level)
	return logger, func() { f.Close() }, nil
}
