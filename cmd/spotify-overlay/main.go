// Command spotify-overlay runs the now-playing overlay server.
package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/justestif/go-spotify-overlay/internal/auth"
	"github.com/justestif/go-spotify-overlay/internal/config"
	"github.com/justestif/go-spotify-overlay/internal/db"
	"github.com/justestif/go-spotify-overlay/internal/logging"
	"github.com/justestif/go-spotify-overlay/internal/nowplaying"
	"github.com/justestif/go-spotify-overlay/internal/spotify"
	"github.com/justestif/go-spotify-overlay/internal/store"
	"github.com/justestif/go-spotify-overlay/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.StoreDriver, cfg.StoreDSN(), db.OpenStore)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.StoreDriver, err)
	}
	defer st.Close()

	if n, err := st.Count(ctx); err == nil {
		logger.Info("Loaded credential store", "driver", cfg.StoreDriver, "users", n)
	}

	locks := store.NewLocker()
	authCfg := authConfig(cfg)
	spotifyAPI := spotify.NewAPI(apiOptions(cfg)...)

	flow := auth.NewFlow(authCfg, auth.NewStateStore(auth.DefaultStateTTL, nil), spotifyAPI, st, locks,
		auth.WithFlowLogger(logging.Component(logger, "auth")))
	refresher := auth.NewRefresher(authCfg, st, locks,
		auth.WithLogger(logging.Component(logger, "refresh")))
	np := nowplaying.NewService(st, refresher, nowplaying.APISource{API: spotifyAPI},
		nowplaying.WithTimeout(cfg.UpstreamTimeout),
		nowplaying.WithLogger(logging.Component(logger, "nowplaying")))

	handlers := web.NewHandlers(flow, np, st, locks, cfg.FrontendURL, logging.Component(logger, "web"))
	server := web.NewServer(web.ServerConfig{
		Addr:           cfg.Addr(),
		AllowedOrigins: cfg.Origins(),
		Logger:         logger,
	}, handlers)

	logger.Info("Spotify redirect URI", "uri", cfg.SpotifyRedirectURI)
	logger.Info("Frontend", "url", cfg.FrontendURL, "origins", cfg.Origins())

	return server.Run(ctx)
}

// authConfig builds the OAuth settings; token endpoint calls share the
// upstream timeout with the Web API.
func authConfig(cfg *config.Config) auth.Config {
	return auth.Config{
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
		RedirectURL:  cfg.SpotifyRedirectURI,
		AuthURL:      cfg.SpotifyAuthURL,
		TokenURL:     cfg.SpotifyTokenURL,
		HTTPClient:   &http.Client{Timeout: cfg.UpstreamTimeout},
	}
}

func apiOptions(cfg *config.Config) []spotify.Option {
	opts := []spotify.Option{spotify.WithTimeout(cfg.UpstreamTimeout)}
	if cfg.SpotifyAPIURL != "" {
		opts = append(opts, spotify.WithBaseURL(cfg.SpotifyAPIURL))
	}
	if cfg.UpstreamRPS > 0 {
		burst := int(math.Max(1, math.Ceil(cfg.UpstreamRPS)))
		opts = append(opts, spotify.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.UpstreamRPS), burst)))
	}
	return opts
}
