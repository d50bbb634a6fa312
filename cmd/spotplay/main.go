package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/glebovdev/spotplay-cli/internal/api"
	"github.com/glebovdev/spotplay-cli/internal/cache"
	"github.com/glebovdev/spotplay-cli/internal/config"
	"github.com/glebovdev/spotplay-cli/internal/history"
	"github.com/glebovdev/spotplay-cli/internal/player"
	"github.com/glebovdev/spotplay-cli/internal/service"
	"github.com/glebovdev/spotplay-cli/internal/track"
	"github.com/glebovdev/spotplay-cli/internal/ui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	versionFlag      = flag.Bool("version", false, "Show version information")
	debugFlag        = flag.Bool("debug", false, "Enable debug logging")
	historyFlag      = flag.Bool("history", false, "Print the listening history and exit")
	clearHistoryFlag = flag.Bool("clear-history", false, "Forget the listening history and exit")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n\n", config.AppName, config.AppVersion, config.AppDescription)
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()

		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  %s, %s\n", config.EnvSpotifyClientID, config.EnvSpotifyClientSecret)
		fmt.Fprintf(os.Stderr, "  %s\n", config.EnvYouTubeAPIKey)

		configPath, err := config.GetConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Fprintf(os.Stderr, "\nConfig file: %s\n", configPath)
			} else {
				fmt.Fprintf(os.Stderr, "\nConfig file will be created on first use.\n")
			}
		}
	}
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppDescription)
		os.Exit(0)
	}

	setupLogging(*debugFlag)

	historyPath, err := history.DefaultPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not locate history: %v\n", err)
		os.Exit(1)
	}
	listenHistory := history.NewStore(historyPath)

	if *clearHistoryFlag {
		if err := listenHistory.Clear(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Listening history cleared.")
		os.Exit(0)
	}

	if *historyFlag {
		printHistory(os.Stdout, listenHistory.Entries())
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Using default config")
	}

	if *debugFlag {
		if configPath, err := config.GetConfigPath(); err == nil {
			log.Debug().Msgf("Config: %s", configPath)
		}
		if cacheDir, err := cache.GetCacheDir(); err == nil {
			log.Debug().Msgf("Cache: %s", cacheDir)
		}
		log.Debug().Msgf("History: %s (%d tracks)", historyPath, listenHistory.Len())
	}

	library, err := track.ScanLibrary(cfg.LibraryDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.LibraryDir).Msg("Failed to scan library")
	}

	// A nil interface keeps the catalog unavailable; a typed nil would not.
	var catalog service.Catalog
	if cfg.HasSpotifyCredentials() {
		catalog = api.NewSpotifyClient(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.Market)
	} else {
		log.Info().Msg("No Spotify credentials, only the local library is available")
	}
	catalogService := service.NewCatalogService(catalog)

	if cfg.YouTube.APIKey == "" {
		log.Info().Msg("No YouTube API key, full-length fallback is disabled")
	}
	finder := api.NewYouTubeClient(cfg.YouTube.APIKey)

	mpvOpts := player.MPVOptions{Path: cfg.Player.MPVPath}
	if cfg.Player.ResolveStreams {
		mpvOpts.Streams = player.NewYouTubeStreams()
	}

	deps := player.Deps{
		Finder:   finder,
		Recorder: listenHistory,
		Preview:  player.NewPreviewBackend(player.NewSpeakerOutput(), player.NewPreviewFetcher(nil, catalogService.Cache()), nil),
		Fallback: player.NewFallbackBackend(player.NewMPVFactory(mpvOpts)),
		Library:  library,
	}
	if catalogService.Available() {
		deps.Resolver = catalogService
	}
	controller := player.NewController(deps, player.Options{
		PreviewCeiling:  cfg.PreviewCeiling(),
		PollInterval:    cfg.PollInterval(),
		ErrorClearDelay: cfg.ErrorClearDelay(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := listenHistory.Watch(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to watch listening history")
	}

	var recommender *service.Recommender
	if catalogService.Available() {
		recommender = service.NewRecommender(catalog, listenHistory, service.DefaultRecommendationLimit)
	}

	spotplayUI := ui.NewUI(ui.Deps{
		Controller:  controller,
		Catalog:     catalogService,
		Recommender: recommender,
		Library:     library,
		Config:      cfg,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	uiDone := make(chan error, 1)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, cleaning up...")
		spotplayUI.Shutdown()
	}()

	log.Info().Msg("Starting UI...")

	// Run UI in a goroutine so we can handle signals properly
	go func() {
		uiDone <- spotplayUI.Run()
	}()

	if err := <-uiDone; err != nil {
		log.Error().Err(err).Msg("Error running UI")
		controller.Close()
		os.Exit(1)
	}

	controller.Close()
	log.Info().Msgf("%s stopped", config.AppName)
}

func setupLogging(debug bool) {
	if !debug {
		// Avoid TUI corruption by only logging errors to /dev/null
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644)
		if err == nil {
			log.Logger = log.Output(logFile)
		}
		return
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cacheDir, err := cache.GetCacheDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not get cache dir: %v\n", err)
		cacheDir = os.TempDir()
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
	}
	logPath := filepath.Join(cacheDir, "debug.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
		logFile = os.Stderr
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: logFile, TimeFormat: "15:04:05"})
	fmt.Printf("Debug log: %s\n", logPath)
	log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)
}
