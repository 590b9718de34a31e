// Command blendfm mixes Spotify playlists into new ones, as a web
// service or from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/blendfm/blendfm/internal/auth"
	"github.com/blendfm/blendfm/internal/config"
	"github.com/blendfm/blendfm/internal/db"
	"github.com/blendfm/blendfm/internal/lastfm"
	"github.com/blendfm/blendfm/internal/mixer"
	"github.com/blendfm/blendfm/internal/mixes"
	"github.com/blendfm/blendfm/internal/popularity"
	"github.com/blendfm/blendfm/internal/spotify"
	"github.com/blendfm/blendfm/internal/web"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	app := &cli.Command{
		Name:    "blendfm",
		Usage:   "Mix Spotify playlists into a single blended playlist",
		Version: "1.0.0",
		Commands: []*cli.Command{
			serveCommand(logger),
			mixCommand(logger),
			initCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("%v", err)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// serveCommand runs the web service.
func serveCommand(logger *log.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the blendfm web service",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides config)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}
			if addr := cmd.String("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			if cfg.Spotify.ClientID == "" || cfg.Spotify.ClientSecret == "" {
				return fmt.Errorf("spotify credentials missing: set them in %s or via SPOTIFY_ID/SPOTIFY_SECRET", cmd.String("config"))
			}

			var database *db.DB
			if cfg.Database.URL != "" {
				database, err = db.New(ctx, cfg.Database.URL)
				if err != nil {
					return fmt.Errorf("connecting to database: %w", err)
				}
				defer database.Close()
				logger.Info("database connected")
			} else {
				logger.Warn("no database configured, mixes will not be persisted")
			}

			mixSvc := mixes.New(database, mixServiceOptions(cfg, logger)...)

			server, err := web.NewServer(web.ServerConfig{
				Addr:         cfg.Server.Addr,
				ClientID:     cfg.Spotify.ClientID,
				ClientSecret: cfg.Spotify.ClientSecret,
				RedirectURL:  cfg.Server.RedirectURL,
				DB:           database,
				Mixes:        mixSvc,
				Logger:       logger,
			})
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}

			return server.Run()
		},
	}
}

// mixFile is the JSON request format of the mix command.
type mixFile struct {
	Name    string `json:"name"`
	Sources map[string]struct {
		Min        int     `json:"min"`
		Max        int     `json:"max"`
		Weight     float64 `json:"weight"`
		WeightType string  `json:"weightType"`
	} `json:"sources"`
	Options struct {
		TotalSongs                int    `json:"totalSongs"`
		TargetDurationMinutes     int    `json:"targetDurationMinutes"`
		UseTimeLimit              bool   `json:"useTimeLimit"`
		UseAllSongs               bool   `json:"useAllSongs"`
		ShuffleWithinGroups       bool   `json:"shuffleWithinGroups"`
		PopularityStrategy        string `json:"popularityStrategy"`
		RecencyBoost              bool   `json:"recencyBoost"`
		ContinueWhenPlaylistEmpty bool   `json:"continueWhenPlaylistEmpty"`
	} `json:"options"`
}

// mixCommand generates a mix from the terminal using the cached OAuth
// token, printing the tracklist and optionally saving it to Spotify.
func mixCommand(logger *log.Logger) *cli.Command {
	return &cli.Command{
		Name:      "mix",
		Usage:     "Generate a mix from a JSON request file",
		ArgsUsage: "<request.json>",
		Flags: []cli.Flag{
			configFlag(),
			&cli.UintFlag{
				Name:  "seed",
				Usage: "RNG seed for reproducible runs",
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Save the mix to Spotify as a new playlist",
			},
			&cli.BoolFlag{
				Name:  "preview",
				Usage: "Show only the first tracks without saving",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one request file argument")
			}
			req, err := loadMixFile(cmd.Args().First())
			if err != nil {
				return err
			}

			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}

			if cfg.Spotify.ClientID == "" || cfg.Spotify.ClientSecret == "" {
				return fmt.Errorf("spotify credentials missing: set them in %s or via SPOTIFY_ID/SPOTIFY_SECRET", cmd.String("config"))
			}
			authenticator, err := auth.New(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret)
			if err != nil {
				return err
			}
			api, err := authenticator.Authenticate(ctx)
			if err != nil {
				return fmt.Errorf("authenticating with Spotify: %w", err)
			}
			client := spotify.New(api, spotify.WithRateLimit(cfg.Mixing.RateLimitPerSecond))

			opts := mixServiceOptions(cfg, logger)
			if cmd.IsSet("seed") {
				seed := uint64(cmd.Uint("seed"))
				opts = append(opts, mixes.WithMixerOptions(
					mixer.WithRand(rand.New(rand.NewPCG(seed, seed))),
				))
			}
			mixSvc := mixes.New(nil, opts...)

			var run *mixes.RunResult
			if cmd.Bool("preview") {
				run, err = mixSvc.Preview(ctx, client, req)
			} else {
				run, err = mixSvc.Run(ctx, client, "", req)
			}
			if err != nil {
				return err
			}

			printRun(run)

			if len(run.Result.Errors) > 0 {
				for _, msg := range run.Result.Errors {
					logger.Error(msg)
				}
				return fmt.Errorf("invalid mix configuration")
			}

			if cmd.Bool("save") && !cmd.Bool("preview") {
				return saveRun(ctx, client, req.Name, run)
			}
			return nil
		},
	}
}

// initCommand writes an example config file.
func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write an example configuration file",
		Flags: []cli.Flag{configFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("config")
			if err := config.WriteExample(path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
}

// mixServiceOptions assembles the service options shared by serve and mix.
func mixServiceOptions(cfg *config.Config, logger *log.Logger) []mixes.Option {
	opts := []mixes.Option{mixes.WithLogger(logger)}

	if cfg.Lastfm.APIKey != "" {
		enricher := popularity.NewService(
			lastfm.NewClient(cfg.Lastfm.APIKey),
			popularity.WithConcurrency(cfg.Mixing.EnrichConcurrency),
		)
		opts = append(opts, mixes.WithEnricher(enricher))
	}

	return opts
}

func loadMixFile(path string) (mixes.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return mixes.Request{}, fmt.Errorf("reading request file: %w", err)
	}

	var file mixFile
	if err := json.Unmarshal(data, &file); err != nil {
		return mixes.Request{}, fmt.Errorf("parsing request file: %w", err)
	}

	ratios := make(map[string]mixer.SourceRatio, len(file.Sources))
	for id, src := range file.Sources {
		ratios[id] = mixer.SourceRatio{
			Min:        src.Min,
			Max:        src.Max,
			Weight:     src.Weight,
			WeightType: mixer.WeightType(src.WeightType),
		}
	}

	return mixes.Request{
		Name:   file.Name,
		Ratios: ratios,
		Options: mixer.Options{
			TotalSongs:                file.Options.TotalSongs,
			TargetDurationMinutes:     file.Options.TargetDurationMinutes,
			UseTimeLimit:              file.Options.UseTimeLimit,
			UseAllSongs:               file.Options.UseAllSongs,
			ShuffleWithinGroups:       file.Options.ShuffleWithinGroups,
			PopularityStrategy:        file.Options.PopularityStrategy,
			RecencyBoost:              file.Options.RecencyBoost,
			ContinueWhenPlaylistEmpty: file.Options.ContinueWhenPlaylistEmpty,
		},
	}, nil
}

// printRun writes the tracklist and statistics to stdout.
func printRun(run *mixes.RunResult) {
	for i, t := range run.Result.Tracks {
		fmt.Printf("%3d. %s - %s [%s]\n", i+1, t.Artist(), t.Name, t.SourcePlaylistID)
	}
	fmt.Printf("\n%d tracks, %.1f minutes, stop reason: %s\n",
		run.Stats.TotalTracks, run.Stats.TotalDurationMinutes, run.Result.Reason)
	for id, count := range run.Stats.PerSourceCounts {
		fmt.Printf("  %s: %d tracks\n", id, count)
	}
	for _, seg := range run.Segments {
		fmt.Printf("  %.0f%%-%.0f%%: %s (avg popularity %.0f)\n",
			seg.Start*100, seg.End*100, seg.Label, seg.AvgPopularity)
	}
}

// saveRun publishes the freshly generated mix as a new playlist.
func saveRun(ctx context.Context, client *spotify.Client, name string, run *mixes.RunResult) error {
	if len(run.Result.Tracks) == 0 {
		return fmt.Errorf("nothing to save: mix is empty")
	}
	if name == "" {
		name = "blendfm mix"
	}

	playlistID, err := client.CreatePlaylist(ctx, name, "Mixed by blendfm", false)
	if err != nil {
		return err
	}

	trackIDs := make([]string, len(run.Result.Tracks))
	for i, t := range run.Result.Tracks {
		trackIDs[i] = t.ID
	}
	if err := client.AddTracksToPlaylist(ctx, playlistID, trackIDs); err != nil {
		return err
	}

	fmt.Printf("\nSaved to Spotify playlist %s\n", playlistID)
	return nil
}
