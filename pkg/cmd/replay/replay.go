package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mpapenbr/f1replay-service-go/log"
	"github.com/mpapenbr/f1replay-service-go/pkg/cmd/util"
	"github.com/mpapenbr/f1replay-service-go/pkg/config"
	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/service"
	"github.com/mpapenbr/f1replay-service-go/pkg/viewer"
)

var ErrNoTerminal = errors.New("replay requires an interactive terminal")

type replayOptions struct {
	year    int
	round   int
	sprint  bool
	refresh bool
	speed   float64
	logFile string
}

func NewReplayCmd() *cobra.Command {
	o := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "replays a session in the terminal",
		Long: `Loads a session and shows the track map with the leaderboard.
Without --year and --round an interactive selection menu is shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			interactive := !cmd.Flags().Changed("year") && !cmd.Flags().Changed("round")
			return runReplay(cmd.Context(), o, interactive)
		},
	}
	cmd.Flags().IntVar(&o.year, "year", time.Now().Year(), "season year")
	cmd.Flags().IntVar(&o.round, "round", 0, "round number within the season")
	cmd.Flags().BoolVar(&o.sprint, "sprint", false, "replay the sprint instead of the race")
	cmd.Flags().BoolVar(&o.refresh, "refresh-data", false,
		"recompute the session even if cached")
	cmd.Flags().Float64Var(&o.speed, "speed", 1, "initial playback speed")
	cmd.Flags().StringVar(&o.logFile, "log-file",
		filepath.Join(config.DefaultCacheDir(), "replay.log"),
		"log output while the viewer is running")
	return cmd
}

func runReplay(ctx context.Context, o *replayOptions, interactive bool) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return ErrNoTerminal
	}
	closeLog, err := setupFileLogger(o.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	env, err := util.NewEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	req, err := resolveRequest(ctx, env, o, interactive)
	if err != nil {
		if errors.Is(err, viewer.ErrCanceled) {
			return nil
		}
		return err
	}

	fmt.Fprintf(os.Stderr, "Loading %s %s...\n", req.Key, req.Key.Type.Label())
	start := time.Now()
	entry, reused, err := env.Service.LoadSession(ctx, *req)
	if err != nil {
		return fmt.Errorf("load %s: %w", req.Key, err)
	}
	log.Info("session ready",
		log.String("sessionId", req.Key.String()),
		log.Int("frames", entry.TotalFrames()),
		log.Bool("reused", reused),
		log.Duration("duration", time.Since(start)))

	return viewer.Run(ctx, entry, viewer.WithSpeed(o.speed))
}

//nolint:whitespace // can't make both editor and linter happy
func resolveRequest(
	ctx context.Context, env *util.Env, o *replayOptions, interactive bool,
) (*service.LoadRequest, error) {
	if interactive {
		sel, err := viewer.RunMenu(ctx, o.year, env.Archive.Rounds)
		if err != nil {
			return nil, err
		}
		return &service.LoadRequest{Key: sel.Key, ForceRefresh: sel.Refresh || o.refresh}, nil
	}
	key := model.SessionKey{Year: o.year, Round: o.round, Type: model.SessionTypeRace}
	if o.sprint {
		key.Type = model.SessionTypeSprint
	}
	if key.Round < 1 {
		return nil, fmt.Errorf("%w: round must be positive", model.ErrInvalidSessionKey)
	}
	return &service.LoadRequest{Key: key, ForceRefresh: o.refresh}, nil
}

// setupFileLogger redirects the default logger since the terminal is owned
// by the viewer
func setupFileLogger(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(f, config.LogLevel)
	if err != nil {
		f.Close()
		return nil, err
	}
	log.ResetDefault(logger)
	return func() {
		_ = logger.Sync()
		f.Close()
	}, nil
}
