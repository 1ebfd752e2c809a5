package info

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/f1replay-service-go/pkg/cmd/util"
	"github.com/mpapenbr/f1replay-service-go/pkg/config"
	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/service"
	"github.com/mpapenbr/f1replay-service-go/pkg/utils/cache"
)

type infoOptions struct {
	year    int
	round   int
	sprint  bool
	refresh bool
}

func NewInfoCmd() *cobra.Command {
	o := &infoOptions{}
	cmd := &cobra.Command{
		Use:   "info",
		Short: "shows the metadata of a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showInfo(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}
	cmd.Flags().IntVar(&o.year, "year", time.Now().Year(), "season year")
	cmd.Flags().IntVar(&o.round, "round", 1, "round number within the season")
	cmd.Flags().BoolVar(&o.sprint, "sprint", false, "use the sprint instead of the race")
	cmd.Flags().BoolVar(&o.refresh, "refresh-data", false,
		"recompute the session even if cached")
	return cmd
}

func showInfo(ctx context.Context, w io.Writer, o *infoOptions) error {
	if _, err := config.SetupLogger(os.Stderr); err != nil {
		return err
	}
	env, err := util.NewEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	key := model.SessionKey{Year: o.year, Round: o.round, Type: model.SessionTypeRace}
	if o.sprint {
		key.Type = model.SessionTypeSprint
	}
	entry, _, err := env.Service.LoadSession(ctx,
		service.LoadRequest{Key: key, ForceRefresh: o.refresh})
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	render(w, entry)
	return nil
}

func render(w io.Writer, entry *cache.Entry) {
	info := entry.Info
	summary := newWriter(w)
	summary.SetTitle(fmt.Sprintf("%d %s - %s", info.Key.Year, info.EventName, info.SessionLabel()))
	summary.AppendRows([]table.Row{
		{"Session", info.Key.String()},
		{"Round", info.RoundNumber},
		{"Laps", info.TotalLaps},
		{"Frames", entry.TotalFrames()},
		{"Frame rate", entry.FrameRate},
		{"Duration", formatSeconds(duration(entry))},
		{"Rotation", fmt.Sprintf("%.1f°", info.CircuitRotation)},
		{"Track points", len(info.TrackLayout.X)},
	})
	summary.Render()

	drivers := newWriter(w)
	drivers.SetTitle("Drivers")
	drivers.AppendHeader(table.Row{"Code", "Name", "Team", "Color"})
	codes := lo.Keys(info.DriverNames)
	slices.Sort(codes)
	for _, code := range codes {
		drivers.AppendRow(table.Row{
			code, info.DriverNames[code], info.DriverTeams[code], hex(info.DriverColors[code]),
		})
	}
	drivers.Render()

	statuses := newWriter(w)
	statuses.SetTitle("Track status")
	statuses.AppendHeader(table.Row{"Status", "Start", "End"})
	for _, p := range info.TrackStatuses {
		end := "-"
		if p.EndTime != nil {
			end = formatSeconds(*p.EndTime)
		}
		statuses.AppendRow(table.Row{p.Status, formatSeconds(p.StartTime), end})
	}
	statuses.Render()
}

func newWriter(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	return t
}

func duration(entry *cache.Entry) float64 {
	if len(entry.Frames) == 0 {
		return 0
	}
	return entry.Frames[len(entry.Frames)-1].T
}

func formatSeconds(s float64) string {
	return (time.Duration(s*float64(time.Second)) / time.Second * time.Second).String()
}

func hex(c model.RGB) string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}
