package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/blevol/internal/manager"
	"github.com/srg/blevol/internal/speaker"
)

var volumeCmd = &cobra.Command{
	Use:   "volume <0-100>",
	Short: "Set the volume of every speaker in range once",
	Long: `Discover supported speakers, connect to all of them, write the volume
and disconnect again. Each speaker is reported individually; the command
fails when any speaker did not take the new volume.`,
	Example: `  blevol volume 35
  blevol volume 0 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runVolume,
}

var volumeFormat string

func init() {
	volumeCmd.Flags().StringVarP(&volumeFormat, "format", "f", "table", "Output format (table, json)")
}

func parseVolume(arg string) (int, error) {
	v, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", speaker.ErrInvalidVolume, arg)
	}
	if v < speaker.MinVolume || v > speaker.MaxVolume {
		return 0, fmt.Errorf("%w: got %d", speaker.ErrInvalidVolume, v)
	}
	return v, nil
}

func runVolume(cmd *cobra.Command, args []string) error {
	if err := validateFormat(volumeFormat); err != nil {
		return err
	}
	v, err := parseVolume(args[0])
	if err != nil {
		return err
	}

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	m, err := newManager(cfg, logger)
	if err != nil {
		return err
	}
	defer shutdown(m, cfg.ShutdownTimeout, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := startProgress(cmd.ErrOrStderr(), "Looking for speakers", cfg.ScanTimeout)
	_, err = m.DiscoverAndConnect(ctx)
	progress.Stop()
	if err != nil {
		return err
	}
	if m.Len() == 0 {
		return ErrNoSpeakers
	}

	res, err := m.SetVolume(ctx, v)
	if err != nil {
		return err
	}

	if err := displayVolume(cmd.OutOrStdout(), res, m.Devices(), volumeFormat); err != nil {
		return err
	}

	if missed := len(res.Failed()) + len(res.NotConnected()); missed > 0 {
		return fmt.Errorf("%w: %d of %d speakers", ErrNotApplied, missed, len(res.Outcomes))
	}
	return nil
}

func displayVolume(out io.Writer, res *manager.VolumeResult, devices []speaker.Info, format string) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	var (
		ok   = color.New(color.FgGreen).SprintFunc()
		warn = color.New(color.FgYellow).SprintFunc()
		bad  = color.New(color.FgRed).SprintFunc()
	)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRESULT\tDETAIL")
	// devices is sorted by name
	for _, d := range devices {
		o, found := res.Outcomes[d.Name]
		if !found {
			continue
		}
		detail := "-"
		var result string
		switch o.Status {
		case manager.StatusSuccess:
			result = ok("ok")
		case manager.StatusNotConnected:
			result = warn("not connected")
			if d.LastError != "" {
				detail = d.LastError
			}
		default:
			result = bad("error")
			if o.Error != "" {
				detail = o.Error
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, d.Address, result, detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "Volume %d applied to %d of %d speakers\n", res.Value, len(res.Succeeded()), len(res.Outcomes))
	return err
}
