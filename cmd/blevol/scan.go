package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blevol/internal/device"
	"github.com/srg/blevol/internal/profile"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for supported speakers",
	Long: `Scan for Bluetooth Low Energy devices and list the ones whose
advertised name matches a supported speaker model. Nothing is connected.

Use --all to list every device seen during the scan.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanAll      bool
	scanFormat   string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default: scan_timeout from config)")
	scanCmd.Flags().BoolVarP(&scanAll, "all", "a", false, "Show all devices, not only supported speakers")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
}

// scanEntry is one row of scan output.
type scanEntry struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	RSSI    int    `json:"rssi"`
	Profile string `json:"profile,omitempty"`
}

func runScan(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(scanFormat); err != nil {
		return err
	}

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	duration := cfg.ScanTimeout
	if scanDuration > 0 {
		duration = scanDuration
	}

	t, err := newTransport(logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := startProgress(cmd.ErrOrStderr(), "Scanning for speakers", duration)
	found, err := t.Scan(ctx, duration)
	progress.Stop()

	// Ctrl+C ends the scan early; show what was seen so far
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("scan failed")
		return err
	}

	entries := filterScan(found, profile.Default(), scanAll)
	return displayScan(cmd.OutOrStdout(), entries, scanFormat, scanAll)
}

// filterScan keeps devices with a known profile unless all is set, sorted by
// name then address.
func filterScan(found []device.DiscoveredDevice, registry *profile.Registry, all bool) []scanEntry {
	entries := make([]scanEntry, 0, len(found))
	for _, d := range found {
		e := scanEntry{Name: d.Name, Address: d.Address, RSSI: d.RSSI}
		if p, ok := registry.Match(d.Name); ok {
			e.Profile = p.Name
		} else if !all {
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Address < entries[j].Address
	})
	return entries
}

func displayScan(out io.Writer, entries []scanEntry, format string, all bool) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		if all {
			fmt.Fprintln(out, "No devices discovered")
		} else {
			fmt.Fprintln(out, "No speakers found")
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tPROFILE")
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = "(unnamed)"
		}
		p := e.Profile
		if p == "" {
			p = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, e.Address, e.RSSI, p)
	}
	return w.Flush()
}
