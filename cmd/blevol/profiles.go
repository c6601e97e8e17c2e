package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/blevol/internal/profile"
)

var profilesFormat string

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List supported speaker models",
	Long: `List the speaker models blevol recognizes and the GATT service and
characteristic used to set their volume. A device is matched when its
advertised name equals the model name exactly.`,
	Args: cobra.NoArgs,
	RunE: runProfiles,
}

func init() {
	profilesCmd.Flags().StringVarP(&profilesFormat, "format", "f", "table", "Output format (table, json)")
}

func runProfiles(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(profilesFormat); err != nil {
		return err
	}
	cmd.SilenceUsage = true

	profiles := profile.Default().Profiles()
	out := cmd.OutOrStdout()

	if profilesFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(profiles)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSERVICE\tVOLUME CHARACTERISTIC")
	for _, p := range profiles {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.FunctionServiceID, p.VolumeCharID)
	}
	return w.Flush()
}

func validateFormat(format string) error {
	switch format {
	case "table", "json":
		return nil
	default:
		return fmt.Errorf("%w '%s': must be one of [table json]", ErrInvalidFormat, format)
	}
}
