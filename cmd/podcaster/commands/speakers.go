package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexiqai/podcast-studio/internal/config"
	"github.com/lexiqai/podcast-studio/internal/speech"
)

var speakersCmd = &cobra.Command{
	Use:   "speakers",
	Short: "List the voices offered by the speech engine",
	Args:  cobra.NoArgs,
	RunE:  runSpeakers,
}

func init() {
	rootCmd.AddCommand(speakersCmd)
}

func runSpeakers(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadSpeechOnly()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	engine := speech.NewVoicevoxClient(cfg, logger)

	versions, err := engine.CoreVersions(ctx)
	if err != nil {
		return err
	}
	speakers, err := engine.Speakers(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "engine %s, core versions %v\n\n", cfg.SpeechEngineURL, versions)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VOICE ID\tSPEAKER\tSTYLE")
	for _, sp := range speakers {
		for _, style := range sp.Styles {
			fmt.Fprintf(w, "%d\t%s\t%s\n", style.ID, sp.Name, style.Name)
		}
	}
	return w.Flush()
}
