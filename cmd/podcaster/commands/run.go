package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lexiqai/podcast-studio/internal/app"
	"github.com/lexiqai/podcast-studio/internal/config"
)

var runCmd = &cobra.Command{
	Use:   "run <url>",
	Short: "Generate a podcast from a PDF or web page",
	Long: `Fetch the document at <url>, generate a two-host dialogue about it and
render the dialogue to a WAV file. The structured script can be saved with
--script-out and re-rendered later with "podcaster resynthesize".`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runVoices     voiceFlags
	scriptOut     string
	transcriptOut string
)

func init() {
	runVoices.register(runCmd)
	runCmd.Flags().StringVar(&scriptOut, "script-out", "", "save the structured script as JSON")
	runCmd.Flags().StringVar(&transcriptOut, "transcript-out", "", "save the rendered transcript as text")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	voices := runVoices.assignment()
	if err := voices.Validate(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Setup signal handling for graceful cancellation.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	studio, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer studio.Close()

	result, err := studio.Pipeline.RunWithHooks(ctx, args[0], voices, progressHooks())
	if err != nil {
		return err
	}

	if err := writeFile(runVoices.out, result.Audio); err != nil {
		return err
	}
	if scriptOut != "" {
		data, err := json.MarshalIndent(result.Script, "", "  ")
		if err != nil {
			return fmt.Errorf("encode script: %w", err)
		}
		if err := writeFile(scriptOut, data); err != nil {
			return err
		}
	}
	if transcriptOut != "" {
		if err := writeFile(transcriptOut, []byte(result.Transcript)); err != nil {
			return err
		}
	}

	logger.Info().
		Str("out", runVoices.out).
		Int("turns", result.Script.Len()).
		Dur("elapsed", result.Elapsed).
		Msg("Podcast written")
	return nil
}
