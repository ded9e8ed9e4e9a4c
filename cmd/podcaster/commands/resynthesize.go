package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexiqai/podcast-studio/internal/app"
	"github.com/lexiqai/podcast-studio/internal/config"
	"github.com/lexiqai/podcast-studio/internal/pipeline"
	"github.com/lexiqai/podcast-studio/internal/speech"
	"github.com/lexiqai/podcast-studio/internal/stages"
)

var resynthesizeCmd = &cobra.Command{
	Use:   "resynthesize <script.json>",
	Short: "Render a saved script with different voices",
	Long: `Render a script saved by "podcaster run --script-out" with a new pair of
voices. No language model is called, so GEMINI_API_KEY is not needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runResynthesize,
}

var resynthVoices voiceFlags

func init() {
	resynthVoices.register(resynthesizeCmd)
	rootCmd.AddCommand(resynthesizeCmd)
}

func runResynthesize(cmd *cobra.Command, args []string) error {
	voices := resynthVoices.assignment()
	if err := voices.Validate(); err != nil {
		return err
	}

	payload, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	script, err := stages.DecodeScript(payload)
	if err != nil {
		return err
	}

	cfg, err := config.LoadSpeechOnly()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := speech.NewVoicevoxClient(cfg, logger)
	p := pipeline.New(pipeline.Deps{Synthesizer: app.NewCoordinator(cfg, engine, logger)}, logger)

	start := time.Now()
	out, err := p.ResynthesizeWithHooks(ctx, script, voices, progressHooks())
	if err != nil {
		return err
	}
	if err := writeFile(resynthVoices.out, out); err != nil {
		return err
	}

	logger.Info().
		Str("out", resynthVoices.out).
		Int("turns", script.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("Podcast written")
	return nil
}
