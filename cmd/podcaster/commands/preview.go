package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexiqai/podcast-studio/internal/config"
	"github.com/lexiqai/podcast-studio/internal/speech"
)

const defaultPreviewText = "こんにちは。今日は一緒に論文を読んでいきましょう。"

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render one sample line with a voice",
	Long: `Render a single line with one voice at the podcast speaking rate, to
audition a voice before a full run. No language model is called.`,
	Args: cobra.NoArgs,
	RunE: runPreview,
}

var previewFlags struct {
	voice string
	text  string
	out   string
}

func init() {
	previewCmd.Flags().StringVar(&previewFlags.voice, "voice", "", "Voice ID to audition (see: podcaster speakers)")
	previewCmd.Flags().StringVar(&previewFlags.text, "text", defaultPreviewText, "Line to speak")
	previewCmd.Flags().StringVarP(&previewFlags.out, "out", "o", "preview.wav", "Output WAV file")
	previewCmd.MarkFlagRequired("voice")
	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	voice := strings.TrimSpace(previewFlags.voice)
	if voice == "" {
		return fmt.Errorf("voice is required")
	}
	if strings.TrimSpace(previewFlags.text) == "" {
		return fmt.Errorf("text is required")
	}

	cfg, err := config.LoadSpeechOnly()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	engine := speech.NewVoicevoxClient(cfg, logger)

	descriptor, err := engine.CreateDescriptor(ctx, previewFlags.text, voice)
	if err != nil {
		return err
	}
	descriptor.SetSpeedScale(cfg.SpeechSpeedScale)

	wav, err := engine.Render(ctx, voice, descriptor)
	if err != nil {
		return err
	}
	if err := writeFile(previewFlags.out, wav); err != nil {
		return err
	}

	logger.Info().
		Str("voice", voice).
		Float64("speed_scale", cfg.SpeechSpeedScale).
		Str("out", previewFlags.out).
		Msg("Preview written")
	return nil
}
