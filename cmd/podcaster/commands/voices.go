package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexiqai/podcast-studio/internal/pipeline"
	"github.com/lexiqai/podcast-studio/internal/podcast"
	"github.com/lexiqai/podcast-studio/internal/synthesis"
)

// voiceFlags are shared by every command that renders audio
type voiceFlags struct {
	lead    string
	support string
	out     string
}

func (v *voiceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&v.lead, "lead", "", "voice id of the lead host, as listed by the speakers command")
	cmd.Flags().StringVar(&v.support, "support", "", "voice id of the supporting host")
	cmd.Flags().StringVarP(&v.out, "out", "o", "podcast.wav", "output WAV path")
	cmd.MarkFlagRequired("lead")
	cmd.MarkFlagRequired("support")
}

func (v *voiceFlags) assignment() podcast.VoiceAssignment {
	return podcast.VoiceAssignment{Lead: v.lead, Support: v.support}
}

// progressHooks prints stage changes and per-turn progress to stderr
func progressHooks() pipeline.Hooks {
	if quiet {
		return pipeline.Hooks{}
	}
	return pipeline.Hooks{
		OnStage: func(stage string) {
			fmt.Fprintf(os.Stderr, "==> %s\n", stage)
		},
		OnProgress: func(p synthesis.Progress) {
			fmt.Fprintf(os.Stderr, "    [%d/%d] turn %d: %s\n", p.Completed, p.Total, p.Index, p.Preview)
		},
	}
}

// writeFile writes data to path, creating or truncating it
func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
