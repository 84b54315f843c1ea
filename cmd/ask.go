package cmd

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabq-dev/tabq/internal/dataset"
	"github.com/tabq-dev/tabq/internal/generate"
	"github.com/tabq-dev/tabq/internal/pipeline"
	"github.com/tabq-dev/tabq/internal/profile"
	"github.com/tabq-dev/tabq/internal/sandbox"
	"github.com/tabq-dev/tabq/internal/viz"
)

var (
	askDataPath   string
	askFigurePath string
	askShowCode   bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question about a dataset",
	Example: `  tabq ask --data sales.csv "total sales for the North region"
  tabq ask --data metrics.xlsx --figure chart.png "plot revenue by month"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		frame, err := dataset.Load(askDataPath)
		if err != nil {
			return err
		}
		prof := profile.Build(frame, log)

		client := newAIClient()
		mem := openMemory(client)
		sb, err := sandbox.NewContext(frame, time.Duration(cfg.ExecTimeoutSec)*time.Second, log)
		if err != nil {
			return err
		}
		gen := generate.New(client, mem, generate.Options{
			Model:          cfg.Model,
			FallbackModels: cfg.FallbackModels,
			Temperature:    cfg.Temperature,
			MaxTokens:      cfg.MaxTokens,
			Timeout:        time.Duration(cfg.GenTimeoutSec) * time.Second,
			HintThreshold:  cfg.MemoryThreshold,
		}, log)
		runner := pipeline.New(gen, sb, mem, prof, cfg.ResetPerQuery, log)

		ans, err := runner.Run(cmd.Context(), query)
		if err != nil {
			return err
		}

		fmt.Println(ans.Text)
		if askShowCode && ans.Code != "" {
			fmt.Println("\n--- code ---")
			fmt.Println(ans.Code)
		}
		if ans.Figure != nil {
			if err := writeFigure(ans.Figure, askFigurePath); err != nil {
				return err
			}
		}
		return nil
	},
}

func writeFigure(fig *viz.Artifact, path string) error {
	if path == "" {
		fmt.Fprintln(os.Stderr, "(a figure was produced; pass --figure to save it)")
		return nil
	}
	var data []byte
	switch fig.Type {
	case "image_png":
		b, err := base64.StdEncoding.DecodeString(fig.Data)
		if err != nil {
			return fmt.Errorf("decode figure: %w", err)
		}
		data = b
	default:
		data = []byte(fig.Data)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write figure: %w", err)
	}
	fmt.Fprintln(os.Stderr, "figure saved to", path)
	return nil
}

func init() {
	askCmd.Flags().StringVar(&askDataPath, "data", "", "dataset file (csv, tsv, xlsx, or json)")
	askCmd.Flags().StringVar(&askFigurePath, "figure", "", "write a produced figure to this path")
	askCmd.Flags().BoolVar(&askShowCode, "show-code", false, "print the generated code after the answer")
	_ = askCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(askCmd)
}
