// Package cmd implements the tabq command-line interface.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tabq-dev/tabq/internal/ai"
	"github.com/tabq-dev/tabq/internal/config"
	"github.com/tabq-dev/tabq/internal/memory"
)

var (
	cfgFile string
	debug   bool

	cfg *config.Config
	log *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "tabq",
	Short: "Ask questions about tabular data in plain language",
	Long: `tabq loads a CSV, TSV, XLSX, or JSON dataset and answers natural-language
questions about it by generating analysis code with a local model, reviewing
it for safety, and running it in a restricted sandbox.`,
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if debug {
			cfg.Debug = true
		}
		log, err = newLogger(cfg.Debug)
		if err != nil {
			return err
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.tabq/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "verbose logging")
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		l, err = zc.Build()
	}
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return l.Sugar(), nil
}

func newAIClient() *ai.Client {
	return ai.NewClient(cfg.OllamaHost, time.Duration(cfg.GenTimeoutSec)*time.Second)
}

// openMemory returns the session memory store. When memory is disabled in
// config the store still exists but stays inert.
func openMemory(client *ai.Client) *memory.Store {
	var emb memory.Embedder
	if cfg.MemoryEnabled {
		emb = &memory.ModelEmbedder{Client: client, Model: cfg.EmbeddingModel}
	}
	return memory.Open(cfg.MemoryPath, emb, log)
}
