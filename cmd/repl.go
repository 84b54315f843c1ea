package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabq-dev/tabq/internal/ai"
	"github.com/tabq-dev/tabq/internal/dataset"
	"github.com/tabq-dev/tabq/internal/generate"
	"github.com/tabq-dev/tabq/internal/memory"
	"github.com/tabq-dev/tabq/internal/pipeline"
	"github.com/tabq-dev/tabq/internal/profile"
	"github.com/tabq-dev/tabq/internal/sandbox"
)

var replDataPath string

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive analysis session",
	Long: `Starts an interactive session. Type questions in plain language; built-in
commands are prefixed with a colon:

  :load <path>   load a dataset
  :schema        show the active dataset's columns
  :head          show the first rows
  :mem           show remembered solutions
  :reset         reset the sandbox session
  :quit          exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAIClient()
		mem := openMemory(client)

		s := &replSession{client: client, mem: mem}
		if replDataPath != "" {
			if err := s.load(replDataPath); err != nil {
				return err
			}
		}

		fmt.Println("tabq interactive session. :help for commands, :quit to exit.")
		sc := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !sc.Scan() {
				break
			}
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, ":") {
				if quit := s.command(line); quit {
					break
				}
				continue
			}
			s.ask(cmd, line)
		}
		return sc.Err()
	},
}

type replSession struct {
	client *ai.Client
	mem    *memory.Store

	frame  *dataset.Frame
	prof   *profile.Profile
	sb     *sandbox.Context
	runner *pipeline.Runner
}

func (s *replSession) load(path string) error {
	frame, err := dataset.Load(path)
	if err != nil {
		return err
	}
	prof := profile.Build(frame, log)
	sb, err := sandbox.NewContext(frame, time.Duration(cfg.ExecTimeoutSec)*time.Second, log)
	if err != nil {
		return err
	}
	gen := generate.New(s.client, s.mem, generate.Options{
		Model:          cfg.Model,
		FallbackModels: cfg.FallbackModels,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		Timeout:        time.Duration(cfg.GenTimeoutSec) * time.Second,
		HintThreshold:  cfg.MemoryThreshold,
	}, log)

	s.frame = frame
	s.prof = prof
	s.sb = sb
	s.runner = pipeline.New(gen, sb, s.mem, prof, cfg.ResetPerQuery, log)
	fmt.Printf("loaded %s: %d rows, %d columns\n", frame.Name, frame.NumRows(), frame.NumCols())
	fmt.Print(prof.SchemaSummary())
	return nil
}

func (s *replSession) command(line string) (quit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q", ":exit":
		return true
	case ":help":
		fmt.Println(":load <path>  :schema  :head  :mem  :reset  :quit")
	case ":load":
		if len(fields) < 2 {
			fmt.Println("usage: :load <path>")
			break
		}
		if err := s.load(fields[1]); err != nil {
			fmt.Println("error:", err)
		}
	case ":schema":
		if s.prof == nil {
			fmt.Println("no dataset loaded")
			break
		}
		fmt.Print(s.prof.SchemaSummary())
	case ":head":
		if s.frame == nil {
			fmt.Println("no dataset loaded")
			break
		}
		fmt.Println(s.frame.Head(10))
	case ":mem":
		for _, r := range s.mem.All() {
			fmt.Printf("%s  %s\n", r.CreatedAt.Format("2006-01-02"), r.Intent)
		}
		if s.mem.Len() == 0 {
			fmt.Println("memory is empty")
		}
	case ":reset":
		if s.sb == nil {
			fmt.Println("no dataset loaded")
			break
		}
		if err := s.sb.Reset(); err != nil {
			fmt.Println("error:", err)
		} else {
			fmt.Println("sandbox reset")
		}
	default:
		fmt.Println("unknown command", fields[0])
	}
	return false
}

func (s *replSession) ask(cmd *cobra.Command, query string) {
	if s.runner == nil {
		fmt.Println("load a dataset first with :load <path>")
		return
	}
	ans, err := s.runner.Run(cmd.Context(), query)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(ans.Text)
	if ans.Figure != nil {
		fmt.Println("(figure produced; use the ask command with --figure to save one)")
	}
	fmt.Printf("[confidence %.1f, attempt %d, %.2fs]\n", ans.Confidence, ans.Attempts, ans.Elapsed.Seconds())
}

func init() {
	replCmd.Flags().StringVar(&replDataPath, "data", "", "dataset to load on startup")
	rootCmd.AddCommand(replCmd)
}
