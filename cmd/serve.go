package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tabq-dev/tabq/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the analysis pipeline over HTTP:

  GET  /health       liveness and active dataset
  POST /api/analyze  {"query": "..."}
  POST /api/load     {"path": "..."}
  POST /api/upload   multipart file upload`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.ListenAddr = serveAddr
		}
		client := newAIClient()
		mem := openMemory(client)
		return server.New(cfg, client, mem, log).ListenAndServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
