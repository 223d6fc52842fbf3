package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/beatwizard/features"
	"github.com/RyanBlaney/beatwizard/server"
	"github.com/RyanBlaney/beatwizard/storage"
)

var (
	serveAddr string
	noStore   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the beat analysis HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address; overrides the config file")
	serveCmd.Flags().BoolVar(&noStore, "no-store", false, "serve /analyze-beat only, without the beat catalog")
}

func runServe(cmd *cobra.Command, args []string) error {
	serverConfig := appConfig.Server
	if serveAddr != "" {
		serverConfig.Addr = serveAddr
	}

	analyzer := features.NewAnalyzer(appConfig.Loader, appConfig.Features)

	if noStore {
		return server.NewServer(analyzer, nil, &serverConfig).Start(cmd.Context())
	}

	store, err := storage.NewStore(appConfig.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	return server.NewServer(analyzer, store, &serverConfig).Start(cmd.Context())
}
