package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"fabricmap/core-go/internal/httpapi"
	"fabricmap/core-go/internal/mapsync"
	"fabricmap/core-go/internal/zabbix"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the map payload without saving it",
	Long: `preview reads the existing map and the topology document, lays the
devices out and prints the map.create or map.update body as JSON.
Nothing is written to Zabbix.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPreview(cmd.Context(), cmd.OutOrStdout(), loadSettings())
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
}

func runPreview(ctx context.Context, out io.Writer, s settings) error {
	if err := s.validate(); err != nil {
		return err
	}
	log := httpapi.NewLogger(s.LogLevel, s.LogFormat)

	doc, err := s.loadDocument()
	if err != nil {
		return err
	}

	client, err := openSession(ctx, log, s)
	if err != nil {
		return err
	}
	defer closeSession(ctx, log, client)

	syncer := mapsync.New(log, zabbix.NewRegistry(client, iconNames(doc)), mapsync.Options{
		KeepBorderLeafPair: s.KeepBorderLeafPair,
	})
	res, err := syncer.Preview(ctx, doc)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Payload)
}
