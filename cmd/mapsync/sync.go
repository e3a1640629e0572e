package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"fabricmap/core-go/internal/httpapi"
	"fabricmap/core-go/internal/mapsync"
	"fabricmap/core-go/internal/zabbix"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Create or update the map once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context(), cmd.OutOrStdout(), loadSettings())
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(ctx context.Context, out io.Writer, s settings) error {
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
	res, err := syncer.Run(ctx, doc)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s map %q (sysmapid %s): %d devices, %d links\n",
		verb(res.Mode), res.MapName, res.MapID, res.Devices, res.Links)
	for _, name := range res.Skipped {
		fmt.Fprintf(out, "skipped %s: not found in Zabbix\n", name)
	}
	return nil
}

func verb(m mapsync.Mode) string {
	if m == mapsync.ModeCreate {
		return "created"
	}
	return "updated"
}
