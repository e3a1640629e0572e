package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fabricmap/core-go/internal/config"
	"fabricmap/core-go/internal/zabbix"
)

const envPrefix = "MAPSYNC"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mapsync",
	Short: "Keep a Zabbix network map in step with a fabric topology document",
	Long: `mapsync places the devices of a data-center fabric on a Zabbix map,
one row per network layer, and links them with traffic-labelled edges.

Every flag can also be set through the environment, for example
MAPSYNC_SERVER or MAPSYNC_LOG_LEVEL.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("server", "", "Zabbix frontend URL, e.g. https://zabbix.example.net/zabbix")
	pf.String("user", "", "Zabbix API user")
	pf.String("password", "", "Zabbix API password")
	pf.StringP("config", "c", "topology.yaml", "topology document")
	pf.String("map", "", "map name, overrides the document")
	pf.String("log-level", "info", "trace, debug, info, warn or error")
	pf.String("log-format", "json", "json or console")
	pf.Duration("timeout", 30*time.Second, "timeout of a single Zabbix API call")
	pf.Bool("keep-border-leaf-pair", false, "keep the declared link between the first two border-leafs")

	if err := viper.BindPFlags(pf); err != nil {
		panic(err)
	}
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

type settings struct {
	Server             string
	User               string
	Password           string
	Config             string
	Map                string
	LogLevel           string
	LogFormat          string
	Timeout            time.Duration
	KeepBorderLeafPair bool
}

func loadSettings() settings {
	return settings{
		Server:             viper.GetString("server"),
		User:               viper.GetString("user"),
		Password:           viper.GetString("password"),
		Config:             viper.GetString("config"),
		Map:                viper.GetString("map"),
		LogLevel:           viper.GetString("log-level"),
		LogFormat:          viper.GetString("log-format"),
		Timeout:            viper.GetDuration("timeout"),
		KeepBorderLeafPair: viper.GetBool("keep-border-leaf-pair"),
	}
}

func (s settings) validate() error {
	var errs []error
	if s.Server == "" {
		errs = append(errs, errors.New("server is required (--server or MAPSYNC_SERVER)"))
	}
	if s.User == "" {
		errs = append(errs, errors.New("user is required (--user or MAPSYNC_USER)"))
	}
	if s.Config == "" {
		errs = append(errs, errors.New("config is required (--config or MAPSYNC_CONFIG)"))
	}
	return errors.Join(errs...)
}

// loadDocument reads the topology document and applies command-line overrides.
func (s settings) loadDocument() (*config.Document, error) {
	doc, err := config.Load(s.Config)
	if err != nil {
		return nil, err
	}
	s.applyOverrides(doc)
	return doc, nil
}

func (s settings) applyOverrides(doc *config.Document) {
	if s.Map != "" {
		doc.Map.Name = s.Map
	}
}

func iconNames(doc *config.Document) zabbix.IconNames {
	return zabbix.IconNames{
		Switch:   doc.Icons.Switch,
		Router:   doc.Icons.Router,
		Firewall: doc.Icons.Firewall,
	}
}

// openSession logs in to the frontend. Callers close it with closeSession.
func openSession(ctx context.Context, log zerolog.Logger, s settings) (*zabbix.Client, error) {
	client := zabbix.New(s.Server, zabbix.Options{Timeout: s.Timeout, Logger: log})
	if err := client.Login(ctx, s.User, s.Password); err != nil {
		return nil, fmt.Errorf("open zabbix session: %w", err)
	}
	log.Debug().Str("server", s.Server).Str("user", s.User).Msg("zabbix session opened")
	return client, nil
}

func closeSession(ctx context.Context, log zerolog.Logger, client *zabbix.Client) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := client.Logout(ctx); err != nil {
		log.Warn().Err(err).Msg("zabbix logout failed")
	}
}
