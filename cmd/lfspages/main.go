// Command lfspages serves a static site, replacing Git LFS pointer files with their objects.
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "lfspages",
	Short: "Git LFS aware static site gateway",
	Long: `Serve a static site and transparently replace Git LFS pointer files
with the objects they point to, read from a bucket or a Git LFS server.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (yaml, toml or json)")
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	}

	viper.SetEnvPrefix("LFSPAGES")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// Names used by the Pages style deployments.
	_ = viper.BindEnv("keep_headers", "LFSPAGES_KEEP_HEADERS", "KEEP_HEADERS")
	_ = viper.BindEnv("bucket_url", "LFSPAGES_BUCKET_URL", "LFS_BUCKET_URL")

	if viper.ConfigFileUsed() != "" {
		_ = viper.ReadInConfig()
	}
}
