// Package cli defines the hybridrag command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hybridrag/internal/config"
	"hybridrag/internal/logger"
)

var (
	cfgFile       string
	currentConfig *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:          "hybridrag",
	Short:        "hybridrag: layout-aware textbook ingestion and hybrid dense+sparse search",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		currentConfig = cfg
		logger.SetVerbose(viper.GetBool("verbose"))
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure. An interrupt
// cancels the running command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./hybridrag.yaml, then ~/.config/hybridrag/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().String("store", "", "vector store: memory, sqlite or qdrant")
	rootCmd.PersistentFlags().String("qdrant-url", "", "Qdrant base URL")

	// flags override HYBRIDRAG_* env vars, which override the config file
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("store", rootCmd.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("qdrant-url", rootCmd.PersistentFlags().Lookup("qdrant-url"))
	viper.SetEnvPrefix("HYBRIDRAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the config file and applies flag and env overrides.
func loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if store := viper.GetString("store"); store != "" {
		cfg.VectorStore.Type = store
	}
	if url := viper.GetString("qdrant-url"); url != "" {
		cfg.VectorStore.Type = "qdrant"
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &config.QdrantConfig{}
		}
		cfg.VectorStore.Qdrant.URL = url
	}
	config.ApplyDefaults(cfg)
	return cfg, nil
}

func getConfig() *config.AppConfig {
	if currentConfig == nil {
		return config.Default()
	}
	return currentConfig
}
