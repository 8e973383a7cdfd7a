// Package cmd assembles the lansoscan command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lansoscan/lansoscan-go/cmd/analyze"
	"github.com/lansoscan/lansoscan-go/cmd/cleanup"
	"github.com/lansoscan/lansoscan-go/cmd/history"
	"github.com/lansoscan/lansoscan-go/cmd/remove"
	"github.com/lansoscan/lansoscan-go/cmd/serve"
	"github.com/lansoscan/lansoscan-go/cmd/stats"
	"github.com/lansoscan/lansoscan-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lansoscan",
		Short: "LansoScan CLI",
		Long:  `Lansones fruit and leaf disease detection powered by a cloud vision model.`,
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		analyze.Command(settings),
		history.Command(settings),
		stats.Command(settings),
		remove.Command(settings),
		cleanup.Command(settings),
		serve.Command(settings),
	)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Gemini.APIKey, "apikey", viper.GetString("gemini.apikey"), "Gemini API key")
	rootCmd.PersistentFlags().StringVar(&settings.Gemini.Model, "model", viper.GetString("gemini.model"), "Gemini model identifier")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}
}
