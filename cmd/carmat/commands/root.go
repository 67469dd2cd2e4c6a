// Package commands implements the CLI commands for carmat.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/carmat/internal/config"
	"github.com/jmylchreest/carmat/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "carmat",
	Short: "Scraper for the BRGM quarry site registry",
	Long: `Carmat walks the paginated quarry search of the BRGM InfoTerre portal
and exports one record per quarry site, optionally enriched with the most
recent prefectoral authorization from the site's detail page.

Results are written incrementally to a timestamped JSON file and converted
to CSV once the crawl completes.

Examples:
  # Scrape with an existing session cookie
  carmat scrape --session-cookie D002D4FEFBF302B74FB354D558379680

  # Acquire a fresh session and restrict to active sites
  carmat scrape --bootstrap --filtered

  # Convert an interrupted run's JSON output to CSV
  carmat convert output/details_results_20250102_150405.json

  # Merge the JSON files of several runs
  carmat merge output -o merged.json --csv merged.csv`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config file (default ./.carmat.yaml or $HOME/.carmat.yaml)")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded into the environment")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().Bool("log-json", false, "log in JSON format")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("log_json", rootCmd.PersistentFlags().Lookup("log-json"))
}

func initConfig(cmd *cobra.Command, _ []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		logError("%v", err)
		return err
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	if err := config.Setup(viper.GetViper(), cfgFile); err != nil {
		logError("%v", err)
		return err
	}

	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
		JSON:  viper.GetBool("log_json"),
	})
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug("config file loaded", "path", used)
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
