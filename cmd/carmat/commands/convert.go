package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/carmat/internal/logger"
	"github.com/jmylchreest/carmat/internal/output"
)

var convertCmd = &cobra.Command{
	Use:   "convert <json> [csv]",
	Short: "Convert a JSON result file to CSV",
	Long: `Convert a JSON array of records to CSV. The header is the sorted union
of every record's keys, so rows stay aligned even when fields vary.

The CSV path defaults to the JSON path with a .csv extension.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	jsonPath := args[0]
	csvPath := strings.TrimSuffix(jsonPath, ".json") + ".csv"
	if len(args) > 1 {
		csvPath = args[1]
	}

	n, err := output.ConvertJSONToCSV(jsonPath, csvPath)
	if err != nil {
		logger.Error("conversion failed", "input", jsonPath, "error", err)
		return err
	}
	if n > 0 {
		logger.Info("csv written", "path", csvPath, "records", n)
	}
	return nil
}
