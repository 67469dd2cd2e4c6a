package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/carmat/internal/logger"
	"github.com/jmylchreest/carmat/internal/output"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <dir>",
	Short: "Merge the JSON result files of a directory",
	Long: `Merge every *.json file of a directory, in name order, into one list.
Arrays are concatenated and single objects appended.

Examples:
  carmat merge output > merged.json
  carmat merge output -o merged.yaml --format yaml
  carmat merge output -o merged.json --csv merged.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	flags := mergeCmd.Flags()
	flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.String("format", "json", "output format: json, jsonl, yaml")
	flags.String("csv", "", "also write the merged records as CSV to this file")
}

func runMerge(cmd *cobra.Command, args []string) error {
	formatStr, _ := cmd.Flags().GetString("format")
	format := output.Format(formatStr)
	switch format {
	case output.FormatJSON, output.FormatJSONL, output.FormatYAML:
	default:
		return fmt.Errorf("unsupported merge format: %s (use json, jsonl or yaml)", formatStr)
	}

	records, err := output.MergeJSONFiles(args[0])
	if err != nil {
		logger.Error("merge failed", "dir", args[0], "error", err)
		return err
	}
	logger.Info("files merged", "dir", args[0], "records", len(records))

	out := os.Stdout
	if outPath, _ := cmd.Flags().GetString("output"); outPath != "" {
		f, err := os.Create(outPath) //#nosec G304 -- CLI tool writes to user-specified output file
		if err != nil {
			logger.Error("failed to create output file", "path", outPath, "error", err)
			return err
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	if err := output.WriteRecords(out, format, records); err != nil {
		logger.Error("failed to write merged records", "error", err)
		return err
	}

	csvPath, _ := cmd.Flags().GetString("csv")
	if csvPath == "" {
		return nil
	}
	if len(records) == 0 {
		logger.Warn("no records to convert", "path", csvPath)
		return nil
	}
	f, err := os.Create(csvPath) //#nosec G304 -- CLI tool writes to user-specified output file
	if err != nil {
		logger.Error("failed to create csv file", "path", csvPath, "error", err)
		return err
	}
	defer func() { _ = f.Close() }()
	if err := output.WriteCSV(f, records); err != nil {
		logger.Error("failed to write csv", "path", csvPath, "error", err)
		return err
	}
	logger.Info("csv written", "path", csvPath, "records", len(records), "size", fileSize(csvPath))
	return nil
}
