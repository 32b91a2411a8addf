package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/sdm/internal/output"
)

func newLogsCmd() *cobra.Command {
	var tail int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the download log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(logFile)
			if os.IsNotExist(err) {
				output.PrintInfo("No logs yet")
				return nil
			}
			if err != nil {
				return fmt.Errorf("error opening log file: %w", err)
			}
			defer file.Close()
			lines, err := lastLines(file, tail)
			if err != nil {
				return fmt.Errorf("error reading log file: %w", err)
			}
			for _, line := range lines {
				switch {
				case strings.Contains(line, " ERR "):
					output.PrintError(line)
				case strings.Contains(line, " WRN "):
					output.PrintWarning(line)
				default:
					fmt.Println(line)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "Only print the last N lines")
	return cmd
}

// lastLines returns the last n lines of f, or all of them when n <= 0.
func lastLines(f *os.File, n int) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, scanner.Err()
}
