package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"analysisbridge/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "analysisbridged",
	Short: "Language-analysis coordinator between an editor and its analyzer binaries",
	Long:  `analysisbridged dispatches per-file analysis requests across a persistent type-checker pool and an ephemeral linter pool, merging and caching their diagnostics.`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().String("config", "", "path to a TOML config file (defaults applied when omitted)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func useColor(cmd *cobra.Command, out *os.File) bool {
	colorFlag, _ := cmd.Root().PersistentFlags().GetString("color")
	return colorFlag == "on" || (colorFlag == "auto" && isTerminal(out))
}
