package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	commandInit()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ubireader",
	Short: "Decode UBI/UBIFS flash images without writing them back",
}
