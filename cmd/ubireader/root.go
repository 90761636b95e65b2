package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/elektrischermoench/ubi-reader/pkg/ubireader"
	"github.com/elektrischermoench/ubi-reader/pkg/ulog"
)

var (
	flagVerbose     bool
	flagDebug       bool
	flagConfig      string
	flagPEBSize     int
	flagLEBSize     int
	flagStartOffset int64
	flagEndOffset   int64
	flagGuessOffset int64
	flagWarnOnly    bool
	flagIgnoreHdr   bool
	flagUbootFix    bool
	flagMasterKey   string
	flagDummyDevs   bool
	flagDummySocks  bool
)

var log ulog.View

func commandInit() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a config file (yaml/toml/json) overriding flag defaults")

	rootCmd.PersistentFlags().IntVar(&flagPEBSize, "peb-size", 0, "physical erase block size, 0 for the 128 KiB default")
	rootCmd.PersistentFlags().IntVar(&flagLEBSize, "leb-size", 0, "logical erase block size override (bare UBIFS images only)")
	rootCmd.PersistentFlags().Int64Var(&flagStartOffset, "start-offset", 0, "byte offset where UBI/UBIFS data begins")
	rootCmd.PersistentFlags().Int64Var(&flagEndOffset, "end-offset", 0, "exclusive byte offset ending the data region, 0 for unbounded (a UBI image fails to decode without it)")
	rootCmd.PersistentFlags().Int64Var(&flagGuessOffset, "guess-offset", 0, "offset used as the image start when start-offset is unset (probed only there, not scanned)")
	rootCmd.PersistentFlags().BoolVar(&flagWarnOnly, "warn-only-block-read-errors", false, "treat low level read errors as warnings and zero-fill")
	rootCmd.PersistentFlags().BoolVar(&flagIgnoreHdr, "ignore-block-header-errors", false, "include PEBs with bad EC/VID magics or CRCs")
	rootCmd.PersistentFlags().BoolVar(&flagUbootFix, "uboot-fix", false, "merge image_seq==0 PEBs into the dominant image")
	rootCmd.PersistentFlags().StringVar(&flagMasterKey, "master-key", "", "path to a 64 byte fscrypt v1 master key file")
	rootCmd.PersistentFlags().BoolVar(&flagDummyDevs, "use-dummy-devices", false, "emit device nodes as regular files carrying the packed device number")
	rootCmd.PersistentFlags().BoolVar(&flagDummySocks, "use-dummy-socket-file", false, "emit sockets as empty regular files")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if flagConfig != "" {
			viper.SetConfigFile(flagConfig)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("reading config %s: %w", flagConfig, err)
			}
			bindViperOverrides()
		}

		level := logrus.WarnLevel
		if flagVerbose {
			level = logrus.InfoLevel
		}
		if flagDebug {
			level = logrus.DebugLevel
		}
		log = ulog.New(level)

		return nil
	}

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(extractCmd)
}

// bindViperOverrides copies the peb-size, leb-size, start-offset,
// end-offset and master-key keys, when present in the loaded config
// file, over the corresponding flag variable unless that flag was set
// on the command line, so a config file can set defaults a user doesn't
// want to repeat on every invocation.
func bindViperOverrides() {
	flags := rootCmd.PersistentFlags()
	if viper.IsSet("peb-size") && !flags.Changed("peb-size") {
		flagPEBSize = viper.GetInt("peb-size")
	}
	if viper.IsSet("leb-size") && !flags.Changed("leb-size") {
		flagLEBSize = viper.GetInt("leb-size")
	}
	if viper.IsSet("start-offset") && !flags.Changed("start-offset") {
		flagStartOffset = viper.GetInt64("start-offset")
	}
	if viper.IsSet("end-offset") && !flags.Changed("end-offset") {
		flagEndOffset = viper.GetInt64("end-offset")
	}
	if viper.IsSet("master-key") && !flags.Changed("master-key") {
		flagMasterKey = viper.GetString("master-key")
	}
}

func buildOptions() (ubireader.Options, error) {
	opts := ubireader.Options{
		PEBSize:                 flagPEBSize,
		LEBSize:                 flagLEBSize,
		StartOffset:             flagStartOffset,
		EndOffset:               flagEndOffset,
		GuessOffset:             flagGuessOffset,
		WarnOnlyBlockReadErrors: flagWarnOnly,
		IgnoreBlockHeaderErrors: flagIgnoreHdr,
		UbootFix:                flagUbootFix,
		UseDummyDevices:         flagDummyDevs,
		UseDummySocketFile:      flagDummySocks,
		Log:                     log,
	}.WithDefaults()

	if flagMasterKey != "" {
		key, err := os.ReadFile(flagMasterKey)
		if err != nil {
			return opts, fmt.Errorf("reading master key %s: %w", flagMasterKey, err)
		}
		if len(key) != 64 {
			return opts, fmt.Errorf("master key %s must be exactly 64 bytes, got %d", flagMasterKey, len(key))
		}
		opts.MasterKey = key
	}

	return opts, nil
}
