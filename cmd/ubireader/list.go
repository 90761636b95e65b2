package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/elektrischermoench/ubi-reader/pkg/ubireader"
)

var listCmd = &cobra.Command{
	Use:   "list <image>",
	Short: "List the files and directories inside a UBI/UBIFS image",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

// listEmitter prints one line per event, colored by kind, to stdout.
type listEmitter struct{}

func (listEmitter) OnDir(e ubireader.Event)  { fmt.Println(color.BlueString("d"), e.Path) }
func (listEmitter) OnFile(e ubireader.Event) { fmt.Println(color.GreenString("f"), e.Path, len(e.Body)) }
func (listEmitter) OnSymlink(e ubireader.Event) {
	fmt.Println(color.CyanString("l"), e.Path, "->", e.Target)
}
func (listEmitter) OnDevice(e ubireader.Event) {
	fmt.Println(color.YellowString("b/c"), e.Path, e.Major, e.Minor)
}
func (listEmitter) OnFifo(e ubireader.Event) { fmt.Println(color.MagentaString("p"), e.Path) }
func (listEmitter) OnSock(e ubireader.Event) { fmt.Println(color.MagentaString("s"), e.Path) }
func (listEmitter) OnHardlink(e ubireader.Event) {
	fmt.Println(color.GreenString("h"), e.Path, "->", e.TargetPath)
}
func (listEmitter) OnWarning(e ubireader.Event) {
	fmt.Fprintln(os.Stderr, color.RedString("warning"), e.WarningKind, e.Path, e.Detail)
}

func runList(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	opts, err := buildOptions()
	if err != nil {
		return err
	}

	return ubireader.Decode(f, opts, listEmitter{})
}
