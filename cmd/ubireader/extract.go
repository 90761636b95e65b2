package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/elektrischermoench/ubi-reader/pkg/ubireader"
)

var (
	flagIncludeGlob string
	flagExcludeGlob string
)

var extractCmd = &cobra.Command{
	Use:   "extract <image> <destination>",
	Short: "Decode a UBI/UBIFS image and write its contents to a host directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&flagIncludeGlob, "include", "", "only extract paths matching this glob")
	extractCmd.Flags().StringVar(&flagExcludeGlob, "exclude", "", "skip paths matching this glob")
}

// fsEmitter writes decoded entities to a host directory, the only part
// of this tool that performs filesystem side effects; the decode core
// never touches the host filesystem itself.
type fsEmitter struct {
	root    string
	include glob.Glob
	exclude glob.Glob

	firstPath map[string]string // decoded path -> host path, for hardlink resolution
}

func newFsEmitter(root string) (*fsEmitter, error) {
	e := &fsEmitter{root: root, firstPath: make(map[string]string)}

	if flagIncludeGlob != "" {
		g, err := glob.Compile(flagIncludeGlob, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling --include glob: %w", err)
		}
		e.include = g
	}
	if flagExcludeGlob != "" {
		g, err := glob.Compile(flagExcludeGlob, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling --exclude glob: %w", err)
		}
		e.exclude = g
	}

	return e, nil
}

func (e *fsEmitter) skip(path string) bool {
	if e.include != nil && !e.include.Match(path) {
		return true
	}
	if e.exclude != nil && e.exclude.Match(path) {
		return true
	}
	return false
}

func (e *fsEmitter) hostPath(path string) string {
	return filepath.Join(e.root, filepath.FromSlash(path))
}

func (e *fsEmitter) OnDir(ev ubireader.Event) {
	if e.skip(ev.Path) {
		return
	}
	if err := os.MkdirAll(e.hostPath(ev.Path), 0o755); err != nil {
		log.Errorf("mkdir %s: %v", ev.Path, err)
	}
}

func (e *fsEmitter) OnFile(ev ubireader.Event) {
	if e.skip(ev.Path) {
		return
	}
	host := e.hostPath(ev.Path)
	if err := os.MkdirAll(filepath.Dir(host), 0o755); err != nil {
		log.Errorf("mkdir for %s: %v", ev.Path, err)
		return
	}
	if err := os.WriteFile(host, ev.Body, 0o644); err != nil {
		log.Errorf("write %s: %v", ev.Path, err)
		return
	}
	e.firstPath[ev.Path] = host
}

func (e *fsEmitter) OnSymlink(ev ubireader.Event) {
	if e.skip(ev.Path) {
		return
	}
	host := e.hostPath(ev.Path)
	os.MkdirAll(filepath.Dir(host), 0o755)
	if err := os.Symlink(ev.Target, host); err != nil {
		log.Errorf("symlink %s: %v", ev.Path, err)
	}
}

func (e *fsEmitter) OnDevice(ev ubireader.Event) {
	if e.skip(ev.Path) {
		return
	}
	host := e.hostPath(ev.Path)
	os.MkdirAll(filepath.Dir(host), 0o755)
	dev := int(unix.Mkdev(ev.Major, ev.Minor))
	mode := uint32(unix.S_IFCHR)
	if ev.BlockDevice {
		mode = unix.S_IFBLK
	}
	if err := unix.Mknod(host, mode|0o600, dev); err != nil {
		log.Errorf("mknod %s: %v", ev.Path, err)
	}
}

func (e *fsEmitter) OnFifo(ev ubireader.Event) {
	if e.skip(ev.Path) {
		return
	}
	host := e.hostPath(ev.Path)
	os.MkdirAll(filepath.Dir(host), 0o755)
	if err := unix.Mkfifo(host, 0o600); err != nil {
		log.Errorf("mkfifo %s: %v", ev.Path, err)
	}
}

func (e *fsEmitter) OnSock(ev ubireader.Event) {
	if e.skip(ev.Path) {
		return
	}
	host := e.hostPath(ev.Path)
	os.MkdirAll(filepath.Dir(host), 0o755)
	if err := os.WriteFile(host, nil, 0o600); err != nil {
		log.Errorf("dummy socket file %s: %v", ev.Path, err)
	}
}

func (e *fsEmitter) OnHardlink(ev ubireader.Event) {
	if e.skip(ev.Path) {
		return
	}
	src, ok := e.firstPath[ev.TargetPath]
	if !ok {
		log.Warnf("hardlink %s -> %s: target not yet written", ev.Path, ev.TargetPath)
		return
	}
	host := e.hostPath(ev.Path)
	os.MkdirAll(filepath.Dir(host), 0o755)
	if err := os.Link(src, host); err != nil {
		log.Errorf("link %s: %v", ev.Path, err)
	}
}

func (e *fsEmitter) OnWarning(ev ubireader.Event) {
	log.Warnf("%v %s %s", ev.WarningKind, ev.Path, ev.Detail)
}

func runExtract(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	opts, err := buildOptions()
	if err != nil {
		return err
	}

	em, err := newFsEmitter(args[1])
	if err != nil {
		return err
	}

	return ubireader.Decode(f, opts, em)
}
