package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/wudi/docseal/observability"
)

func newWatchCmd(a *app) *cobra.Command {
	var regions regionFlags
	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Hash files as they appear in a directory",
		Long:  `Watches DIR and prints one JSON line per created or written file until interrupted.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := regions.parse(); err != nil {
				return err
			}
			return a.watch(cmd.Context(), args[0], &regions, cmd.OutOrStdout())
		},
	}
	regions.register(cmd)
	return cmd
}

func (a *app) watch(ctx context.Context, dir string, regions *regionFlags, w io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	a.log.Info("watching", observability.String("dir", dir))

	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.log.Warn("watch error", observability.Error("error", err))
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			path, ok := fileToHash(event)
			if !ok {
				continue
			}
			line := a.hashLine(ctx, path, regions)
			if err := enc.Encode(line); err != nil {
				return err
			}
		}
	}
}

// hashLine never fails; errors are reported in the line itself.
func (a *app) hashLine(ctx context.Context, path string, regions *regionFlags) *hashOutput {
	sig, stamp, _ := regions.parse()
	out, err := a.hashFile(ctx, path, "", sig, stamp, false)
	if out == nil {
		out = &hashOutput{}
	}
	out.File = path
	if err != nil {
		out.Error = err.Error()
		a.log.Warn("hash failed", observability.String("file", path), observability.Error("error", err))
	}
	return out
}

// fileToHash reports whether event concerns a visible regular file whose
// content may have changed.
func fileToHash(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return "", false
	}
	info, err := os.Stat(event.Name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return event.Name, true
}
