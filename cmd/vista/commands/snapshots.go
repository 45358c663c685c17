package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dyluth/vista/internal/printer"
	"github.com/dyluth/vista/internal/resolver"
	"github.com/dyluth/vista/internal/surface"
	"github.com/dyluth/vista/internal/timespec"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	snapshotsOutput string
	snapshotsSince  string
	snapshotsUntil  string
	snapshotsPlugin string
	snapshotsFile   string
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots FILE [SNAPSHOT_ID]",
	Short: "List or extract snapshots taken by renderers",
	Long: `Renderers can send snapshots of their views, such as exported images.
vista keeps them in Redis per document.

List Mode (no SNAPSHOT_ID):
  Shows the snapshots of FILE, oldest first.

Get Mode (with SNAPSHOT_ID):
  Writes the snapshot data to stdout, or to --file. The id may be the short
  form shown in the list.

Examples:
  # Snapshots of the last hour
  vista snapshots specs/app.sysl --since=1h

  # Only snapshots of one plugin's views, as JSONL
  vista snapshots specs/app.sysl --plugin=diagrams -o jsonl

  # Save a snapshot to disk
  vista snapshots specs/app.sysl QRSTUVWX --file=overview.svg`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSnapshots,
}

func init() {
	snapshotsCmd.Flags().StringVarP(&snapshotsOutput, "output", "o", "default", "Output format: default or jsonl (list mode only)")
	snapshotsCmd.Flags().StringVar(&snapshotsSince, "since", "", "Show snapshots taken after time (duration or RFC3339)")
	snapshotsCmd.Flags().StringVar(&snapshotsUntil, "until", "", "Show snapshots taken before time (duration or RFC3339)")
	snapshotsCmd.Flags().StringVar(&snapshotsPlugin, "plugin", "", "Show snapshots of this plugin's views only")
	snapshotsCmd.Flags().StringVarP(&snapshotsFile, "file", "f", "", "Write the snapshot to this file (get mode only)")

	rootCmd.AddCommand(snapshotsCmd)
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	isGetMode := len(args) > 1
	if !isGetMode && snapshotsOutput != "default" && snapshotsOutput != "jsonl" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", snapshotsOutput),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	now := time.Now()
	window, err := timespec.ParseRange(snapshotsSince, snapshotsUntil, now)
	if err != nil {
		return printer.Error("invalid time filter", err.Error(), []string{"Use a duration like 1h30m or a time like 2025-10-29T13:00:00Z"})
	}

	_, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}
	docURI, err := documentURI(args[0])
	if err != nil {
		return err
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", cfg.Redis.URL),
			map[string]string{"Instance": cfg.Instance},
			[]string{"Start Redis, or point REDIS_URL at the server vista run uses"},
		)
	}

	store, err := surface.NewSnapshotStore(rdb, cfg.Instance)
	if err != nil {
		return err
	}

	if isGetMode {
		return getSnapshot(ctx, cmd, store, docURI, args[1])
	}

	all, err := store.List(ctx, docURI)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}
	snaps := all[:0]
	for _, s := range all {
		if !window.Contains(s.CreatedAt) {
			continue
		}
		if snapshotsPlugin != "" && s.Key.PluginID != snapshotsPlugin {
			continue
		}
		snaps = append(snaps, s)
	}

	if snapshotsOutput == "jsonl" {
		return printer.FormatSnapshotsJSONL(cmd.OutOrStdout(), snaps)
	}
	printer.FormatSnapshots(cmd.OutOrStdout(), snaps, docURI, now)
	return nil
}

func getSnapshot(ctx context.Context, cmd *cobra.Command, store *surface.SnapshotStore, docURI, shortID string) error {
	id, err := resolver.ResolveSnapshotID(ctx, store, docURI, shortID)
	if err != nil {
		var amb *resolver.AmbiguousError
		switch {
		case resolver.IsNotFoundError(err):
			return printer.Error(
				fmt.Sprintf("snapshot '%s' not found", shortID),
				fmt.Sprintf("No snapshot of %s has that id.", docURI),
				[]string{fmt.Sprintf("List the snapshots:\n  vista snapshots %s", docURI)},
			)
		case errors.As(err, &amb):
			return printer.Error("ambiguous snapshot id", resolver.FormatAmbiguousError(amb), nil)
		default:
			return printer.Error("invalid snapshot id", err.Error(), nil)
		}
	}

	snap, err := store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	if snapshotsFile != "" {
		if err := os.WriteFile(snapshotsFile, snap.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		printer.Success("Wrote snapshot %s to %s\n", resolver.ShortID(id), snapshotsFile)
		return nil
	}

	_, err = cmd.OutOrStdout().Write(snap.Data)
	return err
}
