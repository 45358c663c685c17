package printer

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/vista/internal/config"
	"github.com/dyluth/vista/internal/resolver"
	"github.com/dyluth/vista/internal/surface"
	"github.com/dyluth/vista/pkg/views"
)

// PluginRow is one line of the plugin table.
type PluginRow struct {
	Plugin config.Plugin
	// Err is the start failure, if any. Nil with Status empty prints "-".
	Err    error
	Status string
}

// FormatPlugins writes plugins as a table and returns the number of rows.
func FormatPlugins(w io.Writer, rows []PluginRow, instance string) int {
	if len(rows) == 0 {
		fmt.Fprintf(w, "No plugins found for instance '%s'\n", instance)
		return 0
	}

	fmt.Fprintf(w, "Plugins for instance '%s':\n\n", instance)
	fmt.Fprintf(w, "%-20s %-8s %-30s %-16s %s\n", "ID", "KIND", "SOURCE", "SELECTOR", "STATUS")
	fmt.Fprintf(w, "%-20s %-8s %-30s %-16s %s\n",
		"--------------------", "--------", "------------------------------", "----------------", "--------")

	for _, r := range rows {
		fmt.Fprintf(w, "%-20s %-8s %-30s %-16s %s\n",
			truncate(r.Plugin.ID, 20),
			r.Plugin.Kind,
			truncate(formatSource(r.Plugin), 30),
			truncate(formatSelector(r.Plugin.DocumentSelector), 16),
			formatStatus(r),
		)
	}

	noun := "plugin"
	if len(rows) != 1 {
		noun = "plugins"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(rows), noun)
	return len(rows)
}

func formatSource(p config.Plugin) string {
	switch {
	case p.Image != "":
		return "image:" + p.Image
	case len(p.Command) > 0:
		return strings.Join(p.Command, " ")
	default:
		return "external"
	}
}

func formatSelector(patterns []string) string {
	if len(patterns) == 0 {
		return "*"
	}
	return strings.Join(patterns, ",")
}

func formatStatus(r PluginRow) string {
	if r.Err != nil {
		return "failed: " + r.Err.Error()
	}
	if r.Status == "" {
		return "-"
	}
	return r.Status
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// FormatSnapshots writes snapshots as a table with short ids, the view
// they belong to, their size and age. It returns the number of rows.
func FormatSnapshots(w io.Writer, snaps []surface.Snapshot, docURI string, now time.Time) int {
	if len(snaps) == 0 {
		fmt.Fprintf(w, "No snapshots found for %s\n", docURI)
		return 0
	}

	fmt.Fprintf(w, "Snapshots of %s:\n\n", docURI)
	fmt.Fprintf(w, "%-10s %-20s %-20s %-8s %s\n", "ID", "PLUGIN", "VIEW", "SIZE", "AGE")
	fmt.Fprintf(w, "%-10s %-20s %-20s %-8s %s\n",
		"----------", "--------------------", "--------------------", "--------", "--------")

	for _, s := range snaps {
		fmt.Fprintf(w, "%-10s %-20s %-20s %-8s %s\n",
			resolver.ShortID(s.ID),
			truncate(s.Key.PluginID, 20),
			truncate(s.Key.ViewID, 20),
			formatSize(len(s.Data)),
			formatAge(now.Sub(s.CreatedAt)),
		)
	}

	noun := "snapshot"
	if len(snaps) != 1 {
		noun = "snapshots"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(snaps), noun)
	return len(snaps)
}

type snapshotLine struct {
	ID        string    `json:"id"`
	DocURI    string    `json:"docUri"`
	Key       views.Key `json:"key"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// FormatSnapshotsJSONL writes one JSON object per snapshot. The data is
// replaced by its size.
func FormatSnapshotsJSONL(w io.Writer, snaps []surface.Snapshot) error {
	enc := json.NewEncoder(w)
	for _, s := range snaps {
		line := snapshotLine{ID: s.ID, DocURI: s.DocURI, Key: s.Key, Size: len(s.Data), CreatedAt: s.CreatedAt}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fM", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fK", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
