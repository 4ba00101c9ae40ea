package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/docshare/conduit/internal/models"
	"github.com/docshare/conduit/internal/tree"
)

// JSON prints v as indented JSON.
func JSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ChainTable prints resolved nodes root to leaf.
func ChainTable(w io.Writer, nodes []models.Node) {
	if len(nodes) == 0 {
		fmt.Fprintln(w, "No nodes resolved.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tKIND\tSIZE\tID")
	for _, n := range nodes {
		kind := "file"
		if n.IsDirectory {
			kind = "dir"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Path, kind, FormatSize(n.Size), n.ID)
	}
	tw.Flush()
}

// Tree prints breadth-first entries as an indented outline, children under
// their parent in the order they were visited.
func Tree(w io.Writer, entries []tree.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "Drive is empty.")
		return
	}

	children := make(map[string][]tree.Entry)
	var roots []tree.Entry
	for _, e := range entries {
		if e.ParentID == nil {
			roots = append(roots, e)
			continue
		}
		key := e.ParentID.String()
		children[key] = append(children[key], e)
	}

	type frame struct {
		entry tree.Entry
		depth int
	}
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{entry: roots[i]})
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := top.entry.Node
		name := n.Name
		if n.IsDirectory {
			name += "/"
		}
		fmt.Fprintf(w, "%s%s (%s)\n", strings.Repeat("  ", top.depth), name, FormatSize(n.Size))

		kids := children[n.ID.String()]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{entry: kids[i], depth: top.depth + 1})
		}
	}
}

// DriveDetail prints a drive's usage against its capacity.
func DriveDetail(w io.Writer, d models.Drive) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", d.Name)
	fmt.Fprintf(tw, "ID:\t%s\n", d.ID)
	fmt.Fprintf(tw, "Type:\t%s\n", d.Type)
	fmt.Fprintf(tw, "Used:\t%s\n", FormatSize(d.Used))
	if d.Capacity != nil {
		fmt.Fprintf(tw, "Capacity:\t%s\n", FormatSize(*d.Capacity))
		fmt.Fprintf(tw, "Available:\t%s\n", FormatSize(d.Available()))
	} else {
		fmt.Fprintf(tw, "Capacity:\tunlimited\n")
	}
	fmt.Fprintf(tw, "Created:\t%s\n", d.CreatedAt.Format(time.RFC3339))
	tw.Flush()
}

// FormatSize converts bytes to a human-readable string.
func FormatSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
