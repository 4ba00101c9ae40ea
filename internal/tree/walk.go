package tree

import (
	"errors"
	"fmt"

	"github.com/docshare/conduit/internal/models"
	"github.com/google/uuid"
)

var ErrDepthExceeded = errors.New("tree depth limit exceeded")

// ChildrenFunc lists the nodes directly contained by parentID.
type ChildrenFunc func(parentID uuid.UUID) ([]models.Node, error)

type Entry struct {
	Node     models.Node `json:"node"`
	ParentID *uuid.UUID  `json:"parentID,omitempty"`
	Depth    int         `json:"depth"`
}

// Walk visits roots and their descendants breadth-first with an explicit queue.
// Roots are depth 0. Descending below maxDepth fails with ErrDepthExceeded;
// maxDepth <= 0 means no limit. A node reachable twice is visited once.
func Walk(roots []models.Node, children ChildrenFunc, maxDepth int, visit func(Entry) error) error {
	queue := make([]Entry, 0, len(roots))
	for _, root := range roots {
		queue = append(queue, Entry{Node: root})
	}
	seen := make(map[uuid.UUID]bool, len(roots))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if seen[current.Node.ID] {
			continue
		}
		seen[current.Node.ID] = true

		if err := visit(current); err != nil {
			return err
		}
		if !current.Node.IsDirectory {
			continue
		}

		kids, err := children(current.Node.ID)
		if err != nil {
			return fmt.Errorf("listing children of %s: %w", current.Node.Path, err)
		}
		if len(kids) == 0 {
			continue
		}
		if maxDepth > 0 && current.Depth+1 > maxDepth {
			return fmt.Errorf("%w: %s has children below depth %d", ErrDepthExceeded, current.Node.Path, maxDepth)
		}

		parentID := current.Node.ID
		for _, kid := range kids {
			queue = append(queue, Entry{Node: kid, ParentID: &parentID, Depth: current.Depth + 1})
		}
	}
	return nil
}

// Collect runs Walk and returns every visited entry in visit order.
func Collect(roots []models.Node, children ChildrenFunc, maxDepth int) ([]Entry, error) {
	var entries []Entry
	err := Walk(roots, children, maxDepth, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// ChildNames maps each parent's path to the names of its children in visit order.
// Childless nodes are omitted.
func ChildNames(entries []Entry) map[string][]string {
	pathByID := make(map[uuid.UUID]string, len(entries))
	for _, e := range entries {
		pathByID[e.Node.ID] = e.Node.Path
	}

	out := make(map[string][]string)
	for _, e := range entries {
		if e.ParentID == nil {
			continue
		}
		parentPath := pathByID[*e.ParentID]
		out[parentPath] = append(out[parentPath], e.Node.Name)
	}
	return out
}
