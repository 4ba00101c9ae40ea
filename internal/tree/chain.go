package tree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/docshare/conduit/internal/models"
	"github.com/google/uuid"
)

const Separator = "/"

var ErrInvalidPath = errors.New("invalid file path")

// SplitPath breaks a logical upload path into its ordered segments. Surrounding
// separators are ignored and whitespace around every segment is trimmed, so
// "a/ b /c.txt" and " a/b/c.txt" give the same segments. Empty, blank, "." and
// ".." segments are rejected.
func SplitPath(filePath string) ([]string, error) {
	trimmed := strings.Trim(strings.TrimSpace(filePath), Separator)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %q has no segments", ErrInvalidPath, filePath)
	}

	segments := strings.Split(trimmed, Separator)
	for i, segment := range segments {
		segment = strings.TrimSpace(segment)
		switch segment {
		case "", ".", "..":
			return nil, fmt.Errorf("%w: segment %d of %q is %q", ErrInvalidPath, i, filePath, segments[i])
		}
		segments[i] = segment
	}
	return segments, nil
}

// Chain is the scratch state of one resolution: the nodes resolved so far,
// root to leaf, hanging off an optional anchor node. It is never shared.
type Chain struct {
	Anchor *models.Node
	Nodes  []models.Node
}

func NewChain(anchor *models.Node) *Chain {
	return &Chain{Anchor: anchor}
}

// Prefix is the path the next segment is appended to.
func (c *Chain) Prefix() string {
	if last := c.Last(); last != nil {
		return last.Path
	}
	return ""
}

func (c *Chain) PathFor(name string) string {
	return c.Prefix() + Separator + name
}

// Last returns the most recently resolved node, falling back to the anchor.
func (c *Chain) Last() *models.Node {
	if len(c.Nodes) > 0 {
		return &c.Nodes[len(c.Nodes)-1]
	}
	return c.Anchor
}

func (c *Chain) Push(node models.Node) {
	c.Nodes = append(c.Nodes, node)
}

func (c *Chain) Len() int {
	return len(c.Nodes)
}

func (c *Chain) Empty() bool {
	return len(c.Nodes) == 0
}

// Root is the first resolved segment, not the anchor.
func (c *Chain) Root() *models.Node {
	if len(c.Nodes) == 0 {
		return nil
	}
	return &c.Nodes[0]
}

func (c *Chain) Leaf() *models.Node {
	if len(c.Nodes) == 0 {
		return nil
	}
	return &c.Nodes[len(c.Nodes)-1]
}

func (c *Chain) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(c.Nodes))
	for i, n := range c.Nodes {
		ids[i] = n.ID
	}
	return ids
}

func (c *Chain) Paths() []string {
	paths := make([]string, len(c.Nodes))
	for i, n := range c.Nodes {
		paths[i] = n.Path
	}
	return paths
}
