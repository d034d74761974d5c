package sandbox

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultContainerID is the element compiled code renders into.
const DefaultContainerID = "sandbox"

// fragmentTag marks a node whose children are spliced into its parent.
const fragmentTag = "#fragment"

// Node is a rendered element or text node. Text nodes have an empty Tag.
type Node struct {
	Tag      string            `json:"tag,omitempty"`
	Text     string            `json:"text,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []*Node           `json:"children,omitempty"`
}

// IsText reports whether n is a text node.
func (n *Node) IsText() bool {
	return n.Tag == ""
}

// Find returns the first node in document order with the given tag.
func (n *Node) Find(tag string) *Node {
	if n == nil {
		return nil
	}
	if n.Tag == tag {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(tag); found != nil {
			return found
		}
	}
	return nil
}

// TextContent concatenates every text node below n.
func (n *Node) TextContent() string {
	if n == nil {
		return ""
	}
	if n.IsText() {
		return n.Text
	}
	var b bytes.Buffer
	for _, c := range n.Children {
		b.WriteString(c.TextContent())
	}
	return b.String()
}

func (n *Node) clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Tag: n.Tag, Text: n.Text}
	if n.Attrs != nil {
		out.Attrs = make(map[string]string, len(n.Attrs))
		for k, v := range n.Attrs {
			out.Attrs[k] = v
		}
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, c.clone())
	}
	return out
}

// Unit is the single mounted execution artifact.
type Unit struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	MountedAt time.Time `json:"mounted_at"`
}

// Surface is the rendering target shared by the sandbox and its readers.
// At most one Unit is mounted at any time.
type Surface struct {
	mu         sync.RWMutex
	containers map[string]struct{}
	roots      map[string]*Node
	mounted    *Unit
	seq        uint64
}

// NewSurface creates a surface with the given containers. With no
// arguments the default container is registered.
func NewSurface(containerIDs ...string) *Surface {
	if len(containerIDs) == 0 {
		containerIDs = []string{DefaultContainerID}
	}
	s := &Surface{
		containers: make(map[string]struct{}, len(containerIDs)),
		roots:      make(map[string]*Node),
	}
	for _, id := range containerIDs {
		s.containers[id] = struct{}{}
	}
	return s
}

// HasContainer reports whether id names a render container.
func (s *Surface) HasContainer(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.containers[id]
	return ok
}

// Mount installs a new unit, replacing whatever was mounted.
func (s *Surface) Mount(id string) Unit {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()
	s.seq++
	u := Unit{ID: id, Seq: s.seq, MountedAt: time.Now()}
	s.mounted = &u
	return u
}

// Unmount removes the unit with the given id and clears its output. It
// reports whether anything was removed.
func (s *Surface) Unmount(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mounted == nil || s.mounted.ID != id {
		return false
	}
	s.clearLocked()
	return true
}

func (s *Surface) clearLocked() {
	s.mounted = nil
	for k := range s.roots {
		delete(s.roots, k)
	}
}

// Mounted returns the mounted unit or nil.
func (s *Surface) Mounted() *Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mounted == nil {
		return nil
	}
	u := *s.mounted
	return &u
}

// Units lists mounted units; the result has at most one element.
func (s *Surface) Units() []Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mounted == nil {
		return nil
	}
	return []Unit{*s.mounted}
}

func (s *Surface) render(containerID string, root *Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.containers[containerID]; !ok {
		return fmt.Errorf("unknown container %q", containerID)
	}
	if s.mounted == nil {
		return fmt.Errorf("render into %q with no mounted unit", containerID)
	}
	s.roots[containerID] = root
	return nil
}

func (s *Surface) clear(containerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roots, containerID)
}

// Root returns a copy of the tree rendered into containerID, or nil.
func (s *Surface) Root(containerID string) *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roots[containerID].clone()
}

// HTML serializes the container and its rendered content.
func (s *Surface) HTML(containerID string) string {
	root := s.Root(containerID)

	container := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "id", Val: containerID}},
	}
	if root != nil {
		for _, c := range toHTML(root) {
			container.AppendChild(c)
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, container); err != nil {
		return ""
	}
	return buf.String()
}

// toHTML converts n into html nodes. Fragments expand to their children.
func toHTML(n *Node) []*html.Node {
	if n.IsText() {
		return []*html.Node{{Type: html.TextNode, Data: n.Text}}
	}

	var children []*html.Node
	for _, c := range n.Children {
		children = append(children, toHTML(c)...)
	}
	if n.Tag == fragmentTag {
		return children
	}

	el := &html.Node{
		Type:     html.ElementNode,
		Data:     n.Tag,
		DataAtom: atom.Lookup([]byte(n.Tag)),
	}
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		el.Attr = append(el.Attr, html.Attribute{Key: k, Val: n.Attrs[k]})
	}
	for _, c := range children {
		el.AppendChild(c)
	}
	return []*html.Node{el}
}

// nodeFromValue converts the plain tree produced by the prelude's resolver.
func nodeFromValue(v interface{}) *Node {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return &Node{Text: val}
	case map[string]interface{}:
		tag, _ := val["tag"].(string)
		if tag == "" {
			return nil
		}
		n := &Node{Tag: tag}
		if attrs, ok := val["attrs"].(map[string]interface{}); ok && len(attrs) > 0 {
			n.Attrs = make(map[string]string, len(attrs))
			for k, a := range attrs {
				n.Attrs[k] = fmt.Sprint(a)
			}
		}
		if children, ok := val["children"].([]interface{}); ok {
			for _, c := range children {
				if child := nodeFromValue(c); child != nil {
					n.Children = append(n.Children, child)
				}
			}
		}
		return n
	default:
		return &Node{Text: fmt.Sprint(val)}
	}
}
