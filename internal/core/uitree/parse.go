package uitree

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
)

type layoutNode struct {
	Attributes Attributes `json:"attributes"`
	Children   []*Node    `json:"children"`
}

// MarshalJSON writes the dumpLayout form {"attributes":{...},"children":[...]}.
func (n *Node) MarshalJSON() ([]byte, error) {
	children := n.Children
	if children == nil {
		children = []*Node{}
	}
	return json.Marshal(layoutNode{Attributes: n.Attributes, Children: children})
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var ln layoutNode
	if err := json.Unmarshal(data, &ln); err != nil {
		return err
	}
	n.Attributes = ln.Attributes
	n.Children = nil
	if len(ln.Children) > 0 {
		n.Children = ln.Children
	}
	return nil
}

// ParseLayoutJSON parses a HarmonyOS dumpLayout document. Persisted trees use
// the same layout.
func ParseLayoutJSON(data []byte) (*Tree, error) {
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse layout JSON: %w", err)
	}
	return New(&root), nil
}

func MarshalLayoutJSON(t *Tree) ([]byte, error) {
	if t == nil || t.Root() == nil {
		return nil, fmt.Errorf("cannot marshal an empty tree")
	}
	return json.MarshalIndent(t.Root(), "", "  ")
}

type xmlNode struct {
	Text          string    `xml:"text,attr"`
	ResourceID    string    `xml:"resource-id,attr"`
	Class         string    `xml:"class,attr"`
	ContentDesc   string    `xml:"content-desc,attr"`
	Checkable     string    `xml:"checkable,attr"`
	Checked       string    `xml:"checked,attr"`
	Clickable     string    `xml:"clickable,attr"`
	Enabled       string    `xml:"enabled,attr"`
	Focused       string    `xml:"focused,attr"`
	LongClickable string    `xml:"long-clickable,attr"`
	Selected      string    `xml:"selected,attr"`
	Bounds        string    `xml:"bounds,attr"`
	Nodes         []xmlNode `xml:"node"`
}

type xmlHierarchy struct {
	XMLName xml.Name  `xml:"hierarchy"`
	Nodes   []xmlNode `xml:"node"`
}

// ParseUIAutomatorXML parses an Android `uiautomator dump` document. Output
// may carry shell noise before the XML declaration or after the last tag.
func ParseUIAutomatorXML(raw string) (*Tree, error) {
	if i := strings.Index(raw, "<?xml"); i != -1 {
		raw = raw[i:]
	} else if i := strings.Index(raw, "<hierarchy"); i != -1 {
		raw = raw[i:]
	}
	if i := strings.LastIndex(raw, ">"); i != -1 {
		raw = raw[:i+1]
	}

	var h xmlHierarchy
	if err := xml.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("failed to parse UI XML (length: %d): %w", len(raw), err)
	}
	if len(h.Nodes) == 0 {
		return nil, fmt.Errorf("UI XML has no nodes")
	}

	if len(h.Nodes) == 1 {
		return New(convertXML(h.Nodes[0])), nil
	}
	root := &Node{Attributes: Attributes{Type: "hierarchy", Enabled: true}}
	for _, n := range h.Nodes {
		root.Children = append(root.Children, convertXML(n))
	}
	return New(root), nil
}

func convertXML(x xmlNode) *Node {
	text := x.Text
	if text == "" {
		text = x.ContentDesc
	}
	bounds, _ := ParseBounds(x.Bounds)
	n := &Node{Attributes: Attributes{
		Type:          x.Class,
		ID:            x.ResourceID,
		Text:          text,
		Bounds:        bounds,
		Clickable:     x.Clickable == "true",
		LongClickable: x.LongClickable == "true",
		Checkable:     x.Checkable == "true",
		Checked:       x.Checked == "true",
		Selected:      x.Selected == "true",
		Enabled:       x.Enabled == "true",
		Focused:       x.Focused == "true",
	}}
	for _, c := range x.Nodes {
		n.Children = append(n.Children, convertXML(c))
	}
	return n
}
