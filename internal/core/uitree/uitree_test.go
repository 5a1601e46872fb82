package uitree

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *Tree {
	return New(&Node{
		Attributes: Attributes{Type: "root", Bounds: Rect{0, 0, 1080, 2400}},
		Children: []*Node{
			{Attributes: Attributes{Type: "Button", ID: "ok", Text: "OK", Clickable: true, Enabled: true, Bounds: Rect{0, 0, 100, 50}}},
			{
				Attributes: Attributes{Type: "Column"},
				Children: []*Node{
					{Attributes: Attributes{Type: "Button", ID: "cancel", Text: "Cancel", Clickable: true, Bounds: Rect{0, 60, 100, 110}}},
				},
			},
		},
	})
}

func TestQuery(t *testing.T) {
	tree := sampleTree()

	buttons := tree.Query(Attrs{KeyType: "Button"})
	require.Len(t, buttons, 2)
	assert.Equal(t, "ok", buttons[0].ID)
	assert.Equal(t, "cancel", buttons[1].ID)

	// Every supplied key must match
	enabled := tree.Query(Attrs{KeyType: "Button", KeyEnabled: "true"})
	require.Len(t, enabled, 1)
	assert.Equal(t, "ok", enabled[0].ID)

	assert.Empty(t, tree.Query(Attrs{}))
	assert.Empty(t, tree.Query(nil))
	assert.Empty(t, tree.Query(Attrs{"unknown": "x"}))

	byBounds := tree.Query(Attrs{KeyBounds: "[0,60][100,110]"})
	require.Len(t, byBounds, 1)
	assert.Equal(t, "cancel", byBounds[0].ID)
}

func TestCount(t *testing.T) {
	assert.Equal(t, 4, sampleTree().Count())
	var empty *Tree
	assert.Equal(t, 0, empty.Count())
	assert.Nil(t, empty.Root())
}

func TestParseBounds(t *testing.T) {
	r, err := ParseBounds("[0, 0][1200, 2670]")
	require.NoError(t, err)
	assert.Equal(t, Rect{0, 0, 1200, 2670}, r)

	r, err = ParseBounds("[10,20][30,40]")
	require.NoError(t, err)
	x, y := r.Center()
	assert.Equal(t, 20, x)
	assert.Equal(t, 30, y)
	assert.Equal(t, 400, r.Area())
	assert.True(t, r.Contains(10, 40))
	assert.False(t, r.Contains(31, 30))

	_, err = ParseBounds("garbage")
	assert.Error(t, err)
}

func TestRectJSONForms(t *testing.T) {
	var r Rect
	require.NoError(t, json.Unmarshal([]byte(`"[1,2][3,4]"`), &r))
	assert.Equal(t, Rect{1, 2, 3, 4}, r)

	require.NoError(t, json.Unmarshal([]byte(`[[5,6],[7,8]]`), &r))
	assert.Equal(t, Rect{5, 6, 7, 8}, r)

	require.NoError(t, json.Unmarshal([]byte(`""`), &r))
	assert.True(t, r.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`[[1,2]]`), &r))
}

func TestAttributesDefaultsAndStringFlags(t *testing.T) {
	var a Attributes
	require.NoError(t, json.Unmarshal([]byte(`{"type":"Text","clickable":"true","focused":true,"bounds":"[0,0][10,10]"}`), &a))
	assert.Equal(t, "Text", a.Type)
	assert.True(t, a.Clickable)
	assert.True(t, a.Focused)
	assert.False(t, a.Enabled)
	assert.Equal(t, "", a.ID)
	assert.Equal(t, Rect{0, 0, 10, 10}, a.Bounds)
}

func TestLayoutJSONRoundTrip(t *testing.T) {
	tree := sampleTree()
	data, err := MarshalLayoutJSON(tree)
	require.NoError(t, err)

	parsed, err := ParseLayoutJSON(data)
	require.NoError(t, err)
	assert.Equal(t, tree.Count(), parsed.Count())
	if diff := cmp.Diff(tree.Root(), parsed.Root()); diff != "" {
		t.Errorf("layout round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseUIAutomatorXML(t *testing.T) {
	raw := `UI hierchary dumped to: /data/local/tmp/view.xml
<?xml version='1.0' encoding='UTF-8' standalone='yes' ?><hierarchy rotation="0">
<node index="0" text="" resource-id="" class="android.widget.FrameLayout" package="com.demo" content-desc="" checkable="false" checked="false" clickable="false" enabled="true" focusable="false" focused="false" scrollable="false" long-clickable="false" password="false" selected="false" bounds="[0,0][1080,2400]">
<node index="0" text="" resource-id="com.demo:id/search" class="android.widget.EditText" package="com.demo" content-desc="Search" checkable="false" checked="false" clickable="true" enabled="true" focusable="true" focused="true" scrollable="false" long-clickable="true" password="false" selected="false" bounds="[24,100][1056,200]" />
</node>
</hierarchy>`

	tree, err := ParseUIAutomatorXML(raw)
	require.NoError(t, err)
	assert.Equal(t, 2, tree.Count())

	edits := tree.Query(Attrs{KeyType: "android.widget.EditText", KeyFocused: "true"})
	require.Len(t, edits, 1)
	assert.Equal(t, "com.demo:id/search", edits[0].ID)
	assert.Equal(t, "Search", edits[0].Text)
	assert.True(t, edits[0].LongClickable)
	assert.Equal(t, Rect{24, 100, 1056, 200}, edits[0].Bounds)
}
