package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRenderDOM(t *testing.T) {
	checked := true
	empty := ""
	nodes := []*DOMNode{
		{Role: "heading", Name: "Settings", Level: 1},
		{Role: "list", Children: []*DOMNode{
			{Role: "checkbox", Name: "Dark mode", Checked: &checked},
			{Role: "textbox", Name: "Username", Value: &empty, Disabled: true},
		}},
		{Tag: "div", ID: "app", Classes: []string{"shell", "dark"}},
	}

	out, err := renderDOM(nodes)
	require.NoError(t, err)
	assert.Contains(t, out, "- role: heading\n  name: Settings\n  level: 1\n")
	assert.Contains(t, out, "checked: true")
	assert.Contains(t, out, `value: ""`)
	assert.Contains(t, out, "classes: [shell, dark]")
	assert.NotContains(t, out, "href")

	var back []*DOMNode
	require.NoError(t, yaml.Unmarshal([]byte(out), &back))
	assert.Equal(t, nodes, back)
}

func TestRenderDOM_Empty(t *testing.T) {
	out, err := renderDOM(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}
