package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleNodes() []Node {
	return []Node{
		{ID: "root", Name: "Settings", Type: TypeNavigation},
		{ID: "policy", Name: "Password Policy", Parent: "root", Type: TypeCategory, Category: "policy"},
		{ID: "ldap", Name: "LDAP", Parent: "root", Type: TypeNavigation},
		{ID: "ldap-p1", Name: "default", Parent: "ldap", Type: TypeProfile, Profile: "default", Category: "ldap"},
		{ID: "ldap-p1-conn", Name: "Connection", Parent: "ldap-p1", Type: TypeCategory, Category: "ldap.conn"},
		{ID: "orphan", Name: "Orphaned", Parent: "missing", Type: TypeCategory},
	}
}

func ids(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestBuild(t *testing.T) {
	tree := Build(sampleNodes())

	assert.Equal(t, 6, tree.Len())
	roots := tree.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, "root", roots[0].ID)
	assert.Equal(t, "orphan", roots[1].ID)

	children := tree.Children("root")
	require.Len(t, children, 2)
	assert.Equal(t, "policy", children[0].ID)
	assert.Equal(t, "ldap", children[1].ID)
}

func TestBuild_CyclesAndDuplicates(t *testing.T) {
	tree := Build([]Node{
		{ID: "a", Parent: "b"},
		{ID: "b", Parent: "a"},
		{ID: "c", Parent: "c"},
		{ID: "a", Name: "dup"},
		{ID: ""},
	})

	assert.Equal(t, 3, tree.Len())
	n, ok := tree.Node("a")
	require.True(t, ok)
	assert.NotEqual(t, "dup", n.Name)

	// Every node is reachable from a root.
	rows := tree.Visible(NewExpanded([]string{"a", "b", "c"}))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids(rows))
}

func TestVisible(t *testing.T) {
	tree := Build(sampleNodes())

	rows := tree.Visible(Expanded{})
	assert.Equal(t, []string{"root", "orphan"}, ids(rows))
	assert.True(t, rows[0].HasChildren)
	assert.False(t, rows[0].Expanded)

	expanded := NewExpanded([]string{"root", "ldap"})
	rows = tree.Visible(expanded)
	assert.Equal(t, []string{"root", "policy", "ldap", "ldap-p1", "orphan"}, ids(rows))
	assert.Equal(t, 2, rows[3].Depth)
}

func TestToggleAndIDs(t *testing.T) {
	e := Expanded{}
	assert.True(t, e.Toggle("b"))
	assert.True(t, e.Toggle("a"))
	assert.Equal(t, []string{"a", "b"}, e.IDs())
	assert.False(t, e.Toggle("a"))
	assert.Equal(t, []string{"b"}, e.IDs())
}

func TestExpandPath(t *testing.T) {
	tree := Build(sampleNodes())
	e := Expanded{}
	e.ExpandPath(tree, "ldap-p1-conn")

	rows := tree.Visible(e)
	assert.Contains(t, ids(rows), "ldap-p1-conn")
	assert.False(t, e["ldap-p1-conn"])
}

func TestPathAndProfile(t *testing.T) {
	tree := Build(sampleNodes())

	path := tree.Path("ldap-p1-conn")
	require.Len(t, path, 4)
	assert.Equal(t, "root", path[0].ID)
	assert.Equal(t, "ldap-p1-conn", path[3].ID)

	assert.Equal(t, "default", tree.ProfileOf("ldap-p1-conn"))
	assert.Equal(t, "", tree.ProfileOf("policy"))
	assert.Nil(t, tree.Path("nope"))
}

func TestFilterKeepsAncestors(t *testing.T) {
	tree := Build(sampleNodes())

	rows := tree.Filter("conn")
	assert.Equal(t, []string{"root", "ldap", "ldap-p1", "ldap-p1-conn"}, ids(rows))
	assert.True(t, rows[3].Matched)
	assert.False(t, rows[0].Matched)
	assert.NotEmpty(t, rows[3].MatchedIdx)
	assert.Equal(t, 3, rows[3].Depth)

	assert.Nil(t, tree.Filter(""))
	assert.Nil(t, tree.Filter("zzzz"))
}

func TestSelectable(t *testing.T) {
	assert.True(t, Node{Type: TypeCategory}.Selectable())
	assert.False(t, Node{Type: TypeNavigation}.Selectable())
}

func TestLocate(t *testing.T) {
	tree := Build(sampleNodes())

	n, ok := tree.Locate("policy", "")
	require.True(t, ok)
	assert.Equal(t, "policy", n.ID)

	n, ok = tree.Locate("ldap", "default")
	require.True(t, ok)
	assert.Equal(t, "ldap-p1", n.ID)

	_, ok = tree.Locate("ldap", "other")
	assert.False(t, ok)
	_, ok = tree.Locate("nope", "")
	assert.False(t, ok)
}
