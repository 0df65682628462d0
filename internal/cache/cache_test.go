package cache

import (
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	c := New()
	k := Key{Setting: "a"}

	_, ok := c.Get(k)
	assert.False(t, ok)

	c.Put(k, Entry{Value: json.RawMessage(`8`), IsDefault: true})
	e, ok := c.Get(k)
	require.True(t, ok)
	assert.JSONEq(t, `8`, string(e.Value))
	assert.False(t, e.Modified())
}

func TestProfileQualified(t *testing.T) {
	c := New()
	c.Put(Key{Setting: "ldap.url", Profile: "p1"}, Entry{Value: json.RawMessage(`"a"`)})
	c.Put(Key{Setting: "ldap.url", Profile: "p2"}, Entry{Value: json.RawMessage(`"b"`)})

	e1, _ := c.Get(Key{Setting: "ldap.url", Profile: "p1"})
	e2, _ := c.Get(Key{Setting: "ldap.url", Profile: "p2"})
	assert.Equal(t, `"a"`, string(e1.Value))
	assert.Equal(t, `"b"`, string(e2.Value))
	_, ok := c.Get(Key{Setting: "ldap.url"})
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	c := New()
	k := Key{Setting: "a"}
	c.Put(k, Entry{Value: json.RawMessage(`"x"`)})

	e, _ := c.Get(k)
	e.Value[1] = 'y'

	again, _ := c.Get(k)
	assert.Equal(t, `"x"`, string(again.Value))
}

func TestSetDefaultAndDelete(t *testing.T) {
	c := New()
	k := Key{Setting: "a"}
	assert.False(t, c.SetDefault(k, false))

	c.Put(k, Entry{Value: json.RawMessage(`1`), IsDefault: true})
	assert.True(t, c.SetDefault(k, false))
	e, _ := c.Get(k)
	assert.True(t, e.Modified())

	c.Delete(k)
	assert.Equal(t, 0, c.Len())
}

func TestModifiedKeys(t *testing.T) {
	c := New()
	c.Put(Key{Setting: "a"}, Entry{IsDefault: false})
	c.Put(Key{Setting: "b"}, Entry{IsDefault: true})
	c.Put(Key{Setting: "c"}, Entry{IsDefault: false})
	c.Put(Key{Setting: "d", Profile: "p"}, Entry{IsDefault: false})

	got := c.ModifiedKeys("")
	sort.Strings(got)
	assert.Equal(t, []string{"a", "c"}, got)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := Key{Setting: "k"}
			c.Put(k, Entry{Value: json.RawMessage(`1`)})
			c.Get(k)
			c.SetDefault(k, i%2 == 0)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}
