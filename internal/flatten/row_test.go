package flatten

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowKeepsInsertionOrder(t *testing.T) {
	r := NewRow()
	r.Set("z", Int(1))
	r.Set("a", String("x"))
	r.Set("z", Int(2))

	assert.Equal(t, []string{"z", "a"}, r.Columns())
	v, ok := r.Get("z")
	require.True(t, ok)
	assert.Equal(t, Int(2), v)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRowMarshalJSON(t *testing.T) {
	r := NewRow()
	r.Set("page", String("/home"))
	r.Set("sessions", Int(42))
	r.Set("bounceRate", Float(12.5))

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"page":"/home","sessions":42,"bounceRate":12.5}`, string(data))
}

func TestColumnsUnionFirstSeen(t *testing.T) {
	a := NewRow()
	a.Set("page", String("/a"))
	a.Set("sessions", Int(1))
	b := NewRow()
	b.Set("device", String("mobile"))
	b.Set("page", String("/b"))

	assert.Equal(t, []string{"page", "sessions", "device"}, Columns([]*Row{a, b}))
}

func TestValueText(t *testing.T) {
	assert.Equal(t, "42", Int(42).Text())
	assert.Equal(t, "1000.0", Float(1000).Text())
	assert.Equal(t, "3.5", Float(3.5).Text())
	assert.Equal(t, "/home", String("/home").Text())
	assert.Equal(t, "", Value{}.Text())
	assert.True(t, Value{}.IsNull())
}
