package table

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven/analytics-sync/internal/flatten"
)

func TestWriteCSVUnionHeader(t *testing.T) {
	a := flatten.NewRow()
	a.Set("page", flatten.String("/home"))
	a.Set("sessions", flatten.Int(42))
	b := flatten.NewRow()
	b.Set("page", flatten.String("/give, now"))
	b.Set("bounceRate", flatten.Float(1000))

	var out strings.Builder
	require.NoError(t, WriteCSV(&out, []*flatten.Row{a, b}))

	assert.Equal(t,
		"page,sessions,bounceRate\n"+
			"/home,42,\n"+
			"\"/give, now\",,1000.0\n",
		out.String())
}

func TestWriteCSVEmpty(t *testing.T) {
	data, err := EncodeCSV(nil)
	require.NoError(t, err)
	assert.Equal(t, "\n", string(data))
}
