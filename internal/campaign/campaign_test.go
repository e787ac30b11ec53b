package campaign

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sheet = `Campaign ID,Campaign Date,Campaign Name,Campaign Short Description,Premium Name,Campaign Group,Link ID,Link Type,Link,Owner
C3,2023-03-01,Spring,Spring appeal,Devotional,Appeals,L1,Landing,/give,ann
C1,2023-01-10,New Year,Year start,Calendar,Appeals,L1,Landing,/give,bob
C2,1/15/2023,Radio,Radio spot,,Broadcast,L2,Redirect,/radio,bob
C4,2023-02-01,Winter,"Cold, snowy",Book,Appeals,L1,Landing,/give,ann
`

var today = time.Date(2023, 6, 30, 15, 4, 5, 0, time.UTC)

func TestClean(t *testing.T) {
	var out bytes.Buffer
	n, err := Clean(strings.NewReader(sheet), &out, today)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	want := `Campaign ID,Campaign Date,Campaign Name,Campaign Short Description,Premium Name,Campaign Group,Link ID,Link Type,Link,End Date
C3,2023-03-01,Spring,Spring appeal,Devotional,Appeals,L1,Landing,/give,2023-06-30
C1,2023-01-10,New Year,Year start,Calendar,Appeals,L1,Landing,/give,2023-01-31
C2,2023-01-15,Radio,Radio spot,,Broadcast,L2,Redirect,/radio,2023-06-30
C4,2023-02-01,Winter,"Cold, snowy",Book,Appeals,L1,Landing,/give,2023-02-28
`
	assert.Equal(t, want, out.String())
}

func TestAddEndDatesSameDay(t *testing.T) {
	d := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	cs := []Campaign{
		{ID: "a", Date: d, Link: "/x"},
		{ID: "b", Date: d, Link: "/x"},
	}
	AddEndDates(cs, today)

	// Stable order: the first keeps the earlier slot
	assert.Equal(t, "2023-04-30", cs[0].EndDate.Format(dateLayout))
	assert.Equal(t, "2023-06-30", cs[1].EndDate.Format(dateLayout))
}

func TestAddEndDatesInterleavedLinks(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2023, 3, d, 0, 0, 0, 0, time.UTC) }
	cs := []Campaign{
		{ID: "a1", Date: day(1), Link: "/a"},
		{ID: "b1", Date: day(5), Link: "/b"},
		{ID: "a2", Date: day(10), Link: "/a"},
		{ID: "b2", Date: day(20), Link: "/b"},
	}
	AddEndDates(cs, today)

	assert.Equal(t, "2023-03-09", cs[0].EndDate.Format(dateLayout))
	assert.Equal(t, "2023-03-19", cs[1].EndDate.Format(dateLayout))
	assert.Equal(t, "2023-06-30", cs[2].EndDate.Format(dateLayout))
	assert.Equal(t, "2023-06-30", cs[3].EndDate.Format(dateLayout))
}

func TestReadMissingColumn(t *testing.T) {
	_, err := Read(strings.NewReader("Campaign ID,Campaign Date\nC1,2023-01-01\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestReadBadDate(t *testing.T) {
	bad := strings.Replace(sheet, "1/15/2023", "someday", 1)
	_, err := Read(strings.NewReader(bad))
	assert.ErrorContains(t, err, "line 4")
}

func TestCleanFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "Web_Campaign_Data.csv")
	out := filepath.Join(dir, "clean", "Web_Campaign_Data_Cleaned.csv")
	require.NoError(t, os.WriteFile(in, []byte(sheet), 0644))

	n, err := CleanFile(in, out, today)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), strings.Join(Columns, ",")+"\n"))
}
