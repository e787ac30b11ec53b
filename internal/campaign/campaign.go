// Package campaign fills in campaign end dates for the web campaign sheet.
// Campaigns that share a landing link run until the day before the next
// campaign on that link starts; every other campaign is still running.
// Links are resolved independently, so an end date never comes from a
// campaign on a different link, even when duplicated links interleave by date.
package campaign

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Columns is the output column order.
var Columns = []string{
	"Campaign ID", "Campaign Date", "Campaign Name", "Campaign Short Description",
	"Premium Name", "Campaign Group", "Link ID", "Link Type", "Link", "End Date",
}

var inputLayouts = []string{
	dateLayout,
	"2006-01-02 15:04:05",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
}

// ErrMissingColumn is returned when the input lacks a required column.
var ErrMissingColumn = errors.New("missing column")

// Campaign is one row of the campaign sheet.
type Campaign struct {
	ID               string
	Date             time.Time
	Name             string
	ShortDescription string
	PremiumName      string
	Group            string
	LinkID           string
	LinkType         string
	Link             string
	EndDate          time.Time
}

func (c Campaign) record() []string {
	return []string{
		c.ID, c.Date.Format(dateLayout), c.Name, c.ShortDescription,
		c.PremiumName, c.Group, c.LinkID, c.LinkType, c.Link, c.EndDate.Format(dateLayout),
	}
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// Read parses the campaign sheet. Columns are matched by header name and
// unknown columns are ignored.
func Read(r io.Reader) ([]Campaign, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range Columns[:len(Columns)-1] {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, col)
		}
	}

	var out []Campaign
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(col string) string {
			if i := idx[col]; i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		date, err := parseDate(get("Campaign Date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, Campaign{
			ID:               get("Campaign ID"),
			Date:             date,
			Name:             get("Campaign Name"),
			ShortDescription: get("Campaign Short Description"),
			PremiumName:      get("Premium Name"),
			Group:            get("Campaign Group"),
			LinkID:           get("Link ID"),
			LinkType:         get("Link Type"),
			Link:             get("Link"),
		})
	}
	return out, nil
}

// AddEndDates sets EndDate on every campaign in place. Campaigns sharing a
// Link are ordered by date and each ends the day before its successor
// starts; the latest one per link and campaigns with a unique link end today.
func AddEndDates(campaigns []Campaign, today time.Time) {
	y, m, d := today.Date()
	todayDate := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	byLink := make(map[string][]int)
	for i, c := range campaigns {
		byLink[c.Link] = append(byLink[c.Link], i)
	}

	for _, idxs := range byLink {
		sort.SliceStable(idxs, func(a, b int) bool {
			return campaigns[idxs[a]].Date.Before(campaigns[idxs[b]].Date)
		})
		for n, i := range idxs {
			if n+1 < len(idxs) {
				campaigns[i].EndDate = campaigns[idxs[n+1]].Date.AddDate(0, 0, -1)
				continue
			}
			campaigns[i].EndDate = todayDate
		}
	}
}

// Write writes campaigns with the Columns header, in input order.
func Write(w io.Writer, campaigns []Campaign) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, c := range campaigns {
		if err := cw.Write(c.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Clean reads the sheet from in, adds end dates and writes it to out.
func Clean(in io.Reader, out io.Writer, today time.Time) (int, error) {
	campaigns, err := Read(in)
	if err != nil {
		return 0, err
	}
	AddEndDates(campaigns, today)
	if err := Write(out, campaigns); err != nil {
		return 0, fmt.Errorf("writing campaigns: %w", err)
	}
	return len(campaigns), nil
}

// CleanFile runs Clean from inPath to outPath.
func CleanFile(inPath, outPath string, today time.Time) (int, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return 0, fmt.Errorf("creating directory: %w", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return 0, err
	}

	n, err := Clean(in, out, today)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}
