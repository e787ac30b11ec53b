package report

import (
	"fmt"
	"strings"
)

// Summary renders a boxed, human-readable description of the report for
// the given date range (either may be empty).
func (r *Report) Summary(start, end string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "(%s) %s\n%s - %s\n\n", r.Category, r.Name, start, end)

	if len(r.Dimensions) > 0 {
		b.WriteString("Dimensions:")
		for _, d := range r.Dimensions {
			b.WriteString("\n    - " + d)
		}
	} else {
		b.WriteString("No dimensions specified")
	}
	b.WriteString("\n\n")

	b.WriteString("Metrics:")
	if len(r.Metrics) > 0 {
		half := (len(r.Metrics) + 1) / 2
		for i := 0; i < half; i++ {
			if i+half < len(r.Metrics) {
				fmt.Fprintf(&b, "\n    - %-20s - %-20s", r.Metrics[i], r.Metrics[i+half])
			} else {
				fmt.Fprintf(&b, "\n    - %s", r.Metrics[i])
			}
		}
	} else {
		b.WriteString("\n    No metrics specified")
	}
	b.WriteString("\n\n")

	b.WriteString("Filters:")
	if len(r.Filters) == 0 {
		b.WriteString(" No filters specified")
	}
	joiner := "AND"
	if strings.EqualFold(r.FilterOperator, "OR") {
		joiner = "OR"
	}
	for i, f := range r.Filters {
		fmt.Fprintf(&b, "\n    - %s %s %q", f.Dimension, describeOperator(f), strings.Join(f.Expressions, ", "))
		if i < len(r.Filters)-1 {
			b.WriteString("\n" + joiner)
		}
	}

	return box(b.String())
}

// String summarises the report without a date range.
func (r *Report) String() string {
	return r.Summary("", "")
}

func describeOperator(f Filter) string {
	var verb string
	switch strings.ToUpper(f.Operator) {
	case "EXACT":
		verb = "equals"
		if f.Not {
			return "doesn't equal"
		}
	case "BEGINS_WITH":
		verb = "begins with"
		if f.Not {
			return "doesn't begin with"
		}
	default:
		verb = strings.ToLower(strings.ReplaceAll(f.Operator, "_", " "))
		if f.Not {
			return "not " + verb
		}
	}
	return verb
}

func box(content string) string {
	lines := strings.Split(content, "\n")
	width := 0
	for _, l := range lines {
		if len(l) > width {
			width = len(l)
		}
	}

	border := "+" + strings.Repeat("-", width+2) + "+"
	var b strings.Builder
	b.WriteString(border + "\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "| %-*s |\n", width, l)
	}
	b.WriteString(border)
	return b.String()
}
