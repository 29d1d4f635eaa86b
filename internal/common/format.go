package common

import (
	"fmt"
	"strings"
)

// Layout constants shared by the report binaries.
const (
	ReportWidth   = 80
	BoxInnerWidth = 78

	// ReportTimeFormat is the timestamp layout used in report output.
	ReportTimeFormat = "2006-01-02 15:04:05"
)

// PrintRule prints a horizontal rule of the given character and width.
func PrintRule(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader prints a report title between rules.
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	PrintRule("=", width)
}

// PrintFooter prints a closing message between rules.
func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// PrintBoxSeparator prints the box-drawing rule that opens a report
// sub-section.
func PrintBoxSeparator(width int) {
	fmt.Println("├" + strings.Repeat("─", width))
}

// BoxPrefix returns the box-drawing prefix for a list item, closing the
// box on the last one.
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}
