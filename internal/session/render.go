package session

import (
	"fmt"
	"strings"
)

// RenderPage formats the current page of a session as the text shown to
// the user: a page header, the visible items numbered by their global
// position in the list, and the navigation footer. Pure function of the
// session's items and page.
func RenderPage(s *Session) string {
	items, start := s.PageItems()

	var b strings.Builder
	fmt.Fprintf(&b, "*Hidden Mention - Page %d/%d*\n\nSelect a group:\n\n", s.Page, s.TotalPages())
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", start+i+1, item.Label)
	}
	b.WriteString("\nReply with a number to select.\nType *'n'* for next, *'p'* for previous, or *'c'* to cancel.")
	return b.String()
}
