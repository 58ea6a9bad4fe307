package chat

import (
	"fmt"
	"strings"

	"knowyourfan-backend/internal/gateway"
	"knowyourfan-backend/internal/shared/config"
)

const (
	contextHeader  = "Recent information found:"
	userTurnPrefix = "User question: "
	unknownAnswer  = "I don't have that information"
	defaultOrgName = "the organization"
)

// SiteFilter restricts a web search to the given sites.
func SiteFilter(sites []string) string {
	parts := make([]string, 0, len(sites))
	for _, s := range sites {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, "site:"+s)
		}
	}
	return strings.Join(parts, " OR ")
}

// ContextBlock renders search results as a numbered list. No results render nothing.
func ContextBlock(results []gateway.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(contextHeader)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s: %s", i+1, oneLine(r.Title), oneLine(r.Snippet))
	}
	return b.String()
}

// oneLine collapses runs of whitespace, newlines included, to single spaces.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// UserTurn places the context block, when present, ahead of the question.
func UserTurn(contextBlock, message string) string {
	if contextBlock == "" {
		return userTurnPrefix + message
	}
	return contextBlock + "\n\n" + userTurnPrefix + message
}

// OrganizationName is the name the assistant speaks for.
func OrganizationName(p config.Policy) string {
	if org := strings.TrimSpace(p.Organization); org != "" {
		return org
	}
	return defaultOrgName
}

// SystemInstruction builds the assistant persona from the policy.
func SystemInstruction(p config.Policy) string {
	org := OrganizationName(p)
	site := strings.TrimSpace(p.Website)
	handle := strings.TrimSpace(p.SocialHandle)

	var b strings.Builder
	fmt.Fprintf(&b, "You are the virtual assistant of %s, integrated into the %s \"Know Your Fan\" platform.\n\n", org, org)
	b.WriteString("Rules:\n")
	b.WriteString("- Be clear and informative without excessive detail.\n")
	b.WriteString("- Keep every answer to 2-3 sentences or one short paragraph.\n")
	b.WriteString("- Use bullet points for lists.\n")
	b.WriteString("- Keep a friendly, professional tone.\n")
	fmt.Fprintf(&b, "- Only discuss %s topics.\n", org)
	b.WriteString("- Prefer the recent information supplied with the question when it is relevant.\n\n")
	b.WriteString("When you do not know something:\n")
	fmt.Fprintf(&b, "- Say \"%s\".\n", unknownAnswer)
	switch {
	case site != "" && handle != "":
		fmt.Fprintf(&b, "- Point to the official site (%s) or social media (%s).\n", site, handle)
	case site != "":
		fmt.Fprintf(&b, "- Point to the official site (%s).\n", site)
	case handle != "":
		fmt.Fprintf(&b, "- Point to the official social media (%s).\n", handle)
	}
	fmt.Fprintf(&b, "- For products, point to the official %s store.\n", org)
	b.WriteString("- For events, point to the official calendar on the site or social media.")
	return b.String()
}
