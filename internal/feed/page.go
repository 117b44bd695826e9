// Package feed reads the registry's paginated change feed and turns it into
// entries newer than the persisted cursor.
package feed

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
	"time"

	"carelink/internal/domain"
)

// RecentPage is the sentinel token for the most recent feed page. A
// first-ever poll starts here on purpose: it picks up current changes
// without replaying the registry's full history.
const RecentPage = "recent"

// patientPathPattern extracts the canonical patient UUID from the resource
// path embedded in an entry's content payload.
var patientPathPattern = regexp.MustCompile(
	`/patient/([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})\b`)

// Page is one parsed feed page.
type Page struct {
	// Updated is the page's own timestamp. Pages not newer than the
	// cursor are skipped wholesale.
	Updated time.Time

	Entries []domain.FeedEntry

	// NextArchive is the token of the next (older-to-newer) page, empty
	// on the newest page.
	NextArchive string

	// Via is the page's own stable token, used as the durable anchor on
	// a first-ever poll.
	Via string
}

type xmlFeed struct {
	Updated string     `xml:"updated"`
	Links   []xmlLink  `xml:"link"`
	Entries []xmlEntry `xml:"entry"`
}

type xmlLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type xmlEntry struct {
	Published string `xml:"published"`
	Updated   string `xml:"updated"`
	Content   string `xml:"content"`
}

// ParsePage decodes a raw feed document. Entries without a recognizable
// patient resource path are dropped; everything else is a parse error.
func ParsePage(doc []byte) (*Page, error) {
	var parsed xmlFeed
	if err := xml.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("parse feed page: %w", err)
	}

	updated, err := parseFeedTime(parsed.Updated)
	if err != nil {
		return nil, fmt.Errorf("parse feed page timestamp: %w", err)
	}

	page := &Page{
		Updated:     updated,
		NextArchive: linkToken(parsed.Links, "next-archive"),
		Via:         linkToken(parsed.Links, "via"),
	}
	for _, entry := range parsed.Entries {
		patientUUID := ExtractPatientUUID(entry.Content)
		if patientUUID == "" {
			continue
		}
		published, err := parseFeedTime(entry.Published)
		if err != nil {
			return nil, fmt.Errorf("parse entry published timestamp: %w", err)
		}
		entryUpdated, err := parseFeedTime(entry.Updated)
		if err != nil {
			return nil, fmt.Errorf("parse entry updated timestamp: %w", err)
		}
		page.Entries = append(page.Entries, domain.FeedEntry{
			PatientUUID: patientUUID,
			PublishedAt: published,
			UpdatedAt:   entryUpdated,
		})
	}
	return page, nil
}

// ExtractPatientUUID pulls the 8-4-4-4-12 hex UUID out of an entry's content
// payload, or returns "" when none is present.
func ExtractPatientUUID(content string) string {
	matches := patientPathPattern.FindStringSubmatch(content)
	if matches == nil {
		return ""
	}
	return matches[1]
}

// linkToken resolves a feed link relation to its opaque page token, the last
// segment of the href.
func linkToken(links []xmlLink, rel string) string {
	for _, link := range links {
		if link.Rel != rel || link.Href == "" {
			continue
		}
		parts := strings.Split(strings.TrimRight(link.Href, "/"), "/")
		return parts[len(parts)-1]
	}
	return ""
}

func parseFeedTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
