package scraper

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/ecsportal/records"
)

// Candidate is a parsed record and the outcome of validating it. Reason is
// empty for accepted candidates.
type Candidate struct {
	Record records.Record
	Reason string
}

// Accepted reports whether the candidate passed validation.
func (c Candidate) Accepted() bool { return c.Reason == "" }

// extraction is the result of running one profile over one document.
type extraction struct {
	selector   string
	candidates []Candidate
	fallback   bool
}

func (x extraction) split() (accepted []records.Record, rejected []Candidate) {
	for _, c := range x.candidates {
		if c.Accepted() {
			accepted = append(accepted, c.Record)
		} else {
			rejected = append(rejected, c)
		}
	}
	return accepted, rejected
}

func parseDocument(page string) (*goquery.Document, error) {
	root, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("scraper: parse html: %w", err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

// extractor turns container elements into candidates for one content type.
type extractor struct {
	kind    records.ContentType
	profile *Profile
	base    *url.URL
	now     time.Time
}

// run applies the first container selector that matches at least one
// element, then the link fallback if the profile has one and nothing valid
// came out of the containers.
func (e *extractor) run(doc *goquery.Document) extraction {
	var x extraction
	for _, sel := range e.profile.Containers {
		els := doc.Find(sel)
		if els.Length() == 0 {
			continue
		}
		x.selector = sel
		els.Each(func(_ int, s *goquery.Selection) {
			if c, ok := e.candidate(s); ok {
				x.candidates = append(x.candidates, c)
			}
		})
		break
	}

	if e.profile.FallbackLinks != "" {
		if accepted, _ := x.split(); len(accepted) == 0 {
			x.fallback = true
			doc.Find(e.profile.FallbackLinks).Each(func(_ int, s *goquery.Selection) {
				if c, ok := e.linkCandidate(s); ok {
					x.candidates = append(x.candidates, c)
				}
			})
		}
	}
	return x
}

// candidate builds a record from a container. ok is false for noise, i.e.
// a headline too short to be a real item.
func (e *extractor) candidate(s *goquery.Selection) (Candidate, bool) {
	title := e.headline(s)
	if utf8.RuneCountInString(title) <= e.profile.MinTitleLen {
		return Candidate{}, false
	}
	p := e.profile
	scraped := e.now

	var rec records.Record
	switch e.kind {
	case records.News:
		rec = &records.NewsItem{
			Meta:          records.Meta{ScrapedAt: &scraped},
			Title:         title,
			Content:       text(s, p.Body),
			ImageURL:      e.resolve(attr(s, p.Image, "src")),
			PublishedDate: dateOf(s, p.Date),
		}
	case records.Notices:
		rec = &records.NoticeItem{
			Meta:          records.Meta{ScrapedAt: &scraped},
			Title:         title,
			Content:       text(s, p.Body),
			Priority:      NoticePriority(title),
			FileURL:       e.resolve(attr(s, p.File, "href")),
			PublishedDate: dateOf(s, p.Date),
		}
	case records.Officers:
		rec = &records.OfficerItem{
			Meta:       records.Meta{ScrapedAt: &scraped},
			Name:       title,
			Position:   text(s, p.Position),
			Department: text(s, p.Department),
			Email:      mailto(attr(s, p.Email, "href")),
			Phone:      text(s, p.Phone),
			ImageURL:   e.resolve(attr(s, p.Image, "src")),
		}
	case records.Elections:
		el := &records.ElectionItem{
			Meta:        records.Meta{ScrapedAt: &scraped},
			Title:       title,
			Description: text(s, p.Body),
		}
		if d := dateOf(s, p.Date); d != nil {
			el.ElectionDate = d.Format(records.DateLayout)
		}
		rec = el
	default:
		return Candidate{}, false
	}
	return e.check(rec), true
}

// linkCandidate turns a bare link into a minimal news item.
func (e *extractor) linkCandidate(s *goquery.Selection) (Candidate, bool) {
	title := CleanText(s.Text())
	href, _ := s.Attr("href")
	n := utf8.RuneCountInString(title)
	if n <= 20 || n >= 200 || strings.TrimSpace(href) == "" {
		return Candidate{}, false
	}
	scraped := e.now
	return e.check(&records.NewsItem{Meta: records.Meta{ScrapedAt: &scraped}, Title: title}), true
}

// check validates rec. Scraped fields come from goquery Text, which is
// already entity-decoded plain text, so no markup stripping happens here.
func (e *extractor) check(rec records.Record) Candidate {
	rec.ApplyDefaults()
	if err := rec.Validate(); err != nil {
		return Candidate{Record: rec, Reason: err.Error()}
	}
	return Candidate{Record: rec}
}

func (e *extractor) headline(s *goquery.Selection) string {
	title := text(s, e.profile.Title)
	if title == "" && !e.profile.NoTextFallback {
		title = CleanText(s.Text())
	}
	return title
}

// resolve makes a relative reference absolute against the page URL.
func (e *extractor) resolve(ref string) string {
	if ref == "" || e.base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return e.base.ResolveReference(u).String()
}

func text(s *goquery.Selection, sel string) string {
	if sel == "" {
		return ""
	}
	return CleanText(s.Find(sel).First().Text())
}

func attr(s *goquery.Selection, sel, name string) string {
	if sel == "" {
		return ""
	}
	v, _ := s.Find(sel).First().Attr(name)
	return strings.TrimSpace(v)
}

func dateOf(s *goquery.Selection, sel string) *time.Time {
	if t, ok := ParseDate(text(s, sel)); ok {
		return &t
	}
	return nil
}

func mailto(href string) string {
	addr := strings.TrimPrefix(href, "mailto:")
	if i := strings.IndexByte(addr, '?'); i >= 0 {
		addr = addr[:i]
	}
	return addr
}
