package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/ecsportal/records"
)

type scanner interface {
	Scan(dest ...any) error
}

// codec maps one record type to its table columns.
type codec struct {
	columns []string
	values  func(records.Record) []any
	scan    func(scanner) (records.Record, error)
}

var codecs = map[records.ContentType]codec{
	records.News: {
		columns: []string{"id", "title", "content", "title_bn", "content_bn", "category",
			"image_url", "published_date", "scraped_at", "created_at", "updated_at"},
		values: func(r records.Record) []any {
			n := r.(*records.NewsItem)
			return []any{n.ID, n.Title, n.Content, n.TitleBN, n.ContentBN, n.Category,
				n.ImageURL, optMillis(n.PublishedDate), optMillis(n.ScrapedAt),
				toMillis(n.CreatedAt), toMillis(n.UpdatedAt)}
		},
		scan: func(sc scanner) (records.Record, error) {
			var n records.NewsItem
			var pub, scraped sql.NullInt64
			var created, updated int64
			if err := sc.Scan(&n.ID, &n.Title, &n.Content, &n.TitleBN, &n.ContentBN, &n.Category,
				&n.ImageURL, &pub, &scraped, &created, &updated); err != nil {
				return nil, fmt.Errorf("scan news: %w", err)
			}
			n.PublishedDate = nullTime(pub)
			setMeta(&n.Meta, scraped, created, updated)
			return &n, nil
		},
	},
	records.Notices: {
		columns: []string{"id", "title", "content", "title_bn", "content_bn", "priority",
			"notice_type", "file_url", "published_date", "scraped_at", "created_at", "updated_at"},
		values: func(r records.Record) []any {
			n := r.(*records.NoticeItem)
			return []any{n.ID, n.Title, n.Content, n.TitleBN, n.ContentBN, string(n.Priority),
				n.NoticeType, n.FileURL, optMillis(n.PublishedDate), optMillis(n.ScrapedAt),
				toMillis(n.CreatedAt), toMillis(n.UpdatedAt)}
		},
		scan: func(sc scanner) (records.Record, error) {
			var n records.NoticeItem
			var priority string
			var pub, scraped sql.NullInt64
			var created, updated int64
			if err := sc.Scan(&n.ID, &n.Title, &n.Content, &n.TitleBN, &n.ContentBN, &priority,
				&n.NoticeType, &n.FileURL, &pub, &scraped, &created, &updated); err != nil {
				return nil, fmt.Errorf("scan notice: %w", err)
			}
			n.Priority = records.Priority(priority)
			n.PublishedDate = nullTime(pub)
			setMeta(&n.Meta, scraped, created, updated)
			return &n, nil
		},
	},
	records.Officers: {
		columns: []string{"id", "name", "name_bn", "position", "position_bn", "department",
			"email", "phone", "image_url", "hierarchy_level", "scraped_at", "created_at", "updated_at"},
		values: func(r records.Record) []any {
			o := r.(*records.OfficerItem)
			return []any{o.ID, o.Name, o.NameBN, o.Position, o.PositionBN, o.Department,
				o.Email, o.Phone, o.ImageURL, int64(o.HierarchyLevel), optMillis(o.ScrapedAt),
				toMillis(o.CreatedAt), toMillis(o.UpdatedAt)}
		},
		scan: func(sc scanner) (records.Record, error) {
			var o records.OfficerItem
			var level int64
			var scraped sql.NullInt64
			var created, updated int64
			if err := sc.Scan(&o.ID, &o.Name, &o.NameBN, &o.Position, &o.PositionBN, &o.Department,
				&o.Email, &o.Phone, &o.ImageURL, &level, &scraped, &created, &updated); err != nil {
				return nil, fmt.Errorf("scan officer: %w", err)
			}
			o.HierarchyLevel = int(level)
			setMeta(&o.Meta, scraped, created, updated)
			return &o, nil
		},
	},
	records.Elections: {
		columns: []string{"id", "title", "title_bn", "description", "description_bn",
			"election_date", "status", "results", "scraped_at", "created_at", "updated_at"},
		values: func(r records.Record) []any {
			e := r.(*records.ElectionItem)
			return []any{e.ID, e.Title, e.TitleBN, e.Description, e.DescriptionBN,
				e.ElectionDate, string(e.Status), string(e.Results), optMillis(e.ScrapedAt),
				toMillis(e.CreatedAt), toMillis(e.UpdatedAt)}
		},
		scan: func(sc scanner) (records.Record, error) {
			var e records.ElectionItem
			var status, results string
			var scraped sql.NullInt64
			var created, updated int64
			if err := sc.Scan(&e.ID, &e.Title, &e.TitleBN, &e.Description, &e.DescriptionBN,
				&e.ElectionDate, &status, &results, &scraped, &created, &updated); err != nil {
				return nil, fmt.Errorf("scan election: %w", err)
			}
			e.Status = records.ElectionStatus(status)
			if results != "" {
				e.Results = json.RawMessage(results)
			}
			setMeta(&e.Meta, scraped, created, updated)
			return &e, nil
		},
	},
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func setMeta(m *records.Meta, scraped sql.NullInt64, created, updated int64) {
	m.ScrapedAt = nullTime(scraped)
	m.CreatedAt = fromMillis(created)
	m.UpdatedAt = fromMillis(updated)
}

func codecFor(t records.ContentType) (codec, error) {
	c, ok := codecs[t]
	if !ok {
		return codec{}, fmt.Errorf("%w: unknown content type %q", records.ErrInvalid, t)
	}
	return c, nil
}
