package allocation

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/floorscore/floorscore/pkg/efficiency"
	"github.com/floorscore/floorscore/pkg/types"
)

// MaxPageSize caps page_size on list requests.
const MaxPageSize = 500

type column struct {
	name       string
	text       func(*Scored) string
	num        func(*Scored) float64 // nil for text columns
	filterable bool
}

func formatNum(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// columns is every queryable field in display order.
var columns = []column{
	{name: "id", filterable: true, text: func(s *Scored) string { return s.Record.ID }},
	{name: "worker_id", filterable: true, text: func(s *Scored) string { return s.Record.WorkerID }},
	{name: "worker_name", filterable: true, text: func(s *Scored) string { return s.Record.WorkerName }},
	{name: "skill", filterable: true, text: func(s *Scored) string { return s.Record.Skill }},
	{name: "line_number", filterable: true, text: func(s *Scored) string { return s.Record.LineNumber }},
	{name: "machine_number", filterable: true, text: func(s *Scored) string { return s.Record.MachineNumber }},
	{name: "product_id", filterable: true, text: func(s *Scored) string { return s.Record.ProductID }},
	{name: "shift", filterable: true, text: func(s *Scored) string { return s.Record.Shift }},
	{name: "date", filterable: true, text: func(s *Scored) string { return s.Record.Date }},
	{
		name: "total_hours_worked",
		text: func(s *Scored) string { return formatNum(s.Record.TotalHoursWorked) },
		num:  func(s *Scored) float64 { return s.Record.TotalHoursWorked },
	},
	{
		name: "products_made",
		text: func(s *Scored) string { return strconv.Itoa(s.Record.ProductsMade) },
		num:  func(s *Scored) float64 { return float64(s.Record.ProductsMade) },
	},
	{
		name: "rework_count",
		text: func(s *Scored) string { return strconv.Itoa(s.Record.ReworkCount) },
		num:  func(s *Scored) float64 { return float64(s.Record.ReworkCount) },
	},
	{
		name: "downtime_minutes",
		text: func(s *Scored) string { return formatNum(s.Record.DowntimeMinutes) },
		num:  func(s *Scored) float64 { return s.Record.DowntimeMinutes },
	},
	{name: "downtime_reason", filterable: true, text: func(s *Scored) string { return string(s.Record.DowntimeReason) }},
	{
		name: "efficiency",
		text: func(s *Scored) string { return strconv.Itoa(s.Score.Value) },
		num:  func(s *Scored) float64 { return float64(s.Score.Value) },
	},
	{name: "band", filterable: true, text: func(s *Scored) string { return string(s.Band) }},
	{
		name: "created_at",
		text: func(s *Scored) string { return s.Record.CreatedAt.Format("2006-01-02T15:04:05Z07:00") },
		num:  func(s *Scored) float64 { return float64(s.Record.CreatedAt.UnixNano()) },
	},
}

func columnByName(name string) (column, bool) {
	i := slices.IndexFunc(columns, func(c column) bool { return c.name == name })
	if i < 0 {
		return column{}, false
	}
	return columns[i], true
}

// Columns returns the queryable field names in display order.
func Columns() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.name
	}
	return out
}

// Row renders s as one export row keyed by Columns.
func Row(s Scored) map[string]any {
	row := make(map[string]any, len(columns))
	for _, c := range columns {
		row[c.name] = c.text(&s)
	}
	return row
}

// Filter selects, orders and pages records.
type Filter struct {
	Equals   map[string]string // exact, case-insensitive match per field
	Search   string            // case-insensitive substring over every column
	Sort     string            // field name, "-" prefix for descending
	Page     int               // 1-based; 0 means 1
	PageSize int               // 0 means the service default
}

// ParseFilter reads a Filter from query parameters. Reserved keys are search,
// sort, page and page_size; every other key must name a filterable field.
func ParseFilter(q url.Values) (Filter, error) {
	f := Filter{Equals: map[string]string{}}
	for key, vals := range q {
		v := ""
		if len(vals) > 0 {
			v = strings.TrimSpace(vals[0])
		}
		switch key {
		case "search", "q":
			f.Search = v
		case "sort":
			f.Sort = v
		case "page", "page_size":
			if v == "" {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return Filter{}, fmt.Errorf("%w: %s must be a positive integer", ErrBadFilter, key)
			}
			if key == "page" {
				f.Page = n
			} else {
				f.PageSize = min(n, MaxPageSize)
			}
		default:
			if v != "" {
				f.Equals[key] = v
			}
		}
	}
	return f, f.validate()
}

func (f Filter) validate() error {
	for field, v := range f.Equals {
		c, ok := columnByName(field)
		if !ok || !c.filterable {
			return fmt.Errorf("%w: unknown filter field %q", ErrBadFilter, field)
		}
		if field == "band" {
			if _, ok := efficiency.ParseBand(strings.ToLower(v)); !ok {
				return fmt.Errorf("%w: unknown band %q", ErrBadFilter, v)
			}
		}
	}
	if f.Sort != "" {
		if _, ok := columnByName(strings.TrimPrefix(f.Sort, "-")); !ok {
			return fmt.Errorf("%w: unknown sort field %q", ErrBadFilter, f.Sort)
		}
	}
	if f.Page < 0 || f.PageSize < 0 {
		return fmt.Errorf("%w: negative paging", ErrBadFilter)
	}
	return nil
}

// match reports whether s passes the equality filters and search.
func (f Filter) match(s *Scored) bool {
	for field, want := range f.Equals {
		c, _ := columnByName(field)
		if !strings.EqualFold(c.text(s), want) {
			return false
		}
	}
	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	for _, c := range columns {
		if strings.Contains(strings.ToLower(c.text(s)), needle) {
			return true
		}
	}
	return false
}

// Select filters and sorts all records.
func (s *Service) Select(ctx context.Context, f Filter) ([]Scored, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for i := range all {
		if f.match(&all[i]) {
			out = append(out, all[i])
		}
	}
	sortScored(out, f.Sort)
	return out, nil
}

func sortScored(items []Scored, spec string) {
	desc := strings.HasPrefix(spec, "-")
	c, ok := columnByName(strings.TrimPrefix(spec, "-"))
	if !ok {
		c, _ = columnByName("id")
	}
	slices.SortStableFunc(items, func(a, b Scored) int {
		var r int
		if c.num != nil {
			r = cmp.Compare(c.num(&a), c.num(&b))
		} else if c.name == "id" {
			r = compareID(a.Record.ID, b.Record.ID)
		} else {
			r = cmp.Compare(strings.ToLower(c.text(&a)), strings.ToLower(c.text(&b)))
		}
		if desc {
			r = -r
		}
		if r == 0 {
			r = compareID(a.Record.ID, b.Record.ID)
		}
		return r
	})
}

// compareID orders numeric IDs numerically and everything else as text.
func compareID(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return cmp.Compare(ai, bi)
	}
	return cmp.Compare(a, b)
}

// Page is one page of query results.
type Page struct {
	Items      []Scored `json:"items"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

// Query returns one page of filtered, sorted records. A page past the end is
// empty, not an error.
func (s *Service) Query(ctx context.Context, f Filter) (Page, error) {
	items, err := s.Select(ctx, f)
	if err != nil {
		return Page{}, err
	}
	size := f.PageSize
	if size == 0 {
		size = s.pageSize
	}
	page := max(f.Page, 1)

	p := Page{
		Items:      []Scored{},
		Total:      len(items),
		Page:       page,
		PageSize:   size,
		TotalPages: (len(items) + size - 1) / size,
	}
	// Compare page counts rather than offsets so a huge page cannot overflow.
	if page-1 < p.TotalPages {
		start := (page - 1) * size
		p.Items = items[start:min(start+size, len(items))]
	}
	return p, nil
}

// Totals are the summed quantities over a report's records.
type Totals struct {
	ProductsMade     int     `json:"products_made"`
	ReworkCount      int     `json:"rework_count"`
	DowntimeMinutes  float64 `json:"downtime_minutes"`
	TotalHoursWorked float64 `json:"total_hours_worked"`
}

// Report is the aggregate view over a filtered record set. Average, Best and
// Worst are nil when there is no data; callers must render that explicitly.
type Report struct {
	Count            int                              `json:"count"`
	Average          *float64                         `json:"average"`
	Best             *efficiency.Entry                `json:"best"`
	Worst            *efficiency.Entry                `json:"worst"`
	Bands            map[efficiency.Band]int          `json:"bands"`
	Overage          int                              `json:"overage"`
	Totals           Totals                           `json:"totals"`
	DowntimeByReason map[types.DowntimeReason]float64 `json:"downtime_by_reason"`
}

func entries(items []Scored) iter.Seq[efficiency.Entry] {
	return func(yield func(efficiency.Entry) bool) {
		for i := range items {
			if !yield(efficiency.Entry{RecordID: items[i].Record.ID, Value: items[i].Score.Value}) {
				return
			}
		}
	}
}

// Summarize builds a Report over items.
func Summarize(items []Scored) Report {
	r := Report{
		Count:            len(items),
		Bands:            map[efficiency.Band]int{},
		DowntimeByReason: map[types.DowntimeReason]float64{},
	}
	for _, b := range efficiency.Bands {
		r.Bands[b] = 0
	}
	for _, it := range items {
		r.Bands[it.Band]++
		if it.Score.Overage {
			r.Overage++
		}
		rec := it.Record
		r.Totals.ProductsMade += rec.ProductsMade
		r.Totals.ReworkCount += rec.ReworkCount
		r.Totals.DowntimeMinutes += rec.DowntimeMinutes
		r.Totals.TotalHoursWorked += rec.TotalHoursWorked
		for _, u := range rec.HourlyUpdates {
			if u.DowntimeMinutes > 0 {
				r.DowntimeByReason[u.DowntimeReason] += u.DowntimeMinutes
			}
		}
	}

	sum, err := efficiency.Aggregate(entries(items))
	if errors.Is(err, efficiency.ErrEmptyAggregateInput) {
		return r
	}
	avg := sum.RoundedAverage(2)
	r.Average = &avg
	r.Best, r.Worst = &sum.Best, &sum.Worst
	return r
}

// Report aggregates the records matching f. Paging fields are ignored.
func (s *Service) Report(ctx context.Context, f Filter) (Report, error) {
	items, err := s.Select(ctx, f)
	if err != nil {
		return Report{}, err
	}
	return Summarize(items), nil
}

// Options returns the distinct non-empty values of a filterable field, for
// filter dropdowns.
func (s *Service) Options(ctx context.Context, field string) ([]string, error) {
	c, ok := columnByName(field)
	if !ok || !c.filterable {
		return nil, fmt.Errorf("%w: unknown field %q", ErrBadFilter, field)
	}
	if field == "band" {
		out := make([]string, len(efficiency.Bands))
		for i, b := range efficiency.Bands {
			out[i] = string(b)
		}
		return out, nil
	}
	if field == "downtime_reason" {
		out := make([]string, len(types.DowntimeReasons))
		for i, r := range types.DowntimeReasons {
			out[i] = string(r)
		}
		return out, nil
	}

	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for i := range all {
		v := c.text(&all[i])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	slices.SortFunc(out, compareID)
	return out, nil
}
