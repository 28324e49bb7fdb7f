package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kubikal7/ski-jumping-management/internal/model"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 1000
	// maxQueryOffset prevents absurdly large offsets that force long scans.
	maxQueryOffset = 100_000
)

// pathID parses a positive int64 path value.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", model.ErrInvalidRequest, name)
	}
	return id, nil
}

// queryParams reads typed query parameters and collects every problem so a
// single 400 can report them all.
type queryParams struct {
	values url.Values
	errs   []string
}

func newQueryParams(r *http.Request) *queryParams {
	return &queryParams{values: r.URL.Query()}
}

func (q *queryParams) fail(key, want string) {
	q.errs = append(q.errs, fmt.Sprintf("%s: expected %s", key, want))
}

func (q *queryParams) err() error {
	if len(q.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", model.ErrInvalidRequest, strings.Join(q.errs, "; "))
}

func (q *queryParams) str(key string) string {
	return strings.TrimSpace(q.values.Get(key))
}

func (q *queryParams) boolean(key string) bool {
	v := q.values.Get(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		q.fail(key, "a boolean")
	}
	return b
}

func (q *queryParams) int(key string) *int {
	v := q.values.Get(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		q.fail(key, "an integer")
		return nil
	}
	return &n
}

func (q *queryParams) int64(key string) *int64 {
	v := q.values.Get(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		q.fail(key, "a positive integer")
		return nil
	}
	return &n
}

func (q *queryParams) float(key string) *float64 {
	v := q.values.Get(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		q.fail(key, "a number")
		return nil
	}
	return &f
}

// ids accepts both repeated keys and comma-separated lists.
func (q *queryParams) ids(key string) []int64 {
	var out []int64
	for _, raw := range q.values[key] {
		for part := range strings.SplitSeq(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.ParseInt(part, 10, 64)
			if err != nil || n <= 0 {
				q.fail(key, "a list of positive integers")
				return nil
			}
			out = append(out, n)
		}
	}
	return out
}

func (q *queryParams) strs(key string) []string {
	var out []string
	for _, raw := range q.values[key] {
		for part := range strings.SplitSeq(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// time accepts RFC 3339 timestamps or plain YYYY-MM-DD dates (UTC midnight).
func (q *queryParams) time(key string) *time.Time {
	v := q.values.Get(key)
	if v == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t
	}
	d, err := model.ParseDate(v)
	if err != nil {
		q.fail(key, "RFC3339 or YYYY-MM-DD")
		return nil
	}
	return d.TimePtr()
}

func (q *queryParams) page() model.Page {
	limit, offset := defaultQueryLimit, 0
	if n := q.int("limit"); n != nil {
		limit = min(max(*n, 1), maxQueryLimit)
	}
	if n := q.int("offset"); n != nil {
		offset = min(max(*n, 0), maxQueryOffset)
	}
	return model.Page{Limit: limit, Offset: offset}
}

func (q *queryParams) capabilities(key string) []model.Capability {
	var out []model.Capability
	for _, s := range q.strs(key) {
		c, err := model.ParseCapability(s)
		if err != nil {
			q.fail(key, "capability names")
			return nil
		}
		out = append(out, c)
	}
	return out
}
