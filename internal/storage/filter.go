package storage

import (
	"fmt"
	"strings"

	"github.com/kubikal7/ski-jumping-management/internal/model"
)

// whereBuilder accumulates SQL conditions with positional parameters.
// Conditions are format strings whose %d (or %[1]d for repeated use) verb is
// replaced by the index of the bound argument.
type whereBuilder struct {
	conditions []string
	args       []any
}

func (w *whereBuilder) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.conditions = append(w.conditions, fmt.Sprintf(format, len(w.args)))
}

func (w *whereBuilder) addIf(ok bool, format string, arg any) {
	if ok {
		w.add(format, arg)
	}
}

// like adds a case-insensitive substring match when s is non-empty.
func (w *whereBuilder) like(column, s string) {
	if s = strings.TrimSpace(s); s != "" {
		w.add(column+` ILIKE $%d`, "%"+escapeLike(s)+"%")
	}
}

func (w *whereBuilder) clause() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conditions, " AND ")
}

// page appends LIMIT/OFFSET placeholders.
func (w *whereBuilder) page(p model.Page) string {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	w.args = append(w.args, limit, max(p.Offset, 0))
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
