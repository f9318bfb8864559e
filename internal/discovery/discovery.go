// Package discovery implements paginated search over skill metadata
// (spec.md §4.6, Discovery Index / C6).
//
// The indexing/lookup shape is grounded on the teacher's modeldb.Catalog,
// which snapshots a normalized metadata set and offers provider/model
// lookups over it; here the snapshot is a skill metadata projection and
// the lookups are keyword/category/language filters instead of
// provider/model pairs. Free-text queries additionally support glob
// patterns via doublestar, an ecosystem dependency the teacher carries for
// file-pattern matching repurposed here for token matching.
package discovery

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/danshapiro/skillproto/internal/model"
	"github.com/danshapiro/skillproto/internal/registry"
)

// SortKey is a discovery sort option (spec.md §4.6).
type SortKey string

const (
	SortName       SortKey = "name"
	SortDate       SortKey = "date"
	SortPopularity SortKey = "popularity"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Query is a discovery search request.
type Query struct {
	Q        string
	Category string
	Language string
	Sort     SortKey
	Page     int
	PageSize int
}

func (q *Query) applyDefaults() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.Sort == "" {
		q.Sort = SortName
	}
}

// Result is one page of a discovery search.
type Result struct {
	Skills     []*model.Skill
	Total      int
	TotalPages int
}

// Index is the discovery index (C6). It holds no independent storage: it
// is a query/projection layer over the registry's metadata store, kept
// eventually consistent by re-reading the registry on every search
// (spec.md §4.6: "the index is eventually consistent with the registry ...
// target < 1 second in-process" — trivially satisfied since there is no
// separate write path to lag behind).
type Index struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Index {
	return &Index{reg: reg}
}

// Search runs a paginated, filtered, sorted search over skill metadata
// (spec.md §4.6).
func (ix *Index) Search(q Query) (Result, error) {
	q.applyDefaults()

	skills, err := ix.reg.List(registry.Filter{Category: q.Category, Language: q.Language})
	if err != nil {
		return Result{}, err
	}

	if strings.TrimSpace(q.Q) != "" {
		skills = filterByQuery(skills, q.Q)
	}

	sortSkills(skills, q.Sort, ix.reg)

	total := len(skills)
	totalPages := (total + q.PageSize - 1) / q.PageSize
	if totalPages == 0 {
		totalPages = 1
	}
	start := (q.Page - 1) * q.PageSize
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}

	return Result{Skills: skills[start:end], Total: total, TotalPages: totalPages}, nil
}

// filterByQuery token-matches q against skill_name/description. A query
// containing glob metacharacters ("*", "?", "[...]") is matched with
// doublestar.Match against each whitespace-separated token; otherwise it's
// a case-insensitive substring match.
func filterByQuery(skills []*model.Skill, q string) []*model.Skill {
	q = strings.ToLower(strings.TrimSpace(q))
	isGlob := strings.ContainsAny(q, "*?[")

	out := make([]*model.Skill, 0, len(skills))
	for _, sk := range skills {
		haystack := strings.ToLower(sk.SkillName + " " + sk.Description)
		if matchQuery(haystack, q, isGlob) {
			out = append(out, sk)
		}
	}
	return out
}

func matchQuery(haystack, q string, isGlob bool) bool {
	if !isGlob {
		return strings.Contains(haystack, q)
	}
	for _, token := range strings.Fields(haystack) {
		if ok, _ := doublestar.Match(q, token); ok {
			return true
		}
	}
	return false
}

func sortSkills(skills []*model.Skill, key SortKey, reg *registry.Registry) {
	switch key {
	case SortDate:
		sort.SliceStable(skills, func(i, j int) bool {
			return skills[i].CreatedAt.After(skills[j].CreatedAt)
		})
	case SortPopularity:
		sort.SliceStable(skills, func(i, j int) bool {
			return reg.Stats(skills[i].SkillID).Popularity > reg.Stats(skills[j].SkillID).Popularity
		})
	default: // SortName
		sort.SliceStable(skills, func(i, j int) bool {
			return skills[i].SkillName < skills[j].SkillName
		})
	}
}
