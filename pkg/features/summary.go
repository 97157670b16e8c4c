package features

import (
	"sort"
	"strings"

	"vkharvest/pkg/vkapi"
)

// GroupColumns lists the value columns of a group summary
var GroupColumns = []string{"count", "groups_without_photo", "closed_groups", "type_page", "type_group"}

// GroupSummary aggregates a user's communities
func GroupSummary(id int64, gl *vkapi.GroupList) Row {
	var noPhoto, closed, pages, groups float64
	for _, g := range gl.Items {
		if g.HasPhoto == 0 {
			noPhoto++
		}
		closed += float64(g.IsClosed)
		switch g.Type {
		case "group":
			groups++
		case "page":
			pages++
		}
	}
	return Row{ID: id, Values: []float64{float64(gl.Count), noPhoto, closed, pages, groups}}
}

// WallColumns lists the value columns of a wall summary
var WallColumns = func() []string {
	cols := []string{"posts_count", "originals", "reposts", "max_id"}
	for _, c := range []string{"comments", "likes", "views", "reposts_count"} {
		cols = append(cols, c+"_min", c+"_max", c+"_mean", c+"_median")
	}
	return append(cols, "posts_with_text")
}()

// WallSummary aggregates a user's latest posts. Ratios are over the posts
// returned, or over 1 when there are none. max_id is the larger of the total
// count and the highest post id, which exposes deleted posts.
func WallSummary(id int64, w *vkapi.Wall) Row {
	n := float64(len(w.Items))
	if n == 0 {
		n = 1
	}

	var originals, reposts, withText float64
	maxID := int64(w.Count)
	var comments, likes, views, shares []float64
	for _, p := range w.Items {
		if p.ID > maxID {
			maxID = p.ID
		}
		if p.IsRepost() {
			reposts++
		} else {
			originals++
		}
		comments = appendCount(comments, p.Comments)
		likes = appendCount(likes, p.Likes)
		views = appendCount(views, p.Views)
		shares = appendCount(shares, p.Reposts)
		if strings.TrimSpace(p.Text) != "" {
			withText++
		}
	}

	values := []float64{float64(w.Count), originals / n, reposts / n, float64(maxID)}
	for _, s := range [][]float64{comments, likes, views, shares} {
		values = append(values, describe(s)...)
	}
	values = append(values, withText/n)
	return Row{ID: id, Values: values}
}

func appendCount(s []float64, c *vkapi.Counter) []float64 {
	if c == nil {
		return s
	}
	return append(s, c.Count)
}

// describe returns min, max, mean and median, all zero for no samples
func describe(s []float64) []float64 {
	if len(s) == 0 {
		return []float64{0, 0, 0, 0}
	}
	sorted := append([]float64(nil), s...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return []float64{sorted[0], sorted[len(sorted)-1], sum / float64(len(sorted)), median}
}
