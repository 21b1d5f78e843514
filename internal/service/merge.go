package service

import "slidedeck/internal/domain"

// MergeDecks applies patch onto base at slide granularity and returns a new
// deck; neither input is modified.
//
// Slides are keyed by id: a patch slide whose id exists in base replaces that
// slide in place, unknown ids are appended in patch order. Title and theme
// come from the patch only when non-empty. Id, createdAt and meta always come
// from base.
func MergeDecks(base, patch *domain.Deck) *domain.Deck {
	if base == nil {
		return patch.Clone()
	}
	out := base.Clone()
	if patch == nil {
		return out
	}

	order := make([]string, 0, len(base.Slides)+len(patch.Slides))
	byID := make(map[string]domain.Slide, cap(order))
	put := func(s domain.Slide) {
		if _, seen := byID[s.ID]; !seen {
			order = append(order, s.ID)
		}
		byID[s.ID] = s.Clone()
	}
	for _, s := range base.Slides {
		put(s)
	}
	for _, s := range patch.Slides {
		put(s)
	}

	out.Slides = make([]domain.Slide, len(order))
	for i, id := range order {
		out.Slides[i] = byID[id]
	}
	if patch.Title != "" {
		out.Title = patch.Title
	}
	if patch.Theme != "" {
		out.Theme = patch.Theme
	}
	return out
}
