package rules

import (
	"sort"
	"strings"

	"smartlists/models"
)

// RequiredOptions returns the snapshot extractions the rule sets read.
// Extractions no rule needs are left off so the builder can skip them.
func RequiredOptions(sets []models.ExpressionSet, referenceUserID string) models.ExtractOptions {
	var opts models.ExtractOptions
	users := make(map[string]struct{})

	for _, set := range sets {
		for _, expr := range set.Expressions {
			f, ok := Lookup(expr.MemberName)
			if !ok {
				continue
			}
			switch f.Name {
			case models.FieldAudioLanguages:
				opts.AudioLanguages = true
			case models.FieldPeople, models.FieldActors, models.FieldDirectors:
				opts.People = true
			case models.FieldSeriesName:
				opts.SeriesName = true
			case models.FieldTags:
				if expr.Flags.IncludeParentSeriesTags {
					opts.ParentSeriesTags = true
				}
			case models.FieldCollections:
				opts.Collections = true
				if expr.Flags.IncludeChildEpisodes {
					opts.CollectionChildEpisodes = true
				}
			case models.FieldNextUnwatched:
				if expr.Flags.IncludeUnwatchedSeries {
					opts.NextUnwatchedInclusive = true
				} else {
					opts.NextUnwatched = true
				}
			}

			if f.Type.IsUserScoped() {
				id := strings.TrimSpace(expr.UserID)
				if id != "" && id != referenceUserID {
					users[id] = struct{}{}
				}
			}
		}
	}

	for id := range users {
		opts.AdditionalUserIDs = append(opts.AdditionalUserIDs, id)
	}
	sort.Strings(opts.AdditionalUserIDs)
	return opts
}

// UsesSimilarity reports whether any expression is a SimilarTo rule.
func UsesSimilarity(sets []models.ExpressionSet) bool {
	for _, set := range sets {
		for _, expr := range set.Expressions {
			if f, ok := Lookup(expr.MemberName); ok && f.Type == TypeSimilarity {
				return true
			}
		}
	}
	return false
}
