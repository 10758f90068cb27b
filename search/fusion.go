package search

import (
	"sort"

	"github.com/smartshopper/visearch/core"
)

// FusionWeights are the linear combination weights for the similarity,
// text and attribute signals. They are configuration, not constants;
// an absent collaborator forces its weight to zero at construction.
type FusionWeights struct {
	Similarity float64 `yaml:"similarity" json:"similarity"`
	Text       float64 `yaml:"text" json:"text"`
	Attribute  float64 `yaml:"attribute" json:"attribute"`
}

// DefaultFusionWeights returns the default weighting
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{
		Similarity: 0.6,
		Text:       0.3,
		Attribute:  0.1,
	}
}

// attributeMatch is the attribute-derived boost for one candidate
type attributeMatch struct {
	Matched []string // attribute terms found on the product
	Bonus   float64  // [0,1] share of extracted attributes matched
}

// Fuse merges the similarity and text ranked lists into one deduplicated
// ranking. Sub-scores are min-max normalized to [0,1] within their own
// list before weighting; a candidate present in only one list scores 0
// for the missing term. Output is strictly descending by fused score,
// ties broken by product ID ascending, truncated to topK.
func Fuse(similarity, text []core.ScoredID, attrs map[string]attributeMatch, weights FusionWeights, topK int) []core.ResultItem {
	normSim := minMaxNormalize(similarity)
	normText := minMaxNormalize(text)

	rawSim := rawScores(similarity)
	rawText := rawScores(text)

	candidates := make(map[string]struct{}, len(similarity)+len(text))
	for _, s := range similarity {
		candidates[s.ProductID] = struct{}{}
	}
	for _, s := range text {
		candidates[s.ProductID] = struct{}{}
	}

	items := make([]core.ResultItem, 0, len(candidates))
	for id := range candidates {
		item := core.ResultItem{
			ProductID:       id,
			SimilarityScore: rawSim[id],
			TextScore:       rawText[id],
		}

		fused := weights.Similarity*normSim[id] + weights.Text*normText[id]
		if match, ok := attrs[id]; ok {
			fused += weights.Attribute * match.Bonus
			item.MatchedAttributes = match.Matched
		}
		item.FusedScore = fused

		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].FusedScore != items[j].FusedScore {
			return items[i].FusedScore > items[j].FusedScore
		}
		return items[i].ProductID < items[j].ProductID
	})

	if topK > 0 && len(items) > topK {
		items = items[:topK]
	}
	return items
}

// minMaxNormalize maps scores into [0,1] within the list. A list whose
// scores are all equal normalizes to 1.0, so a lone exact match is not
// zeroed out.
func minMaxNormalize(results []core.ScoredID) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	if len(results) == 0 {
		return normalized
	}

	minScore := results[0].Score
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score < minScore {
			minScore = r.Score
		}
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}

	scoreRange := maxScore - minScore
	for _, r := range results {
		if scoreRange == 0 {
			normalized[r.ProductID] = 1.0
		} else {
			normalized[r.ProductID] = (r.Score - minScore) / scoreRange
		}
	}
	return normalized
}

func rawScores(results []core.ScoredID) map[string]float64 {
	raw := make(map[string]float64, len(results))
	for _, r := range results {
		raw[r.ProductID] = r.Score
	}
	return raw
}
