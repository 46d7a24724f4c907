package recorder

import (
	"context"
	"strings"

	"keepsake/internal/memory"
)

// Canned query expansions for recall by feeling or life period. Unknown
// labels fall through as literal queries.
var (
	emotionQueries = map[string]string{
		"happy":     "joy happiness celebration good times laughter",
		"sad":       "sadness loss grief difficult times",
		"proud":     "achievement success accomplishment pride",
		"love":      "love affection caring family relationships",
		"nostalgic": "memories past times childhood remember",
	}
	timeframeQueries = map[string]string{
		"childhood":   "childhood young kid child school playground",
		"teenage":     "teenager high school adolescent growing up",
		"young adult": "college university young adult twenties",
		"recent":      "recent lately nowadays today this year",
	}
)

// RecallEmotion finds memories with a given emotional tone by expanding
// the label into a descriptive query.
func (r *Recorder) RecallEmotion(ctx context.Context, emotion string, nResults int) ([]memory.Recollection, error) {
	query := expand(emotionQueries, emotion)
	return r.Recall(ctx, query, nResults, memory.DefaultSimilarityThreshold)
}

// RecallTimeframe finds memories from a period of life.
func (r *Recorder) RecallTimeframe(ctx context.Context, timeframe string, nResults int) ([]memory.Recollection, error) {
	query := expand(timeframeQueries, timeframe)
	return r.Recall(ctx, query, nResults, memory.DefaultSimilarityThreshold)
}

func expand(queries map[string]string, label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	if q, ok := queries[key]; ok {
		return q
	}
	return label
}
