package memory

import "strings"

const maxSearchLimit = 500

func NormalizePutOptions(opts PutOptions) PutOptions {
	opts.Emotion = strings.TrimSpace(opts.Emotion)
	if opts.Emotion == "" {
		opts.Emotion = DefaultEmotion
	}
	if opts.Tags == nil {
		opts.Tags = []string{}
	}
	if opts.Metadata == nil {
		opts.Metadata = map[string]any{}
	}
	return opts
}

func NormalizeSearchParams(params SearchParams) SearchParams {
	params.Query = strings.TrimSpace(params.Query)
	params.Emotion = strings.TrimSpace(params.Emotion)
	if params.Limit <= 0 {
		params.Limit = DefaultSearchLimit
	}
	if params.Limit > maxSearchLimit {
		params.Limit = maxSearchLimit
	}
	tags := make([]string, 0, len(params.Tags))
	for _, tag := range params.Tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	params.Tags = tags
	return params
}

// Preview returns the first n characters of content, with a "..." suffix
// when content is longer. Operates on runes so multibyte text is not split.
func Preview(content string, n int) string {
	runes := []rune(content)
	if len(runes) <= n {
		return content
	}
	return string(runes[:n]) + "..."
}
