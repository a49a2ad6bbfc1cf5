package usecase

import "strings"

type Intent string

const (
	IntentText  = Intent("text")
	IntentImage = Intent("image")
)

// imageRequestPhrases is matched case-insensitively as plain substrings.
// TODO: substring matching misfires on utterances like "create a summary" or
// "start over" ("art"); switching to word-boundary matching changes which
// requests reach the image path, so it needs its own review.
var imageRequestPhrases = []string{
	"show me", "generate", "create", "make", "draw", "picture", "image", "photo",
	"illustration", "visual", "art", "painting", "sketch",
}

// ClassifyIntent decides whether an utterance asks for an image or for a
// regular text answer. First matching phrase wins.
func ClassifyIntent(utterance string) Intent {
	lowered := strings.ToLower(utterance)
	for _, phrase := range imageRequestPhrases {
		if strings.Contains(lowered, phrase) {
			return IntentImage
		}
	}
	return IntentText
}
