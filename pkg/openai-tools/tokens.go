package openai_tools

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sashabaranov/go-openai"
)

const fallbackEncoding = "cl100k_base"

// CountToken estimates the token footprint of a chat completion request,
// including the per-message wrapping overhead. Unknown models fall back to
// the cl100k_base encoding rather than failing the request.
func CountToken(messages []openai.ChatCompletionMessage, model string) (int, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return 0, fmt.Errorf("failed to get encoding for model %s: %w", model, err)
		}
	}

	// Every message carries role/name framing tokens and every reply is
	// primed with an assistant header.
	const tokensPerMessage = 4
	const tokensPerReply = 2

	count := tokensPerReply
	for _, message := range messages {
		count += tokensPerMessage
		count += len(enc.Encode(message.Role, nil, nil))
		count += len(enc.Encode(message.Content, nil, nil))
	}
	return count, nil
}
