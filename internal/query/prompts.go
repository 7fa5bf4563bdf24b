package query

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"kusanagi/internal/textutil"
)

const (
	documentMaxChars = 12000
	priorReviewChars = 1500
)

const (
	chatPrompt = "You are Kusanagi, a careful research assistant. Answer the user's question clearly and concisely. " +
		"Say so plainly when you do not know."

	documentChatPrompt = `You are Kusanagi, an accurate and helpful assistant specializing in document analysis.
Answer the user's question solely from the provided document context.
1. Do not use outside knowledge.
2. If the answer is not in the context, say: "I cannot find the answer to your question in the provided document."
3. Do not make up information.
4. Cite page markers such as [Page X] when the context carries them.`

	summaryPrompt = "You are Kusanagi, a careful research assistant. Your user wants a summary of a research paper. " +
		"Provide a concise summary of the document provided."

	reviewPrompt = "You are a reviewer with expertise in research papers. Provide a critical peer review of the document, " +
		"focusing on its strengths and weaknesses."
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// promptBuilder shapes requests for chat-style backends. The optional
// document is plain text attached to every request as context.
type promptBuilder struct {
	document string
}

func newPromptBuilder(document string) promptBuilder {
	return promptBuilder{document: textutil.Truncate(strings.TrimSpace(document), documentMaxChars)}
}

func (p promptBuilder) answer(prompt string) []chatMessage {
	system := chatPrompt
	if p.document != "" {
		system = documentChatPrompt + "\n\n--- CONTEXT ---\n" + p.document + "\n--- END CONTEXT ---"
	}
	return []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: strings.TrimSpace(prompt)},
	}
}

func (p promptBuilder) review(participant Participant, prompt string, prior []Review) []chatMessage {
	system := strings.TrimSpace(participant.Brief)
	if system == "" {
		system = fmt.Sprintf("%s You review from the perspective of a %s.", reviewPrompt, participant.Name)
	}
	priorBlock := "(you are the first reviewer)"
	if len(prior) > 0 {
		lines := lo.Map(prior, func(r Review, _ int) string {
			return fmt.Sprintf("[%s] %s", r.Participant, textutil.Truncate(strings.TrimSpace(r.Text), priorReviewChars))
		})
		priorBlock = strings.Join(lines, "\n\n")
	}
	parts := []string{
		"Panel request:",
		strings.TrimSpace(prompt),
		"",
		"Reviews from earlier panel members:",
		priorBlock,
		"",
		"Output contract:",
		fmt.Sprintf("- write your review as the %s", participant.Name),
		"- build on or challenge earlier reviews where relevant",
		"- plain text, no preamble",
	}
	if p.document != "" {
		parts = append(parts, "", "--- DOCUMENT ---", p.document, "--- END DOCUMENT ---")
	}
	return []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: strings.TrimSpace(strings.Join(parts, "\n"))},
	}
}

// summary asks for a digest of the loaded document.
func (p promptBuilder) summary() ([]chatMessage, error) {
	if p.document == "" {
		return nil, ErrNoDocument
	}
	return []chatMessage{
		{Role: "system", Content: summaryPrompt},
		{Role: "user", Content: "Please provide a concise summary of the following document:\n\n" + p.document},
	}, nil
}
