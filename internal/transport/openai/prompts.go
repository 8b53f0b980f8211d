package openai

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/askdex/internal/domain/conversation"
	"github.com/kailas-cloud/askdex/internal/usecase/router"
	"github.com/kailas-cloud/askdex/internal/usecase/synthesis"
	"github.com/kailas-cloud/askdex/internal/usecase/tools/web"
)

const decisionSystem = `You route questions for an enterprise assistant.
Pick zero or more tools that are needed to answer the question. Pick none when
the question is conversational or answerable from general knowledge.
For each picked tool give a confidence in [0,1], parameters matching the tool's
schema, and a one-sentence reasoning. Never invent tools.
Reply with JSON only.`

const dateSystem = `You extract the calendar date range a question refers to.
Dates are YYYY-MM-DD. Leave "end" empty for ranges that run until now.
Set has_range to false when the question has no time reference.
Reply with JSON only.`

const phrasingSystem = `You rewrite a question into short web search queries.
Each query should target a different angle of the question.
Reply with JSON only.`

const webSystem = `You condense web search results for a question.
Keep only results that help answer the question. For each kept result give its
source number and a factual summary of what it says about the question.
Reply with JSON only.`

const sqlSystem = `You translate a question into one read-only PostgreSQL SELECT statement.
Use only the tables and columns described below. Do not modify data.
Reply with JSON only.`

const answerSystem = `You answer questions for employees of the company.
Use only the numbered evidence when it is provided and cite it inline as [n].
List every cited number in "citations". If the evidence does not answer the
question, say so. Without evidence, answer directly and briefly.
Reply with JSON only.`

func decisionMessages(req router.DecisionRequest) []openai.ChatCompletionMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "Today is %s.\n\nAvailable tools:\n", req.Today.Format(time.DateOnly))
	for _, d := range req.Tools {
		schema, _ := json.Marshal(d.ParamsSchema)
		fmt.Fprintf(&b, "- %s: %s\n  params schema: %s\n", d.Name, d.Description, schema)
	}
	if len(req.History) > 0 {
		b.WriteString("\nConversation so far:\n")
		writeHistory(&b, req.History)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", req.Question)
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: decisionSystem},
		{Role: openai.ChatMessageRoleUser, Content: b.String()},
	}
}

func dateMessages(text string, today time.Time) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: dateSystem},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(
			"Today is %s (%s).\n\nQuestion: %s", today.Format(time.DateOnly), today.Weekday(), text)},
	}
}

func phrasingMessages(text string, n int) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: phrasingSystem},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Write at most %d queries.\n\nQuestion: %s", n, text)},
	}
}

func webMessages(question string, hits []web.Hit) []openai.ChatCompletionMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nResults:\n", question)
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, h.Title, h.URL, h.Content)
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: webSystem},
		{Role: openai.ChatMessageRoleUser, Content: b.String()},
	}
}

func sqlMessages(question, schemaHint string) []openai.ChatCompletionMessage {
	system := sqlSystem
	if schemaHint != "" {
		system += "\n\nSchema:\n" + schemaHint
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: question},
	}
}

func answerMessages(req synthesis.Request) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: answerSystem})
	for _, t := range req.History {
		role := openai.ChatMessageRoleUser
		if t.Role == conversation.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	var b strings.Builder
	if len(req.Evidence) > 0 {
		b.WriteString("Evidence:\n")
		for _, e := range req.Evidence {
			fmt.Fprintf(&b, "[%d] (%s", e.Index, e.Item.Type)
			if e.Item.Title != "" {
				fmt.Fprintf(&b, ", %s", e.Item.Title)
			}
			if e.Item.Location != "" {
				fmt.Fprintf(&b, ", %s", e.Item.Location)
			}
			if e.Item.Timestamp != nil {
				fmt.Fprintf(&b, ", %s", e.Item.Timestamp.Format(time.DateOnly))
			}
			fmt.Fprintf(&b, ")\n%s\n\n", e.Item.Text)
		}
	}
	for _, n := range req.Notes {
		fmt.Fprintf(&b, "Note: %s\n", n)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", req.Question)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: b.String()})
	return msgs
}

func writeHistory(b *strings.Builder, turns []conversation.Turn) {
	for _, t := range turns {
		fmt.Fprintf(b, "%s: %s\n", t.Role, t.Content)
	}
}
