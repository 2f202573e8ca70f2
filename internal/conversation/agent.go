// Package conversation runs the AI reply pipeline for inbound chat events:
// a stateless tool-calling loop over the shop's live inventory, consumed by
// the Pub/Sub worker.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/philiathrifts/thriftbot/pkg/db/models"
	dbtypes "github.com/philiathrifts/thriftbot/pkg/db/types"
	pkgerrors "github.com/philiathrifts/thriftbot/pkg/errors"
	"github.com/philiathrifts/thriftbot/pkg/logger"
)

const searchToolName = "search_inventory"

const systemPrompt = `You are Philia, a helpful, trendy assistant for Philia Thrifts.
You sell one-of-a-kind vintage clothes.

RULES:
- NEVER invent inventory. ALWAYS use the 'search_inventory' tool.
- If the tool returns no results, say "I couldn't find that right now."
- If a user asks for size, give specific measurements (pit-to-pit), not just "Large".
- Keep messages short (under 200 chars preferred) and conversational.
- Use emojis sparingly (✨, 🧥, 🤎).`

// ChatCompleter is the slice of the OpenAI client the agent needs. The real
// *openai.Client satisfies it directly.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type inventorySearcher interface {
	SearchAvailable(ctx context.Context, query string, limit int) ([]models.InventoryItem, error)
}

// searchResult is the inventory shape surfaced to the model: enough to quote
// an item without leaking internal ids.
type searchResult struct {
	Name         string          `json:"name"`
	Price        string          `json:"price"`
	Size         string          `json:"size"`
	Measurements dbtypes.JSONMap `json:"measurements"`
}

func toSearchResults(items []models.InventoryItem) []searchResult {
	results := make([]searchResult, 0, len(items))
	for _, item := range items {
		size := ""
		if item.SizeLabel != nil {
			size = *item.SizeLabel
		}
		results = append(results, searchResult{
			Name:         item.Name,
			Price:        item.Price.String(),
			Size:         size,
			Measurements: item.Measurements,
		})
	}
	return results
}

// Agent drives a single stateless conversation turn. One completion call with
// the search tool exposed, at most one round of tool execution, then a final
// completion for the reply text.
type Agent struct {
	chat      ChatCompleter
	inventory inventorySearcher
	model     string
	logg      *logger.Logger
}

// NewAgent wires the completion client and the inventory search surface.
func NewAgent(chat ChatCompleter, inventory inventorySearcher, model string, logg *logger.Logger) (*Agent, error) {
	if chat == nil {
		return nil, errors.New("chat completer is required")
	}
	if inventory == nil {
		return nil, errors.New("inventory searcher is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("model is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Agent{
		chat:      chat,
		inventory: inventory,
		model:     model,
		logg:      logg,
	}, nil
}

// Reply produces the assistant's answer to a single user message. Completion
// and inventory failures come back as retryable dependency errors so the
// caller's retry policy can re-run the whole turn.
func (a *Agent) Reply(ctx context.Context, userText string) (string, error) {
	if strings.TrimSpace(userText) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user text is required")
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: userText},
	}

	resp, err := a.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:      a.model,
		Messages:   messages,
		Tools:      []openai.Tool{searchToolDefinition()},
		ToolChoice: "auto",
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "chat completion returned no choices")
	}

	assistant := resp.Choices[0].Message
	if len(assistant.ToolCalls) == 0 {
		return finalText(assistant.Content)
	}

	messages = append(messages, assistant)
	for _, call := range assistant.ToolCalls {
		content, err := a.executeTool(ctx, call)
		if err != nil {
			return "", err
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    content,
			ToolCallID: call.ID,
		})
	}

	final, err := a.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: messages,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "final chat completion failed")
	}
	if len(final.Choices) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "final chat completion returned no choices")
	}
	return finalText(final.Choices[0].Message.Content)
}

func (a *Agent) executeTool(ctx context.Context, call openai.ToolCall) (string, error) {
	if call.Function.Name != searchToolName {
		a.logg.Warn(ctx, fmt.Sprintf("model requested unknown tool %q", call.Function.Name))
		return `{"error": "unknown tool"}`, nil
	}

	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		a.logg.Warn(ctx, fmt.Sprintf("unparseable tool arguments: %v", err))
		return `{"error": "invalid arguments"}`, nil
	}

	logCtx := a.logg.WithField(ctx, "query", args.Query)
	items, err := a.inventory.SearchAvailable(logCtx, args.Query, 0)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "inventory search failed")
	}
	a.logg.Info(a.logg.WithField(logCtx, "results", len(items)), "inventory search executed")

	data, err := json.Marshal(toSearchResults(items))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode tool results")
	}
	return string(data), nil
}

func searchToolDefinition() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        searchToolName,
			Description: "Search for available clothes by name or description",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Search term e.g. 'vintage nike'",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

func finalText(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "chat completion returned empty text")
	}
	return trimmed, nil
}
