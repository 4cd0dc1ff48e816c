package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"
)

// OpenAIConfig configures the OpenAI-backed client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAI implements Client with the OpenAI Assistants and Chat Completions APIs.
type OpenAI struct {
	client openai.Client
	model  string
}

var _ Client = (*OpenAI)(nil)

// NewOpenAI builds a client with configuration from cfg. extra options are
// applied after the ones derived from cfg.
func NewOpenAI(cfg OpenAIConfig, extra ...option.RequestOption) *OpenAI {
	opts := []option.RequestOption{}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	opts = append(opts, extra...)
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

func (c *OpenAI) CreateAssistant(ctx context.Context, spec AssistantSpec) (Assistant, error) {
	model := spec.Model
	if model == "" {
		model = c.model
	}
	params := openai.BetaAssistantNewParams{
		Model:        openai.ChatModel(model),
		Name:         openai.String(spec.Name),
		Description:  openai.String(spec.Description),
		Instructions: openai.String(spec.Instructions),
	}
	for _, tool := range spec.Tools {
		switch tool {
		case ToolFileSearch:
			params.Tools = append(params.Tools, openai.AssistantToolUnionParam{OfFileSearch: &openai.FileSearchToolParam{}})
		case ToolCodeInterpreter:
			params.Tools = append(params.Tools, openai.AssistantToolUnionParam{OfCodeInterpreter: &openai.CodeInterpreterToolParam{}})
		default:
			return Assistant{}, Wrap("assistants.create", fmt.Errorf("unsupported tool %q", tool))
		}
	}

	created, err := c.client.Beta.Assistants.New(ctx, params)
	if err != nil {
		return Assistant{}, Wrap("assistants.create", err)
	}
	return toAssistant(*created), nil
}

func (c *OpenAI) ListAssistants(ctx context.Context) ([]Assistant, error) {
	iter := c.client.Beta.Assistants.ListAutoPaging(ctx, openai.BetaAssistantListParams{
		Limit: openai.Int(100),
	})
	var out []Assistant
	for iter.Next() {
		out = append(out, toAssistant(iter.Current()))
	}
	if err := iter.Err(); err != nil {
		return nil, Wrap("assistants.list", err)
	}
	return out, nil
}

func (c *OpenAI) DeleteAssistant(ctx context.Context, assistantID string) error {
	if _, err := c.client.Beta.Assistants.Delete(ctx, assistantID); err != nil {
		return Wrap("assistants.delete", err)
	}
	return nil
}

func (c *OpenAI) CreateThread(ctx context.Context) (Thread, error) {
	thread, err := c.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return Thread{}, Wrap("threads.create", err)
	}
	return Thread{ID: thread.ID}, nil
}

func (c *OpenAI) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := c.client.Beta.Threads.Delete(ctx, threadID); err != nil {
		return Wrap("threads.delete", err)
	}
	return nil
}

func (c *OpenAI) CreateMessage(ctx context.Context, threadID string, role Role, content string) (Message, error) {
	msg, err := c.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRole(role),
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(content),
		},
	})
	if err != nil {
		return Message{}, Wrap("messages.create", err)
	}
	return toMessage(*msg), nil
}

func (c *OpenAI) ListMessages(ctx context.Context, threadID string, order Order) ([]Message, error) {
	iter := c.client.Beta.Threads.Messages.ListAutoPaging(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrder(order),
	})
	var out []Message
	for iter.Next() {
		out = append(out, toMessage(iter.Current()))
	}
	if err := iter.Err(); err != nil {
		return nil, Wrap("messages.list", err)
	}
	return out, nil
}

func (c *OpenAI) CreateRun(ctx context.Context, threadID, assistantID string) (Run, error) {
	run, err := c.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		return Run{}, Wrap("runs.create", err)
	}
	return toRun(*run), nil
}

func (c *OpenAI) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	run, err := c.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return Run{}, Wrap("runs.retrieve", err)
	}
	return toRun(*run), nil
}

// UploadFile sends file with the assistants purpose. Readers exposing Name()
// (os.File, afero.File) keep their base name as the remote file name.
func (c *OpenAI) UploadFile(ctx context.Context, file io.Reader) (File, error) {
	obj, err := c.client.Files.New(ctx, openai.FileNewParams{
		File:    file,
		Purpose: openai.FilePurposeAssistants,
	})
	if err != nil {
		return File{}, Wrap("files.create", err)
	}
	return File{ID: obj.ID, Name: obj.Filename, Bytes: obj.Bytes}, nil
}

// AttachFile adds fileID to the vector store behind the assistant's
// file_search tool. An assistant holds at most one store: the first
// attachment creates it, later ones add files to it.
func (c *OpenAI) AttachFile(ctx context.Context, assistantID, fileID string) error {
	asst, err := c.client.Beta.Assistants.Get(ctx, assistantID)
	if err != nil {
		return Wrap("assistants.retrieve", err)
	}
	if ids := asst.ToolResources.FileSearch.VectorStoreIDs; len(ids) > 0 {
		_, err := c.client.VectorStores.Files.New(ctx, ids[0], openai.VectorStoreFileNewParams{FileID: fileID})
		if err != nil {
			return Wrap("vector_stores.files.create", err)
		}
		return nil
	}

	store, err := c.client.VectorStores.New(ctx, openai.VectorStoreNewParams{
		Name:    openai.String("anbud-" + assistantID),
		FileIDs: []string{fileID},
	})
	if err != nil {
		return Wrap("vector_stores.create", err)
	}
	_, err = c.client.Beta.Assistants.Update(ctx, assistantID, openai.BetaAssistantUpdateParams{
		ToolResources: openai.BetaAssistantUpdateParamsToolResources{
			FileSearch: openai.BetaAssistantUpdateParamsToolResourcesFileSearch{
				VectorStoreIDs: []string{store.ID},
			},
		},
	})
	if err != nil {
		return Wrap("assistants.update", err)
	}
	return nil
}

func (c *OpenAI) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, c.completionParams(req))
	if err != nil {
		return "", Wrap("chat.completions.create", err)
	}
	if len(completion.Choices) == 0 {
		return "", Wrap("chat.completions.create", errors.New("empty completion choices"))
	}
	return completion.Choices[0].Message.Content, nil
}

func (c *OpenAI) StreamCompletion(ctx context.Context, req CompletionRequest) (FragmentStream, error) {
	return &chunkStream{stream: c.client.Chat.Completions.NewStreaming(ctx, c.completionParams(req))}, nil
}

func (c *OpenAI) completionParams(req CompletionRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

// chunkStream adapts an SSE chat completion stream to FragmentStream.
type chunkStream struct {
	stream  *ssestream.Stream[openai.ChatCompletionChunk]
	current string
}

func (s *chunkStream) Next() bool {
	if !s.stream.Next() {
		return false
	}
	chunk := s.stream.Current()
	s.current = ""
	if len(chunk.Choices) > 0 {
		s.current = chunk.Choices[0].Delta.Content
	}
	return true
}

func (s *chunkStream) Fragment() string { return s.current }

func (s *chunkStream) Err() error {
	return Wrap("chat.completions.stream", s.stream.Err())
}

func (s *chunkStream) Close() error { return s.stream.Close() }

func toAssistant(a openai.Assistant) Assistant {
	return Assistant{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		Model:       a.Model,
		CreatedAt:   time.Unix(a.CreatedAt, 0),
	}
}

func toMessage(m openai.Message) Message {
	var sb strings.Builder
	for _, part := range m.Content {
		if part.Type == "text" {
			sb.WriteString(part.Text.Value)
		}
	}
	return Message{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		Role:      Role(m.Role),
		Content:   sb.String(),
		CreatedAt: time.Unix(m.CreatedAt, 0),
	}
}

func toRun(r openai.Run) Run {
	return Run{
		ID:          r.ID,
		ThreadID:    r.ThreadID,
		AssistantID: r.AssistantID,
		Status:      RunStatus(r.Status),
	}
}
