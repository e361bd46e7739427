package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jmehdipour/data-moodboard/internal/binding"
	"github.com/jmehdipour/data-moodboard/internal/logger"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"go.uber.org/zap"
)

const (
	MaxInstructionLen = 2000
	MaxCommands       = 20
	maxTablesInPrompt = 10
	tableSampleRows   = 3
)

var (
	ErrEmptyInstruction   = errors.New("instruction is required")
	ErrInstructionTooLong = errors.New("instruction is too long")
	ErrBadModelOutput     = errors.New("model returned malformed output")
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionOptions struct {
	Temperature float32
	JSON        bool
}

// LLM is the completion backend.
type LLM interface {
	Complete(ctx context.Context, system string, msgs []Message, opts CompletionOptions) (string, error)
}

// TableStore loads the caller's ready data tables.
type TableStore interface {
	GetMany(ctx context.Context, userID string, ids []string) ([]model.UserDataTable, error)
}

type OrchestrateRequest struct {
	UserID      string
	Instruction string
	Mode        string
	Canvas      model.Canvas
	DataTables  []string
}

// Rejected is a model command that did not pass validation.
type Rejected struct {
	Index  int             `json:"index"`
	Type   string          `json:"type,omitempty"`
	Reason string          `json:"reason"`
	Raw    json.RawMessage `json:"-"`
}

type OrchestrateResult struct {
	Mode     Mode       `json:"mode"`
	Commands []Command  `json:"commands"`
	Rejected []Rejected `json:"rejected"`
	Message  string     `json:"message"`
}

type Orchestrator struct {
	llm     LLM
	catalog *Catalog
	tables  TableStore
}

func NewOrchestrator(llm LLM, catalog *Catalog, tables TableStore) *Orchestrator {
	return &Orchestrator{llm: llm, catalog: catalog, tables: tables}
}

// Orchestrate turns a natural-language instruction into validated canvas commands.
func (o *Orchestrator) Orchestrate(ctx context.Context, req OrchestrateRequest) (*OrchestrateResult, error) {
	instr := strings.TrimSpace(req.Instruction)
	if instr == "" {
		return nil, ErrEmptyInstruction
	}
	if utf8.RuneCountInString(instr) > MaxInstructionLen {
		return nil, ErrInstructionTooLong
	}

	p := o.catalog.Get(req.Mode)
	if !p.JSON {
		// free-form modes cannot produce commands
		p = o.catalog.Get(string(ModeCommand))
	}

	var tables []model.UserDataTable
	if len(req.DataTables) > 0 && o.tables != nil {
		ids := req.DataTables
		if len(ids) > maxTablesInPrompt {
			ids = ids[:maxTablesInPrompt]
		}
		var err error
		tables, err = o.tables.GetMany(ctx, req.UserID, ids)
		if err != nil {
			return nil, fmt.Errorf("load data tables: %w", err)
		}
	}

	system, err := p.Render(promptData(req.Canvas, tables))
	if err != nil {
		return nil, err
	}

	raw, err := o.llm.Complete(ctx, system, []Message{{Role: "user", Content: instr}},
		CompletionOptions{Temperature: p.Temperature, JSON: true})
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	res, err := parseReply(raw, req.Canvas, tables)
	if err != nil {
		logger.Log.Warn("orchestrate: unparseable model output", zap.String("mode", string(p.Mode)), zap.Error(err))
		return nil, err
	}
	res.Mode = p.Mode
	return res, nil
}

type modelReply struct {
	Commands []json.RawMessage `json:"commands"`
	Message  string            `json:"message"`
}

// parseReply decodes and validates the model's JSON reply against the canvas.
func parseReply(raw string, canvas model.Canvas, tables []model.UserDataTable) (*OrchestrateResult, error) {
	var reply modelReply
	if err := json.Unmarshal([]byte(stripFences(raw)), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadModelOutput, err)
	}

	res := &OrchestrateResult{
		Commands: make([]Command, 0, len(reply.Commands)),
		Rejected: []Rejected{},
		Message:  strings.TrimSpace(reply.Message),
	}
	state := newCanvasState(canvas, tables)
	for i, rc := range reply.Commands {
		if len(res.Commands) >= MaxCommands {
			res.Rejected = append(res.Rejected, Rejected{Index: i, Reason: "too many commands"})
			continue
		}
		cmd, err := DecodeCommand(rc)
		if err == nil {
			err = cmd.validate(state)
		}
		if err != nil {
			res.Rejected = append(res.Rejected, Rejected{Index: i, Type: peekType(rc), Reason: err.Error(), Raw: rc})
			continue
		}
		bindFields(cmd, state)
		res.Commands = append(res.Commands, cmd)
	}
	return res, nil
}

// bindFields fills missing chart fields from the referenced table.
func bindFields(cmd Command, s *canvasState) {
	switch c := cmd.(type) {
	case *AddChart:
		if t, ok := s.tables[c.DataTableID]; ok {
			f := binding.Resolve(t.Data, c.XField, c.YField)
			c.XField, c.YField = f.X, f.Y
		}
	case *BindData:
		if t, ok := s.tables[c.DataTableID]; ok {
			f := binding.Resolve(t.Data, c.XField, c.YField)
			c.XField, c.YField = f.X, f.Y
		}
	}
}

func peekType(raw json.RawMessage) string {
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(raw, &head)
	return head.Type
}

// stripFences removes a markdown code fence around the reply, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func promptData(c model.Canvas, tables []model.UserDataTable) PromptData {
	type itemView struct {
		ID     string            `json:"id"`
		Type   model.ElementType `json:"type"`
		X      float64           `json:"x"`
		Y      float64           `json:"y"`
		Width  float64           `json:"w"`
		Height float64           `json:"h"`
		Title  any               `json:"title,omitempty"`
	}
	items := make([]itemView, 0, len(c.Items))
	for _, it := range c.Items {
		v := itemView{ID: it.ID, Type: it.Type, X: it.X, Y: it.Y, Width: it.Width, Height: it.Height}
		if t, ok := it.Props["title"]; ok {
			v.Title = t
		} else if t, ok := it.Props["text"]; ok {
			v.Title = t
		}
		items = append(items, v)
	}
	canvasJSON, _ := json.Marshal(items)

	type tableView struct {
		ID      string         `json:"id"`
		Name    string         `json:"name"`
		Source  string         `json:"source"`
		Columns []model.Column `json:"columns"`
		Sample  [][]any        `json:"sample"`
	}
	views := make([]tableView, 0, len(tables))
	for _, t := range tables {
		sample := t.Data.Rows
		if len(sample) > tableSampleRows {
			sample = sample[:tableSampleRows]
		}
		views = append(views, tableView{ID: t.ID, Name: t.Name, Source: t.Source, Columns: t.Data.Columns, Sample: sample})
	}
	tablesText := "none"
	if len(views) > 0 {
		b, _ := json.Marshal(views)
		tablesText = string(b)
	}

	bg := c.Background
	if bg == "" {
		bg = "default"
	}
	return PromptData{
		Commands:   CommandShapes(),
		Canvas:     string(canvasJSON),
		ItemCount:  len(c.Items),
		Background: bg,
		Tables:     tablesText,
	}
}
