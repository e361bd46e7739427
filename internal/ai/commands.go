package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/util"
)

type CommandType string

const (
	CmdAddElement    CommandType = "add_element"
	CmdUpdateElement CommandType = "update_element"
	CmdDeleteElement CommandType = "delete_element"
	CmdMoveElement   CommandType = "move_element"
	CmdResizeElement CommandType = "resize_element"
	CmdAddChart      CommandType = "add_chart"
	CmdBindData      CommandType = "bind_data"
	CmdSetBackground CommandType = "set_background"
	CmdArrange       CommandType = "arrange"
	CmdClearCanvas   CommandType = "clear_canvas"
	CmdSelectElement CommandType = "select_element"
)

// commandShapes documents each command for the prompt, in allow-list order.
var commandShapes = []struct {
	Type  CommandType
	Shape string
}{
	{CmdAddElement, `{"type":"add_element","element":{"type":"text|shape|image|chart","x":0,"y":0,"width":200,"height":120,"props":{}}}`},
	{CmdUpdateElement, `{"type":"update_element","id":"<id>","props":{}}`},
	{CmdDeleteElement, `{"type":"delete_element","id":"<id>"}`},
	{CmdMoveElement, `{"type":"move_element","id":"<id>","x":0,"y":0}`},
	{CmdResizeElement, `{"type":"resize_element","id":"<id>","width":200,"height":120}`},
	{CmdAddChart, `{"type":"add_chart","chart_type":"bar","title":"...","data_table_id":"<table id>","x_field":"...","y_field":"..."}`},
	{CmdBindData, `{"type":"bind_data","id":"<chart id>","data_table_id":"<table id>","x_field":"...","y_field":"..."}`},
	{CmdSetBackground, `{"type":"set_background","color":"#ffffff"}`},
	{CmdArrange, `{"type":"arrange","layout":"grid|row|column"}`},
	{CmdClearCanvas, `{"type":"clear_canvas"}`},
	{CmdSelectElement, `{"type":"select_element","id":"<id>"}`},
}

// CommandShapes returns the allow-list rendered for prompts.
func CommandShapes() []string {
	out := make([]string, 0, len(commandShapes))
	for _, c := range commandShapes {
		out = append(out, c.Shape)
	}
	return out
}

func allowed(t CommandType) bool {
	for _, c := range commandShapes {
		if c.Type == t {
			return true
		}
	}
	return false
}

var (
	ErrUnknownCommand = errors.New("unknown command type")
	ErrInvalidCommand = errors.New("invalid command")
	ErrUnknownElement = errors.New("unknown element id")
	ErrUnknownTable   = errors.New("unknown data table")
)

var chartTypes = map[string]bool{
	"bar": true, "line": true, "pie": true, "area": true, "scatter": true, "table": true, "kpi": true,
}

var (
	colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
	layouts      = map[string]bool{"grid": true, "row": true, "column": true}
)

const (
	defaultWidth  = 240
	defaultHeight = 160
	maxTitleLen   = 200
)

// Command is one validated canvas mutation. Concrete types marshal with their "type" tag.
type Command interface {
	Kind() CommandType
	validate(s *canvasState) error
}

type AddElement struct {
	Type    CommandType      `json:"type"`
	Element model.CanvasItem `json:"element"`
}

type UpdateElement struct {
	Type  CommandType    `json:"type"`
	ID    string         `json:"id"`
	Props map[string]any `json:"props"`
}

type DeleteElement struct {
	Type CommandType `json:"type"`
	ID   string      `json:"id"`
}

type MoveElement struct {
	Type CommandType `json:"type"`
	ID   string      `json:"id"`
	X    *float64    `json:"x"`
	Y    *float64    `json:"y"`
}

type ResizeElement struct {
	Type   CommandType `json:"type"`
	ID     string      `json:"id"`
	Width  *float64    `json:"width"`
	Height *float64    `json:"height"`
}

type AddChart struct {
	Type        CommandType `json:"type"`
	ID          string      `json:"id"`
	ChartType   string      `json:"chart_type"`
	Title       string      `json:"title,omitempty"`
	DataTableID string      `json:"data_table_id,omitempty"`
	XField      string      `json:"x_field,omitempty"`
	YField      string      `json:"y_field,omitempty"`
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	Width       float64     `json:"width"`
	Height      float64     `json:"height"`
}

type BindData struct {
	Type        CommandType `json:"type"`
	ID          string      `json:"id"`
	DataTableID string      `json:"data_table_id"`
	XField      string      `json:"x_field,omitempty"`
	YField      string      `json:"y_field,omitempty"`
}

type SetBackground struct {
	Type  CommandType `json:"type"`
	Color string      `json:"color"`
}

type Arrange struct {
	Type   CommandType `json:"type"`
	Layout string      `json:"layout"`
}

type ClearCanvas struct {
	Type CommandType `json:"type"`
}

type SelectElement struct {
	Type CommandType `json:"type"`
	ID   string      `json:"id"`
}

func (AddElement) Kind() CommandType    { return CmdAddElement }
func (UpdateElement) Kind() CommandType { return CmdUpdateElement }
func (DeleteElement) Kind() CommandType { return CmdDeleteElement }
func (MoveElement) Kind() CommandType   { return CmdMoveElement }
func (ResizeElement) Kind() CommandType { return CmdResizeElement }
func (AddChart) Kind() CommandType      { return CmdAddChart }
func (BindData) Kind() CommandType      { return CmdBindData }
func (SetBackground) Kind() CommandType { return CmdSetBackground }
func (Arrange) Kind() CommandType       { return CmdArrange }
func (ClearCanvas) Kind() CommandType   { return CmdClearCanvas }
func (SelectElement) Kind() CommandType { return CmdSelectElement }

// canvasState tracks which ids are addressable while a batch is validated.
type canvasState struct {
	ids    map[string]bool
	tables map[string]model.UserDataTable
}

func newCanvasState(c model.Canvas, tables []model.UserDataTable) *canvasState {
	s := &canvasState{
		ids:    make(map[string]bool, len(c.Items)),
		tables: make(map[string]model.UserDataTable, len(tables)),
	}
	for _, it := range c.Items {
		s.ids[it.ID] = true
	}
	for _, t := range tables {
		s.tables[t.ID] = t
	}
	return s
}

func (s *canvasState) known(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidCommand)
	}
	if !s.ids[id] {
		return fmt.Errorf("%w: %s", ErrUnknownElement, id)
	}
	return nil
}

func (s *canvasState) table(id string) error {
	if id == "" {
		return nil
	}
	if _, ok := s.tables[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, id)
	}
	return nil
}

func (c *AddElement) validate(s *canvasState) error {
	el := &c.Element
	if !el.Type.Valid() {
		return fmt.Errorf("%w: element type %q", ErrInvalidCommand, el.Type)
	}
	if el.ID == "" {
		el.ID = util.New()
	}
	if s.ids[el.ID] {
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidCommand, el.ID)
	}
	if el.Width <= 0 {
		el.Width = defaultWidth
	}
	if el.Height <= 0 {
		el.Height = defaultHeight
	}
	if el.Type == model.ElementChart {
		if ct, ok := el.Props["chart_type"].(string); ok && !chartTypes[ct] {
			return fmt.Errorf("%w: chart type %q", ErrInvalidCommand, ct)
		}
	}
	if bg, ok := el.Props["color"].(string); ok && !colorPattern.MatchString(bg) {
		return fmt.Errorf("%w: color %q", ErrInvalidCommand, bg)
	}
	s.ids[el.ID] = true
	return nil
}

func (c *UpdateElement) validate(s *canvasState) error {
	if err := s.known(c.ID); err != nil {
		return err
	}
	if len(c.Props) == 0 {
		return fmt.Errorf("%w: props are required", ErrInvalidCommand)
	}
	if col, ok := c.Props["color"].(string); ok && !colorPattern.MatchString(col) {
		return fmt.Errorf("%w: color %q", ErrInvalidCommand, col)
	}
	return nil
}

func (c *DeleteElement) validate(s *canvasState) error {
	if err := s.known(c.ID); err != nil {
		return err
	}
	delete(s.ids, c.ID)
	return nil
}

func (c *MoveElement) validate(s *canvasState) error {
	if err := s.known(c.ID); err != nil {
		return err
	}
	if c.X == nil || c.Y == nil {
		return fmt.Errorf("%w: x and y are required", ErrInvalidCommand)
	}
	return nil
}

func (c *ResizeElement) validate(s *canvasState) error {
	if err := s.known(c.ID); err != nil {
		return err
	}
	if c.Width == nil || c.Height == nil || *c.Width <= 0 || *c.Height <= 0 {
		return fmt.Errorf("%w: width and height must be positive", ErrInvalidCommand)
	}
	return nil
}

func (c *AddChart) validate(s *canvasState) error {
	c.ChartType = strings.ToLower(strings.TrimSpace(c.ChartType))
	if !chartTypes[c.ChartType] {
		return fmt.Errorf("%w: chart type %q", ErrInvalidCommand, c.ChartType)
	}
	if utf8.RuneCountInString(c.Title) > maxTitleLen {
		c.Title = string([]rune(c.Title)[:maxTitleLen])
	}
	if err := s.table(c.DataTableID); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = util.New()
	}
	if s.ids[c.ID] {
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidCommand, c.ID)
	}
	if c.Width <= 0 {
		c.Width = defaultWidth * 2
	}
	if c.Height <= 0 {
		c.Height = defaultHeight * 2
	}
	s.ids[c.ID] = true
	return nil
}

func (c *BindData) validate(s *canvasState) error {
	if err := s.known(c.ID); err != nil {
		return err
	}
	if c.DataTableID == "" {
		return fmt.Errorf("%w: data_table_id is required", ErrInvalidCommand)
	}
	return s.table(c.DataTableID)
}

func (c *SetBackground) validate(*canvasState) error {
	if !colorPattern.MatchString(c.Color) {
		return fmt.Errorf("%w: color %q", ErrInvalidCommand, c.Color)
	}
	return nil
}

func (c *Arrange) validate(*canvasState) error {
	if !layouts[c.Layout] {
		return fmt.Errorf("%w: layout %q", ErrInvalidCommand, c.Layout)
	}
	return nil
}

func (c *ClearCanvas) validate(s *canvasState) error {
	clear(s.ids)
	return nil
}

func (c *SelectElement) validate(s *canvasState) error {
	return s.known(c.ID)
}

// DecodeCommand reads one raw command, dispatching on its "type" field.
func DecodeCommand(raw json.RawMessage) (Command, error) {
	var head struct {
		Type CommandType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	head.Type = CommandType(strings.ToLower(strings.TrimSpace(string(head.Type))))
	if !allowed(head.Type) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, head.Type)
	}

	var cmd Command
	switch head.Type {
	case CmdAddElement:
		cmd = &AddElement{}
	case CmdUpdateElement:
		cmd = &UpdateElement{}
	case CmdDeleteElement:
		cmd = &DeleteElement{}
	case CmdMoveElement:
		cmd = &MoveElement{}
	case CmdResizeElement:
		cmd = &ResizeElement{}
	case CmdAddChart:
		cmd = &AddChart{}
	case CmdBindData:
		cmd = &BindData{}
	case CmdSetBackground:
		cmd = &SetBackground{}
	case CmdArrange:
		cmd = &Arrange{}
	case CmdClearCanvas:
		cmd = &ClearCanvas{}
	case CmdSelectElement:
		cmd = &SelectElement{}
	}
	if err := json.Unmarshal(raw, cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	setType(cmd, head.Type)
	return cmd, nil
}

// setType normalizes the tag so responses always carry the canonical lower-case type.
func setType(cmd Command, t CommandType) {
	switch c := cmd.(type) {
	case *AddElement:
		c.Type = t
	case *UpdateElement:
		c.Type = t
	case *DeleteElement:
		c.Type = t
	case *MoveElement:
		c.Type = t
	case *ResizeElement:
		c.Type = t
	case *AddChart:
		c.Type = t
	case *BindData:
		c.Type = t
	case *SetBackground:
		c.Type = t
	case *Arrange:
		c.Type = t
	case *ClearCanvas:
		c.Type = t
	case *SelectElement:
		c.Type = t
	}
}
