package ai

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState() *canvasState {
	canvas := model.Canvas{Items: []model.CanvasItem{
		{ID: "t1", Type: model.ElementText},
		{ID: "c1", Type: model.ElementChart},
	}}
	return newCanvasState(canvas, []model.UserDataTable{{ID: "tbl1"}})
}

func decodeAndValidate(t *testing.T, s *canvasState, raw string) (Command, error) {
	t.Helper()
	cmd, err := DecodeCommand(json.RawMessage(raw))
	if err != nil {
		return nil, err
	}
	return cmd, cmd.validate(s)
}

func TestDecodeCommandDispatch(t *testing.T) {
	cmd, err := DecodeCommand(json.RawMessage(`{"type":"Move_Element","id":"t1","x":10,"y":20}`))
	require.NoError(t, err)
	mv, ok := cmd.(*MoveElement)
	require.True(t, ok)
	assert.Equal(t, CmdMoveElement, mv.Type)
	assert.Equal(t, 10.0, *mv.X)

	_, err = DecodeCommand(json.RawMessage(`{"type":"drop_database"}`))
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = DecodeCommand(json.RawMessage(`"not an object"`))
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestCommandValidation(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"add text", `{"type":"add_element","element":{"type":"text","props":{"text":"hi"}}}`, nil},
		{"add bad element type", `{"type":"add_element","element":{"type":"video"}}`, ErrInvalidCommand},
		{"add bad color", `{"type":"add_element","element":{"type":"shape","props":{"color":"red"}}}`, ErrInvalidCommand},
		{"update unknown id", `{"type":"update_element","id":"zz","props":{"text":"x"}}`, ErrUnknownElement},
		{"update without props", `{"type":"update_element","id":"t1"}`, ErrInvalidCommand},
		{"move missing y", `{"type":"move_element","id":"t1","x":1}`, ErrInvalidCommand},
		{"resize negative", `{"type":"resize_element","id":"t1","width":-1,"height":10}`, ErrInvalidCommand},
		{"chart ok", `{"type":"add_chart","chart_type":"BAR","data_table_id":"tbl1"}`, nil},
		{"chart bad type", `{"type":"add_chart","chart_type":"radar"}`, ErrInvalidCommand},
		{"chart unknown table", `{"type":"add_chart","chart_type":"line","data_table_id":"nope"}`, ErrUnknownTable},
		{"bind ok", `{"type":"bind_data","id":"c1","data_table_id":"tbl1"}`, nil},
		{"bind no table", `{"type":"bind_data","id":"c1"}`, ErrInvalidCommand},
		{"background short hex", `{"type":"set_background","color":"#fff"}`, nil},
		{"background bad", `{"type":"set_background","color":"#ffff"}`, ErrInvalidCommand},
		{"arrange grid", `{"type":"arrange","layout":"grid"}`, nil},
		{"arrange bad", `{"type":"arrange","layout":"spiral"}`, ErrInvalidCommand},
		{"select", `{"type":"select_element","id":"c1"}`, nil},
		{"select empty id", `{"type":"select_element"}`, ErrInvalidCommand},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeAndValidate(t, testState(), tc.raw)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestBatchStateTracksCreatedAndDeletedIDs(t *testing.T) {
	s := testState()

	_, err := decodeAndValidate(t, s, `{"type":"add_element","element":{"id":"n1","type":"shape"}}`)
	require.NoError(t, err)
	_, err = decodeAndValidate(t, s, `{"type":"move_element","id":"n1","x":5,"y":5}`)
	require.NoError(t, err)

	_, err = decodeAndValidate(t, s, `{"type":"delete_element","id":"t1"}`)
	require.NoError(t, err)
	_, err = decodeAndValidate(t, s, `{"type":"select_element","id":"t1"}`)
	assert.ErrorIs(t, err, ErrUnknownElement)

	_, err = decodeAndValidate(t, s, `{"type":"clear_canvas"}`)
	require.NoError(t, err)
	_, err = decodeAndValidate(t, s, `{"type":"select_element","id":"c1"}`)
	assert.ErrorIs(t, err, ErrUnknownElement)
}

func TestAddElementDefaults(t *testing.T) {
	cmd, err := decodeAndValidate(t, testState(), `{"type":"add_element","element":{"type":"image"}}`)
	require.NoError(t, err)
	el := cmd.(*AddElement).Element
	assert.NotEmpty(t, el.ID)
	assert.Equal(t, float64(defaultWidth), el.Width)
	assert.Equal(t, float64(defaultHeight), el.Height)

	_, err = decodeAndValidate(t, testState(), `{"type":"add_element","element":{"id":"t1","type":"text"}}`)
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestAddChartTitleTruncatesByRune(t *testing.T) {
	title := strings.Repeat("é", maxTitleLen+5)
	raw, err := json.Marshal(map[string]any{"type": "add_chart", "chart_type": "bar", "title": title})
	require.NoError(t, err)

	cmd, err := decodeAndValidate(t, testState(), string(raw))
	require.NoError(t, err)
	got := cmd.(*AddChart).Title
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxTitleLen, utf8.RuneCountInString(got))
}
