package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/data-moodboard/internal/activity"
	"github.com/jmehdipour/data-moodboard/internal/ai"
	"github.com/jmehdipour/data-moodboard/internal/http/middleware"
	"github.com/jmehdipour/data-moodboard/internal/metrics"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type orchestrateReq struct {
	Instruction string       `json:"instruction"`
	Mode        string       `json:"mode"`
	Canvas      model.Canvas `json:"canvas"`
	DataTables  []string     `json:"data_tables"`
}

func orchestrateHandler(orch *ai.Orchestrator, act *activity.Recorder) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req orchestrateReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if len(req.Canvas.Items) > maxCanvasItems {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "too many canvas items"})
		}

		res, err := orch.Orchestrate(c.Request().Context(), ai.OrchestrateRequest{
			UserID:      userID,
			Instruction: req.Instruction,
			Mode:        req.Mode,
			Canvas:      req.Canvas,
			DataTables:  req.DataTables,
		})
		switch {
		case errors.Is(err, ai.ErrEmptyInstruction):
			metrics.AIRequestsTotal.WithLabelValues(string(ai.ModeCommand), "invalid").Inc()
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "instruction is required"})
		case errors.Is(err, ai.ErrInstructionTooLong):
			metrics.AIRequestsTotal.WithLabelValues(string(ai.ModeCommand), "invalid").Inc()
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "instruction too long"})
		case errors.Is(err, ai.ErrBadModelOutput):
			metrics.AIRequestsTotal.WithLabelValues(string(ai.ModeCommand), "bad_output").Inc()
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "invalid model output"})
		case err != nil:
			log.Errorf("orchestrate failed: %v", err)
			metrics.AIRequestsTotal.WithLabelValues(string(ai.ModeCommand), "llm_error").Inc()
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "ai provider error"})
		}

		metrics.AIRequestsTotal.WithLabelValues(string(res.Mode), "ok").Inc()
		act.Record(c.Request().Context(), userID, activity.AIRequest)

		if res.Commands == nil {
			res.Commands = []ai.Command{}
		}
		if res.Rejected == nil {
			res.Rejected = []ai.Rejected{}
		}
		return c.JSON(http.StatusOK, res)
	}
}

type chatReq struct {
	Messages []ai.Message `json:"messages"`
	Mode     string       `json:"mode"`
}

func chatHandler(chat *ai.Chat, act *activity.Recorder) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req chatReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		reply, mode, err := chat.Reply(c.Request().Context(), req.Mode, req.Messages)
		if errors.Is(err, ai.ErrInvalidMessages) {
			metrics.AIRequestsTotal.WithLabelValues(string(ai.ModeChat), "invalid").Inc()
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid messages", "description": err.Error()})
		}
		if err != nil {
			log.Errorf("chat failed: %v", err)
			metrics.AIRequestsTotal.WithLabelValues(string(ai.ModeChat), "llm_error").Inc()
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "ai provider error"})
		}

		metrics.AIRequestsTotal.WithLabelValues(string(mode), "ok").Inc()
		act.Record(c.Request().Context(), userID, activity.AIRequest)
		return c.JSON(http.StatusOK, map[string]any{"reply": reply, "mode": mode})
	}
}
