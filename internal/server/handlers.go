package server

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/jamiechicago312/agent-sdk/internal/conversation"
	"github.com/jamiechicago312/agent-sdk/pkg/secrets"
)

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleStartConversation handles POST /conversations.
func (s *Server) handleStartConversation(c *echo.Context) error {
	var req StartConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := conversation.PolicyByName(req.ConfirmationPolicy); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	ctx := c.Request().Context()
	conv, err := s.factory(ctx, req)
	if err != nil {
		return mapError(err)
	}

	s.mu.Lock()
	s.conversations[conv.ID()] = conv
	s.mu.Unlock()

	if req.InitialMessage != "" {
		msg := SendMessageRequest{Content: req.InitialMessage}
		if err := conv.SendMessage(ctx, msg.Message()); err != nil {
			return mapError(err)
		}
	}

	s.logger.Info("conversation started", "conversation_id", conv.ID())
	return c.JSON(http.StatusCreated, ConversationResponse{
		ConversationID: conv.ID(),
		State:          conv.Snapshot(),
	})
}

// handleListConversations handles GET /conversations.
func (s *Server) handleListConversations(c *echo.Context) error {
	order := c.QueryParam("sort")
	switch order {
	case "", SortCreatedAt, SortCreatedAtDesc, SortUpdatedAt, SortUpdatedAtDesc:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid sort order")
	}

	page := 1
	if v := c.QueryParam("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	pageSize := 25
	if v := c.QueryParam("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 && ps <= 100 {
			pageSize = ps
		}
	}

	states := s.snapshots(order)
	total := len(states)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := min(start+pageSize, total)

	return c.JSON(http.StatusOK, ConversationPage{
		Conversations: states[start:end],
		Page:          page,
		PageSize:      pageSize,
		Total:         total,
	})
}

// handleGetConversation handles GET /conversations/:id.
func (s *Server) handleGetConversation(c *echo.Context) error {
	conv, err := s.lookup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ConversationResponse{
		ConversationID: conv.ID(),
		State:          conv.Snapshot(),
	})
}

// handleCloseConversation handles DELETE /conversations/:id.
func (s *Server) handleCloseConversation(c *echo.Context) error {
	id := c.Param("id")
	conv, err := s.lookup(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if err := conv.Close(); err != nil {
		return mapError(err)
	}

	s.mu.Lock()
	delete(s.conversations, id)
	delete(s.secrets, id)
	s.mu.Unlock()

	return c.NoContent(http.StatusNoContent)
}

// handleSendMessage handles POST /conversations/:id/messages.
func (s *Server) handleSendMessage(c *echo.Context) error {
	conv, err := s.lookup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Content == "" && len(req.ImageURLs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}

	if err := conv.SendMessage(c.Request().Context(), req.Message()); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, ConversationResponse{
		ConversationID: conv.ID(),
		State:          conv.Snapshot(),
	})
}

// handleRun handles POST /conversations/:id/run. It executes the run
// loop until the next checkpoint (finish, pause, confirmation, or a
// terminal error event) and returns the resulting state.
func (s *Server) handleRun(c *echo.Context) error {
	conv, err := s.lookup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if err := conv.Run(c.Request().Context()); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, ConversationResponse{
		ConversationID: conv.ID(),
		State:          conv.Snapshot(),
	})
}

// handleConfirm handles POST /conversations/:id/confirm.
func (s *Server) handleConfirm(c *echo.Context) error {
	conv, err := s.lookup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	var req ConfirmationResponseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := conv.RespondToConfirmation(c.Request().Context(), req.Accept, req.Reason); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, ConversationResponse{
		ConversationID: conv.ID(),
		State:          conv.Snapshot(),
	})
}

// handlePause handles POST /conversations/:id/pause. The pause takes
// effect at the running loop's next checkpoint.
func (s *Server) handlePause(c *echo.Context) error {
	conv, err := s.lookup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	conv.Pause()
	return c.JSON(http.StatusOK, ConversationResponse{
		ConversationID: conv.ID(),
		State:          conv.Snapshot(),
	})
}

// handleListEvents handles GET /conversations/:id/events.
func (s *Server) handleListEvents(c *echo.Context) error {
	conv, err := s.lookup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	order := c.QueryParam("order")
	switch order {
	case "", OrderTimestamp, OrderTimestampDesc:
	default:
		return echo.NewHTTPError(http.StatusBadRequest,
			"invalid order: must be TIMESTAMP or TIMESTAMP_DESC")
	}
	from := 0
	if v := c.QueryParam("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from offset")
		}
		from = n
	}
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}

	log, err := conv.Events(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	total := len(log)
	if order == OrderTimestampDesc {
		for i, j := 0, len(log)-1; i < j; i, j = i+1, j-1 {
			log[i], log[j] = log[j], log[i]
		}
	}
	if from > total {
		from = total
	}
	end := min(from+limit, total)

	return c.JSON(http.StatusOK, EventPage{
		Events: log[from:end],
		From:   from,
		Limit:  limit,
		Total:  total,
	})
}

// handleUpdateSecrets handles PUT /conversations/:id/secrets. Values
// are held server-side for tool environments and never serialized back.
func (s *Server) handleUpdateSecrets(c *echo.Context) error {
	id := c.Param("id")
	if _, err := s.lookup(c.Request().Context(), id); err != nil {
		return err
	}
	// Bind the body only: echo's composite Bind also runs path-value
	// binding, which cannot target a map with non-string value types.
	var req map[string]secrets.Secret
	if err := echo.BindBody(c, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s.mu.Lock()
	store := s.secrets[id]
	if store == nil {
		store = map[string]secrets.Secret{}
		s.secrets[id] = store
	}
	for k, v := range req {
		store[k] = v
	}
	count := len(store)
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]int{"secrets": count})
}

// handleSetConfirmationPolicy handles PUT /conversations/:id/confirmation-policy.
func (s *Server) handleSetConfirmationPolicy(c *echo.Context) error {
	conv, err := s.lookup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	var req SetConfirmationPolicyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	policy, err := conversation.PolicyByName(req.Policy)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	conv.SetConfirmationPolicy(policy)
	return c.JSON(http.StatusOK, ConversationResponse{
		ConversationID: conv.ID(),
		State:          conv.Snapshot(),
	})
}
