package mcp

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/PabloGalante/farum-companion/internal/domain"
	"github.com/PabloGalante/farum-companion/internal/observability"
)

func (s *Server) registerTools() {
	// farum_respond: one turn of the conversation.
	s.mcpServer.AddTool(
		mcplib.NewTool("farum_respond",
			mcplib.WithDescription(`Send one user message to Farum, an emotional-support companion, and get its reply.

The reply comes with the context Farum derived: emotion and intensity, intent,
conversation phase, any intervention protocol step and technique. Errors are
returned inside the context (error, errorType, errorCode) with a user-facing
message as content.`),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("user_id",
				mcplib.Description("Stable identifier of the user. Session memory and protocols are kept per user."),
				mcplib.Required(),
			),
			mcplib.WithString("content",
				mcplib.Description("The user's message."),
				mcplib.Required(),
			),
			mcplib.WithString("conversation_id",
				mcplib.Description("Optional conversation identifier, used for logging and the journal."),
			),
			mcplib.WithString("mode",
				mcplib.Description("Optional interaction mode."),
				mcplib.Enum(string(domain.ModeCheckIn), string(domain.ModeDeepDive), string(domain.ModeActionPlan)),
			),
		),
		s.handleRespond,
	)

	// farum_trends: session emotional trends of a user.
	s.mcpServer.AddTool(
		mcplib.NewTool("farum_trends",
			mcplib.WithDescription("Emotional trends of a user's current session: streaks, volatility, average intensity, dominant emotion and overall trend."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("user_id",
				mcplib.Description("Identifier of the user."),
				mcplib.Required(),
			),
		),
		s.handleTrends,
	)

	// farum_protocols: the intervention protocol catalog.
	s.mcpServer.AddTool(
		mcplib.NewTool("farum_protocols",
			mcplib.WithDescription("List the structured intervention protocols Farum can run, with their steps."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("name",
				mcplib.Description("Optional: return only this protocol."),
			),
		),
		s.handleProtocols,
	)
}

func (s *Server) handleRespond(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	userID := request.GetString("user_id", "")
	if userID == "" {
		return errorResult("user_id is required"), nil
	}

	ctx = observability.WithUserID(ctx, userID)
	var pre *domain.Context
	if mode := request.GetString("mode", ""); mode != "" {
		pre = &domain.Context{Mode: domain.InteractionMode(mode)}
	}

	resp := s.pipeline.Respond(ctx, domain.IncomingMessage{
		Content:        request.GetString("content", ""),
		UserID:         domain.UserID(userID),
		ConversationID: domain.ConversationID(request.GetString("conversation_id", "")),
	}, pre)

	if resp.Context.Error {
		s.logger.Info("farum_respond failed", "user_id", userID, "error_code", resp.Context.ErrorCode)
	}
	return jsonResult(resp), nil
}

func (s *Server) handleTrends(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	userID := request.GetString("user_id", "")
	if userID == "" {
		return errorResult("user_id is required"), nil
	}
	return jsonResult(s.pipeline.Trends(domain.UserID(userID))), nil
}

func (s *Server) handleProtocols(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	reg := s.pipeline.Protocols()
	if name := request.GetString("name", ""); name != "" {
		p, ok := reg.Get(name)
		if !ok {
			return errorResult("unknown protocol " + name), nil
		}
		return jsonResult(p), nil
	}
	return jsonResult(reg.All()), nil
}
