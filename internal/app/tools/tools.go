package tools

import (
	"context"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

// ToolContext carries who a side effect is for.
type ToolContext struct {
	UserID         domain.UserID
	ConversationID domain.ConversationID
	RequestID      string
}

// Tool is a named side effect the pipeline can invoke with loosely typed
// input, so the same tool can be driven by the orchestrator or by an
// external caller.
type Tool interface {
	Name() string
	Call(ctx context.Context, tctx ToolContext, input map[string]any) (map[string]any, error)
}

// Func adapts a function to Tool.
type Func struct {
	ToolName string
	Fn       func(ctx context.Context, tctx ToolContext, input map[string]any) (map[string]any, error)
}

func (f Func) Name() string { return f.ToolName }

func (f Func) Call(ctx context.Context, tctx ToolContext, input map[string]any) (map[string]any, error) {
	return f.Fn(ctx, tctx, input)
}
