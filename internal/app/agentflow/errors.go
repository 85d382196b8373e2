package agentflow

import (
	"context"
	"errors"

	"github.com/PabloGalante/farum-companion/internal/domain"
	"github.com/PabloGalante/farum-companion/internal/observability"
)

// Validation codes.
const (
	CodeEmptyMessage   = "EMPTY_MESSAGE"
	CodeMessageTooLong = "MESSAGE_TOO_LONG"
	CodeMissingUser    = "MISSING_USER"
)

// User-facing messages per failure.
const (
	MsgEmptyMessage = "Parece que tu mensaje llegó vacío. ¿Querés contarme qué te está pasando?"
	MsgTooLong      = "Tu mensaje es muy largo para que pueda procesarlo bien. ¿Podés resumirlo un poco?"
	MsgInvalid      = "No pude procesar tu mensaje. ¿Podés intentarlo de nuevo?"
	MsgConfig       = "Hay un problema de configuración del servicio y no puedo responder ahora. Ya lo estamos revisando."
	MsgRetryLater   = "Estoy recibiendo muchas consultas en este momento. Por favor, intentá de nuevo en unos minutos."
	MsgDefault      = "Lo siento, algo salió mal de mi lado. ¿Podés intentar de nuevo?"
)

// UserMessage returns the fixed Spanish text shown for err.
func UserMessage(err error) string {
	var e *domain.Error
	if !errors.As(err, &e) {
		return MsgDefault
	}
	switch e.Kind {
	case domain.KindValidation:
		switch e.Code {
		case CodeEmptyMessage:
			return MsgEmptyMessage
		case CodeMessageTooLong:
			return MsgTooLong
		default:
			return MsgInvalid
		}
	case domain.KindAuthentication:
		return MsgConfig
	case domain.KindRateLimit, domain.KindServer:
		return MsgRetryLater
	default:
		return MsgDefault
	}
}

// failure turns err into an error response and records it.
func (o *Orchestrator) failure(ctx context.Context, err error) domain.Response {
	var e *domain.Error
	if !errors.As(err, &e) {
		e = domain.NewUnknownError(err)
	}

	o.usage.errors.Add(1)
	o.metrics.RecordFailure(ctx, string(e.Kind))
	if e.Kind != domain.KindValidation {
		observability.LoggerFromContext(ctx).Error("respond failed",
			"error_type", e.Kind,
			"error_code", e.Code,
			"error", err,
		)
	}

	return domain.Response{
		Content: UserMessage(e),
		Context: domain.ResponseContext{
			Error:        true,
			ErrorType:    string(e.Kind),
			ErrorCode:    e.Code,
			ErrorMessage: e.Message,
			Timestamp:    o.now().UTC(),
		},
	}
}
