package ports

import (
	"context"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// DecisionRecorder persiste el rastro de cada evaluación y de cada orden.
type DecisionRecorder interface {
	// RecordDecision guarda la traza de una evaluación de mercado.
	RecordDecision(ctx context.Context, trace domain.DecisionTrace) error

	// RecordOrderEvent guarda un PLACE o CANCEL con su razón y resultado.
	RecordOrderEvent(ctx context.Context, event domain.OrderEvent) error

	// RecordFill guarda una ejecución observada.
	RecordFill(ctx context.Context, fill domain.Fill) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
