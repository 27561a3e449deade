package ports

import (
	"context"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// TopOfBookFeed entrega la última lectura de top-of-book por token.
// Nunca bloquea: si no hay lectura devuelve false.
type TopOfBookFeed interface {
	TopOfBook(tokenID string) (domain.TopOfBook, bool)
}

// BookSubscriber mantiene el conjunto de tokens que el feed debe seguir.
type BookSubscriber interface {
	// Subscribe reemplaza la lista de tokens suscritos.
	Subscribe(ctx context.Context, tokenIDs []string) error
}
