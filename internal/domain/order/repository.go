package order

import (
	"codeart/internal/domain"
)

// Repository defines the interface for Order persistence.
type Repository interface {
	domain.Repository[*Order]
}
