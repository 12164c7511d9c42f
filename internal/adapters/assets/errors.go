package assets

import (
	"errors"
	"fmt"

	"github.com/okian/growth/internal/domain/model"
)

// Sentinel kinds for asset registry errors.
var (
	ErrNotFound           = fmt.Errorf("metadata %w", model.ErrNotFound)
	ErrExists             = errors.New("metadata already exists")
	ErrCollectionMismatch = errors.New("asset does not belong to collection")
)

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
