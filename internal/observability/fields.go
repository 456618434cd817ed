package observability

import "go.uber.org/zap"

// Field aliases so call sites log through this package without importing zap.
//
//nolint:gochecknoglobals // Aliases to zap field constructors
var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Error   = zap.Error
	Any     = zap.Any
)
