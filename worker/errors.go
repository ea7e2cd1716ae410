package worker

// Kind classifies a core-level failure for logging and metrics
// (spec.md §7). It generalizes the gateway package's
// connection-level Kind to the engine's own error taxonomy.
type Kind string

const (
	KindConfigError        Kind = "ConfigError"
	KindGatewayConnect     Kind = "GatewayConnect"
	KindGatewayTransient   Kind = "GatewayTransient"
	KindGatewayRejected    Kind = "GatewayRejected"
	KindDataStale          Kind = "DataStale"
	KindSizingRejected     Kind = "SizingRejected"
	KindInvariantViolation Kind = "InvariantViolation"
	KindCancelled          Kind = "Cancelled"
)

// Error wraps a core failure with its Kind, following the same
// sentinel/typed-wrapper idiom as gateway.Error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Op + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Op
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a core Error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// AsKind extracts the Kind from err if it is a core Error, KindInvariantViolation
// otherwise (an unclassified failure is treated as the most conservative
// kind: no silent retry).
func AsKind(err error) Kind {
	if err == nil {
		return ""
	}
	if ce, ok := err.(*Error); ok {
		return ce.Kind
	}
	return KindInvariantViolation
}
