package session

import "fmt"

// Kind classifies a store failure.
type Kind uint8

const (
	KindBackend Kind = iota + 1
	KindPool
	KindEncode
	KindDecode
	KindConfig
	KindAllocation
)

func (k Kind) String() string {
	switch k {
	case KindBackend:
		return "backend"
	case KindPool:
		return "pool"
	case KindEncode:
		return "encode"
	case KindDecode:
		return "decode"
	case KindConfig:
		return "config"
	case KindAllocation:
		return "allocation"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrBackend    = &Error{Kind: KindBackend}
	ErrPool       = &Error{Kind: KindPool}
	ErrEncode     = &Error{Kind: KindEncode}
	ErrDecode     = &Error{Kind: KindDecode}
	ErrConfig     = &Error{Kind: KindConfig}
	ErrAllocation = &Error{Kind: KindAllocation}
)

// Error is the single error type returned by stores. Err carries the
// underlying driver or codec error and is reachable through errors.As.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

// NewError wraps err for operation op.
func NewError(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	msg := "session"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}
