// Package options implements the generic functional-option pattern used by
// every atmogrid constructor (stores, engines, appenders, controllers).
//
//	type EngineOption = options.Option[*Engine]
//
//	func WithLogger(l *zap.Logger) EngineOption {
//	    return options.NoError(func(e *Engine) { e.logger = l })
//	}
package options

// Option configures a target of type T. Options are applied in order and the
// first error aborts construction.
type Option[T any] interface {
	apply(T) error
}

// Func adapts a function to the Option interface.
type Func[T any] struct {
	applyFunc func(T) error
}

func (f *Func[T]) apply(target T) error {
	return f.applyFunc(target)
}

// New creates an option that may reject its input.
func New[T any](fn func(T) error) *Func[T] {
	return &Func[T]{applyFunc: fn}
}

// NoError creates an option that cannot fail.
func NoError[T any](fn func(T)) *Func[T] {
	return &Func[T]{
		applyFunc: func(target T) error {
			fn(target)
			return nil
		},
	}
}

// Apply applies opts to target in order, stopping at the first error.
func Apply[T any](target T, opts ...Option[T]) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(target); err != nil {
			return err
		}
	}

	return nil
}
