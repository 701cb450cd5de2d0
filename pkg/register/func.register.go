package register

import "sync"

// funcRegister collects init-time hooks keyed by an arbitrary value so that
// stores and background jobs can attach themselves to their owner without the
// owner importing every implementation.
type funcRegister struct {
	handlers map[any][]any
	locker   sync.Mutex
}

var fr = &funcRegister{
	handlers: make(map[any][]any),
}

type Handler[T any] func(T)

func RegisterFunc[T any](key any, handler Handler[T]) {
	fr.locker.Lock()
	defer fr.locker.Unlock()
	fr.handlers[key] = append(fr.handlers[key], handler)
}

// ResolveFuncHandlers returns the handlers registered for key whose type
// parameter matches T, in registration order.
func ResolveFuncHandlers[T any](key any) []Handler[T] {
	fr.locker.Lock()
	defer fr.locker.Unlock()

	var result []Handler[T]
	for _, v := range fr.handlers[key] {
		if h, ok := v.(Handler[T]); ok {
			result = append(result, h)
		}
	}
	return result
}
