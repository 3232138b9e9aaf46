package capture

import (
	"weak"

	"github.com/fredbi/docsnap/internal/pkg/model"
)

// Observer receives progress notifications from a capture session.
type Observer interface {
	// PageCountCalculated is called once, when the total page count is known.
	PageCountCalculated(total int)

	// PagesCaptured is called after every accepted page, with the full list of accepted pages so far.
	PagesCaptured(pages []model.Page)

	// AllPagesCaptured is called exactly once, when every page offset has been visited.
	AllPagesCaptured(pages []model.Page)
}

// ObserverRef is a handle to an [Observer] that may have gone away.
//
// The driver resolves the handle before each notification and skips the notification
// when the observer is no longer available.
type ObserverRef interface {
	Observer() (Observer, bool)
}

// Strong holds an [Observer] for the lifetime of the driver.
func Strong(o Observer) ObserverRef {
	return strongRef{o: o}
}

type strongRef struct {
	o Observer
}

func (r strongRef) Observer() (Observer, bool) {
	return r.o, r.o != nil
}

// Weak holds an [Observer] without keeping it alive.
//
// Once the host drops its last reference to the observer and it is collected,
// notifications become no-ops.
func Weak[T any, PT interface {
	*T
	Observer
}](o PT) ObserverRef {
	return weakRef[T, PT]{p: weak.Make((*T)(o))}
}

type weakRef[T any, PT interface {
	*T
	Observer
}] struct {
	p weak.Pointer[T]
}

func (r weakRef[T, PT]) Observer() (Observer, bool) {
	v := r.p.Value()
	if v == nil {
		return nil, false
	}

	return PT(v), true
}

type noObserver struct{}

func (noObserver) Observer() (Observer, bool) {
	return nil, false
}
