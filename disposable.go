package reuse

import (
	"context"
	"reflect"
)

// Disposable releases a resource when its owning scope closes.
//
// Example:
//
//	type DatabaseConnection struct {
//	    conn *sql.DB
//	}
//
//	func (dc *DatabaseConnection) Close() error {
//	    return dc.conn.Close()
//	}
type Disposable interface {
	// Close disposes the resource.
	Close() error
}

// DisposableWithContext allows disposal with context for graceful shutdown.
// Services implementing this interface can perform context-aware cleanup.
//
// Example:
//
//	type DatabaseConnection struct {
//	    conn *sql.DB
//	}
//
//	func (dc *DatabaseConnection) Close(ctx context.Context) error {
//	    done := make(chan error, 1)
//	    go func() {
//	        done <- dc.conn.Close()
//	    }()
//
//	    select {
//	    case err := <-done:
//	        return err
//	    case <-ctx.Done():
//	        return ctx.Err()
//	    }
//	}
type DisposableWithContext interface {
	// Close disposes the resource with the provided context.
	// Implementations should respect context cancellation for graceful shutdown.
	Close(ctx context.Context) error
}

var (
	disposableType            = reflect.TypeOf((*Disposable)(nil)).Elem()
	disposableWithContextType = reflect.TypeOf((*DisposableWithContext)(nil)).Elem()
)

// typeIsDisposable reports whether every value of static type t satisfies one
// of the disposal interfaces. For an interface type this means the interface
// itself carries the Close method set; otherwise only the runtime value can
// tell, and valueIsDisposable decides at resolution time.
func typeIsDisposable(t reflect.Type) bool {
	if t == nil {
		return false
	}
	return t.Implements(disposableType) || t.Implements(disposableWithContextType)
}

// valueIsDisposable reports whether the runtime value satisfies one of the
// disposal interfaces.
func valueIsDisposable(v any) bool {
	switch v.(type) {
	case DisposableWithContext, Disposable:
		return true
	default:
		return false
	}
}

// disposeValue releases one value, preferring the context-aware form.
// Values implementing neither interface are ignored.
func disposeValue(ctx context.Context, v any) error {
	switch d := v.(type) {
	case DisposableWithContext:
		return d.Close(ctx)
	case Disposable:
		return d.Close()
	default:
		return nil
	}
}
