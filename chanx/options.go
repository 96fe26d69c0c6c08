package chanx

// Option configures a [Channel] or a [Broadcast].
type Option func(*options)

type options struct {
	name     string
	observer func(Event)
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithName sets the name reported in events.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithObserver registers a hook called for every channel event. The hook
// runs on the goroutine performing the operation, after the channel's
// internal lock has been released.
func WithObserver(fn func(Event)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

func (o *options) emit(e Event) {
	if o.observer == nil {
		return
	}
	e.Channel = o.name
	o.observer(e)
}
