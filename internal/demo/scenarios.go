package demo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/baxromumarov/conduit"
	"github.com/baxromumarov/conduit/catalog"
	"github.com/baxromumarov/conduit/chanx"
)

// Basic sends Numbers+1 values over a rendezvous channel from a launched
// task and receives them on the caller until the channel closes.
func Basic(ctx context.Context, env Env) (Report, error) {
	rec := newRecorder()
	sc := newScope(ctx, env)

	ch := chanx.NewChannel[float64](chanx.Rendezvous, logEvents(env.Logger, "numbers")...)
	sc.Launch("sender", func(ctx context.Context, _ conduit.Spawner) error {
		defer ch.Close()
		for x := 0; x <= env.Config.Numbers; x++ {
			if err := ch.Send(ctx, float64(x)*1.114); err != nil {
				return err
			}
		}
		return nil
	})

	for v := range ch.All(ctx) {
		rec.add("main", fmt.Sprintf("%.3f", v))
	}
	if err := sc.Wait(); err != nil {
		return Report{}, err
	}
	return rec.report(), nil
}

// ProducerNumbers is Basic with the channel owned by a producer task.
func ProducerNumbers(ctx context.Context, env Env) (Report, error) {
	rec := newRecorder()
	sc := newScope(ctx, env)

	numbers := conduit.Produce(sc, "numbers", chanx.Rendezvous, func(ctx context.Context, out chanx.Sender[float64]) error {
		for x := 0; x <= env.Config.Numbers; x++ {
			if err := out.Send(ctx, float64(x)*1.114); err != nil {
				return err
			}
		}
		return nil
	}, chanx.WithObserver(chanx.LogEvents(env.Logger)))

	err := numbers.ConsumeEach(ctx, func(v float64) error {
		rec.add("main", fmt.Sprintf("%.3f", v))
		return nil
	})
	if err := errors.Join(err, sc.Wait()); err != nil {
		return Report{}, err
	}
	return rec.report(), nil
}

// SharedChannel has one publisher and two competing consumers on a bounded
// channel: consumer A takes a single product, consumer B takes the rest.
func SharedChannel(ctx context.Context, env Env) (Report, error) {
	rec := newRecorder()
	sc := newScope(ctx, env)

	products, err := fetchProducts(ctx, sc, env.Source)
	if err != nil {
		return Report{}, errors.Join(err, sc.Wait())
	}

	ch := chanx.NewChannel[catalog.Product](env.Config.Capacity, logEvents(env.Logger, "products")...)
	sc.Launch("publisher-a", func(ctx context.Context, _ conduit.Spawner) error {
		defer ch.Close()
		for _, p := range products {
			if err := ch.Send(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})

	sc.Launch("consumer-a", func(ctx context.Context, _ conduit.Spawner) error {
		p, err := ch.Receive(ctx)
		if errors.Is(err, chanx.ErrClosed) {
			// consumer B drained everything first
			return nil
		}
		if err != nil {
			return err
		}
		env.Logger.Info("receiving on consumer A", slog.String("product", p.Name))
		rec.add("consumer-a", p.Name)
		return nil
	})

	conduit.Consume(sc, "consumer-b", chanx.Receiver[catalog.Product](ch), func(_ context.Context, p catalog.Product) error {
		env.Logger.Info("receiving on consumer B", slog.String("product", p.Name))
		rec.add("consumer-b", p.Name)
		return nil
	})

	if err := sc.Wait(); err != nil {
		return Report{}, err
	}
	return rec.report(), nil
}

// Publisher hands the product list to a single consumer through a producer
// that alone can send on its channel.
func Publisher(ctx context.Context, env Env) (Report, error) {
	rec := newRecorder()
	sc := newScope(ctx, env)

	products, err := fetchProducts(ctx, sc, env.Source)
	if err != nil {
		return Report{}, errors.Join(err, sc.Wait())
	}

	publisher := conduit.Produce(sc, "publisher-b", env.Config.Capacity, sendAll(products, nil),
		chanx.WithObserver(chanx.LogEvents(env.Logger)))

	conduit.Consume(sc, "consumer-c", publisher, func(_ context.Context, p catalog.Product) error {
		env.Logger.Info("receiving on consumer C", slog.String("product", p.Name))
		rec.add("consumer-c", p.Name)
		return nil
	})

	if err := sc.Wait(); err != nil {
		return Report{}, err
	}
	return rec.report(), nil
}

// Pipeline chains producer A into producer B into consumer C. Once the
// consumer is done the remaining children are cancelled.
func Pipeline(ctx context.Context, env Env) (Report, error) {
	rec := newRecorder()
	sc := newScope(ctx, env)

	products, err := fetchProducts(ctx, sc, env.Source)
	if err != nil {
		return Report{}, errors.Join(err, sc.Wait())
	}

	producerA := conduit.Produce(sc, "producer-a", chanx.Rendezvous, sendAll(products, func(p catalog.Product) {
		env.Logger.Info("producer A sending", slog.String("id", p.ID))
	}))

	producerB := conduit.Stage(sc, "producer-b", chanx.Rendezvous, chanx.Receiver[catalog.Product](producerA),
		func(_ context.Context, p catalog.Product) (catalog.Product, error) {
			env.Logger.Info("producer B sending", slog.String("product", p.Name))
			return p, nil
		})

	consumer := conduit.Consume(sc, "consumer-c", producerB, func(_ context.Context, p catalog.Product) error {
		env.Logger.Info("receiving on consumer C", slog.String("product", p.Name))
		rec.add("consumer-c", p.Name)
		return nil
	})

	joinErr := consumer.Join(ctx)
	sc.CancelChildren()
	if err := errors.Join(joinErr, sc.Wait()); err != nil {
		return Report{}, err
	}
	return rec.report(), nil
}

// BroadcastFanOut delivers the product list to two observers through a
// bounded broadcast.
func BroadcastFanOut(ctx context.Context, env Env) (Report, error) {
	rec := newRecorder()
	sc := newScope(ctx, env)

	products, err := fetchProducts(ctx, sc, env.Source)
	if err != nil {
		return Report{}, errors.Join(err, sc.Wait())
	}

	b := chanx.NewBroadcast[catalog.Product](env.Config.BroadcastCapacity, logEvents(env.Logger, "products")...)
	for _, name := range []string{"observer-a", "observer-b"} {
		conduit.Observe(sc, name, b, func(_ context.Context, p catalog.Product) error {
			env.Logger.Info("receiving on "+name, slog.String("product", p.Name))
			rec.add(name, p.Name)
			return nil
		})
	}

	sc.Launch("publisher", func(ctx context.Context, _ conduit.Spawner) error {
		defer b.Close()
		return sendAll(products, nil)(ctx, b)
	})

	if err := sc.Wait(); err != nil {
		return Report{}, err
	}
	return rec.report(), nil
}

// ConflatedLatest publishes the product list followed by late arrivals on a
// conflated broadcast watched by two slow observers. Each observer only sees
// the latest value at the time it reads. The "published" entry of the report
// lists everything that was sent.
func ConflatedLatest(ctx context.Context, env Env) (Report, error) {
	rec := newRecorder()
	sc := newScope(ctx, env)

	products, err := fetchProducts(ctx, sc, env.Source)
	if err != nil {
		return Report{}, errors.Join(err, sc.Wait())
	}

	b := chanx.NewBroadcast[catalog.Product](chanx.Conflated, logEvents(env.Logger, "latest")...)
	for _, name := range []string{"observer-1", "observer-2"} {
		conduit.Observe(sc, name, b, func(ctx context.Context, p catalog.Product) error {
			env.Logger.Info(name+" receiving", slog.String("product", p.Name))
			rec.add(name, p.Name)
			return pause(ctx, env.Config.SlowObserver)
		})
	}

	published := func(p catalog.Product) { rec.add("published", p.Name) }
	p1 := sc.Launch("publisher-1", func(ctx context.Context, _ conduit.Spawner) error {
		return sendAll(products, published)(ctx, b)
	})
	p2 := sc.Launch("publisher-2", func(ctx context.Context, _ conduit.Spawner) error {
		if err := p1.Join(ctx); err != nil {
			return err
		}
		return sendAll(catalog.LateArrivals(), published)(ctx, b)
	})
	sc.Launch("closer", func(ctx context.Context, _ conduit.Spawner) error {
		defer b.Close()
		return errors.Join(p1.Join(ctx), p2.Join(ctx))
	})

	if err := sc.Wait(); err != nil {
		return Report{}, err
	}
	return rec.report(), nil
}

// sendAll returns a body sending products in order, calling before (if not
// nil) ahead of each send.
func sendAll(products []catalog.Product, before func(catalog.Product)) func(context.Context, chanx.Sender[catalog.Product]) error {
	return func(ctx context.Context, out chanx.Sender[catalog.Product]) error {
		for _, p := range products {
			if before != nil {
				before(p)
			}
			if err := out.Send(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}
}

// pause sleeps for d unless ctx is done first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
