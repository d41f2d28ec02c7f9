/*
Package courier provides an in-process, strongly typed publish/subscribe broker.

A Broker[T] carries messages of one Go type T from publishers to the handlers
subscribed to it. There is no serialization, no topic strings and no network:
the message value itself is handed to every handler.

# Basic Usage

	broker := courier.New[OrderPlaced]()
	defer broker.Close()

	sub, err := courier.SubscribeFunc(broker.Subscriber(), func(ctx context.Context, e OrderPlaced) error {
		fmt.Println("order", e.ID)
		return nil
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	if err := broker.Publish(ctx, OrderPlaced{ID: "o-1"}); err != nil {
		// a sync handler failed
	}

# Handlers

There are two kinds of handlers:

  - Handler[T] runs on the publisher's goroutine, in registration order. The
    first error stops delivery and is returned from Publish.
  - AsyncHandler[T] runs on its own goroutine under a SubscribeStrategy:
    Sequential, Parallel, Switch or Drop.

Custom handler types embed HandlerNode. A handler value can be subscribed to
one broker once; unsubscribing disposes it.

A publish reaches exactly the handlers that were registered when it started.
Handlers added during a publish, including from inside a handler, only see
later messages.

# Publishing

Publish runs the sync handlers and starts the async handlers without waiting
for them. Their failures go to the FailureSink configured with WithFailureSink,
or to the broker's logger.

PublishAsync waits for the async handlers too:

  - PublishSequential awaits them one by one and stops at the first failure.
  - PublishParallel starts them all and returns every failure joined.

A panic inside a handler or filter is recovered into a *PanicError.

# Filters

Filters wrap handlers in a pipeline. A Filter[T] may forward the message,
forward a different one, drop it or forward it several times:

	broker.AddPredicate(func(e OrderPlaced) bool { return e.Total > 0 })
	broker.AddFilter(courier.NewLoggingFilter[OrderPlaced](logger))

Global filters only wrap handlers subscribed after they were added. Async
handlers subscribed while global filters exist always run sequentially.
WithFilters adds filters to a single subscription, inside the global ones.

# Hub

A Hub keeps one broker per message type and shares options between them:

	hub := courier.NewHub(courier.WithLogger(logger), courier.WithGlobalFilters(audit))
	defer hub.Close()

	courier.PublisherOf[OrderPlaced](hub).Publish(ctx, e)

# Streams

First waits for the next message and Stream feeds messages into a channel,
both driven by a context.
*/
package courier
