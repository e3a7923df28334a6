package main

import (
	"fmt"
	"sync"

	"github.com/urfave/cli/v2"

	"github.com/cfchain/indexer/internal/bus"
	"github.com/cfchain/indexer/internal/consumer"
	"github.com/cfchain/indexer/internal/reconcile"
	"github.com/cfchain/indexer/internal/rollback"
	"github.com/cfchain/indexer/internal/stateupdate"
)

var consumerCommand = &cli.Command{
	Name:  "consumer",
	Usage: "consume bus messages and apply them to the store",
	Subcommands: []*cli.Command{
		{
			Name:  "run",
			Usage: "start the consumer worker fleet",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "workers", Aliases: []string{"w"}},
			},
			Action: consumerRunAction,
		},
		{
			Name:   "status",
			Usage:  "show queue depths and consumer counts",
			Action: consumerStatusAction,
		},
	},
}

// consumerRunAction starts cfg.ConsumerWorkers (or -w workers) Workers,
// each owning its own channel and subscribed to every queue in
// bus.AllQueues, matching original_source/indexer/consumer/main.py's
// multiprocess worker pool — reimplemented as goroutines sharing one
// *store.Store connection pool, since Go workers don't need separate
// processes to parallelize I/O-bound work.
func consumerRunAction(c *cli.Context) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	e.maybeServeMetrics()

	workers := c.Int("workers")
	if workers <= 0 {
		workers = e.cfg.ConsumerWorkers
	}

	s, err := e.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	conn, err := e.dialBus(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	setupCh, err := conn.Channel(ctx)
	if err != nil {
		return err
	}
	if err := bus.DeclareTopology(setupCh); err != nil {
		return err
	}
	setupCh.Close()

	updater := stateupdate.New(e.log)
	rollbacker := rollback.New(updater, e.log)
	reconciler := reconcile.New(e.log)
	w := consumer.New(s, updater, rollbacker, reconciler, e.log)

	var wg sync.WaitGroup
	errs := make(chan error, workers*len(bus.AllQueues))

	for i := 0; i < workers; i++ {
		ch, err := conn.Channel(ctx)
		if err != nil {
			return fmt.Errorf("open consumer channel: %w", err)
		}
		cons, err := bus.NewConsumer(ch, e.cfg.RabbitMQPrefetchCount, e.cfg.MaxRetries, e.log)
		if err != nil {
			return fmt.Errorf("build consumer: %w", err)
		}

		for _, queue := range bus.AllQueues {
			wg.Add(1)
			go func(cons *bus.Consumer, queue string) {
				defer wg.Done()
				if err := cons.Consume(ctx, queue, w.Handle); err != nil && ctx.Err() == nil {
					errs <- fmt.Errorf("consume %s: %w", queue, err)
				}
			}(cons, queue)
		}
	}

	e.log.Info("consumer fleet starting", "workers", workers, "queues", bus.AllQueues)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		wg.Wait()
	}
	close(errs)

	if ctx.Err() != nil {
		return errInterrupted
	}
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func consumerStatusAction(c *cli.Context) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx := c.Context

	conn, err := e.dialBus(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	statuses, err := bus.Status(ch)
	if err != nil {
		return err
	}

	var totalMessages, totalConsumers int
	fmt.Println("Queue Status:")
	for _, s := range statuses {
		fmt.Printf("  %-28s messages=%-6d consumers=%d\n", s.Queue, s.MessageCount, s.ConsumerCount)
		totalMessages += s.MessageCount
		totalConsumers += s.ConsumerCount
	}
	fmt.Printf("total messages=%d consumers=%d\n", totalMessages, totalConsumers)
	return nil
}
