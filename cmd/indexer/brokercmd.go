package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/cfchain/indexer/internal/bus"
)

var brokerCommand = &cli.Command{
	Name:  "broker",
	Usage: "manage the RabbitMQ exchanges, queues, and bindings",
	Subcommands: []*cli.Command{
		{
			Name:   "setup",
			Usage:  "declare exchanges, queues, and bindings",
			Action: brokerSetupAction,
		},
		{
			Name:   "status",
			Usage:  "show queue depths and consumer counts",
			Action: brokerStatusAction,
		},
		{
			Name:  "purge",
			Usage: "purge all messages from a queue",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "queue", Aliases: []string{"q"}, Required: true},
			},
			Action: brokerPurgeAction,
		},
	},
}

func brokerSetupAction(c *cli.Context) error {
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

	if err := bus.DeclareTopology(ch); err != nil {
		return err
	}

	fmt.Printf("Broker setup complete at %s:%d\n", e.cfg.RabbitMQHost, e.cfg.RabbitMQPort)
	fmt.Printf("  Exchange: %s\n", bus.ExchangeName)
	fmt.Printf("  Queues:   %v\n", bus.AllQueues)
	fmt.Printf("  DLQ:      %s\n", bus.DLXQueueName)
	return nil
}

func brokerStatusAction(c *cli.Context) error {
	return consumerStatusAction(c)
}

func brokerPurgeAction(c *cli.Context) error {
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

	queue := c.String("queue")
	count, err := bus.Purge(ch, queue)
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d messages from %s\n", count, queue)
	return nil
}
