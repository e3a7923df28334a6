package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cfchain/indexer/internal/bus"
	"github.com/cfchain/indexer/internal/cursor"
	"github.com/cfchain/indexer/internal/ipfsmeta"
	"github.com/cfchain/indexer/internal/producer"
	"github.com/cfchain/indexer/internal/reorg"
	"github.com/cfchain/indexer/internal/store"
)

var producerCommand = &cli.Command{
	Name:  "producer",
	Usage: "poll the chain and publish events to the bus",
	Subcommands: []*cli.Command{
		{
			Name:   "run",
			Usage:  "start the producer's polling loop",
			Action: producerRunAction,
		},
		{
			Name:  "backfill",
			Usage: "index an explicit block range once, then exit",
			Flags: []cli.Flag{
				&cli.Uint64Flag{Name: "from-block", Required: true},
				&cli.Uint64Flag{Name: "to-block", Required: true},
			},
			Action: producerBackfillAction,
		},
		{
			Name:  "status",
			Usage: "show the producer's current cursor position",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "address", Usage: "optionally show one campaign's metadata title too"},
			},
			Action: producerStatusAction,
		},
	},
}

// setupProducer wires store, chain client, cursor, reorg detector, and
// a confirm-mode publisher — the shared dependency graph behind
// `producer run`/`producer backfill` (spec.md §4.7).
func setupProducer(ctx context.Context, e *env) (*producer.Producer, *store.Store, *bus.Conn, error) {
	s, err := e.openStore()
	if err != nil {
		return nil, nil, nil, err
	}

	chainClient, err := e.dialChain(ctx)
	if err != nil {
		s.Close()
		return nil, nil, nil, err
	}

	if err := s.WithUnitOfWork(ctx, func(uow *store.UnitOfWork) error {
		return uow.Chains.EnsureSeeded(ctx, e.cfg.ChainID, fmt.Sprintf("chain-%d", e.cfg.ChainID), e.cfg.RPCURL)
	}); err != nil {
		s.Close()
		return nil, nil, nil, fmt.Errorf("seed chain row: %w", err)
	}

	conn, err := e.dialBus(ctx)
	if err != nil {
		s.Close()
		return nil, nil, nil, err
	}
	ch, err := conn.Channel(ctx)
	if err != nil {
		s.Close()
		conn.Close()
		return nil, nil, nil, err
	}
	if err := bus.DeclareTopology(ch); err != nil {
		s.Close()
		conn.Close()
		return nil, nil, nil, err
	}
	publisher, err := bus.NewPublisher(ch)
	if err != nil {
		s.Close()
		conn.Close()
		return nil, nil, nil, err
	}

	cur := cursor.New(s, e.cfg.ChainID)
	detector := reorg.New(chainClient, cur, publisher, e.cfg.ChainID, e.cfg.ReorgRollbackBlocks, e.log)

	p := producer.New(chainClient, cur, detector, publisher, producer.Config{
		ChainID:                e.cfg.ChainID,
		BlockBatchSize:         e.cfg.BlockBatchSize,
		PollInterval:           secondsToDuration(e.cfg.PollIntervalSeconds),
		ReconciliationInterval: secondsToDuration(e.cfg.ReconciliationIntervalSeconds),
	}, e.log)

	return p, s, conn, nil
}

func producerRunAction(c *cli.Context) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	e.maybeServeMetrics()

	p, s, conn, err := setupProducer(ctx, e)
	if err != nil {
		return err
	}
	defer s.Close()
	defer conn.Close()

	e.log.Info("producer starting", "chain_id", e.cfg.ChainID)
	if err := p.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return errInterrupted
		}
		return err
	}
	return nil
}

func producerBackfillAction(c *cli.Context) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	p, s, conn, err := setupProducer(ctx, e)
	if err != nil {
		return err
	}
	defer s.Close()
	defer conn.Close()

	from := c.Uint64("from-block")
	to := c.Uint64("to-block")
	e.log.Info("backfilling block range", "from", from, "to", to)
	if err := p.IndexRange(ctx, from, to); err != nil {
		if ctx.Err() != nil {
			return errInterrupted
		}
		return err
	}
	return nil
}

func producerStatusAction(c *cli.Context) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx := c.Context

	s, err := e.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	cur := cursor.New(s, e.cfg.ChainID)
	state, err := cur.Read(ctx)
	if err != nil {
		return err
	}

	hash := "(none)"
	if state.LastBlockHash != nil {
		hash = *state.LastBlockHash
	}
	fmt.Printf("chain_id:        %d\n", e.cfg.ChainID)
	fmt.Printf("last_block:      %d\n", state.LastBlock)
	fmt.Printf("last_block_hash: %s\n", hash)

	if addr := c.String("address"); addr != "" {
		printCampaignMetadata(ctx, e, s, addr)
	}
	return nil
}

// printCampaignMetadata is the one call site for internal/ipfsmeta: a
// purely cosmetic CLI annotation, skipped entirely when IPFS_GATEWAY_URL
// isn't set or the campaign carries no CID (SPEC_FULL.md §3.10).
func printCampaignMetadata(ctx context.Context, e *env, s *store.Store, address string) {
	var campaign *store.Campaign
	if err := s.WithUnitOfWork(ctx, func(uow *store.UnitOfWork) error {
		c, err := uow.Campaigns.Get(ctx, address)
		campaign = c
		return err
	}); err != nil {
		e.log.Warn("lookup campaign for status failed", "address", address, "err", err)
		return
	}
	if campaign == nil {
		fmt.Printf("campaign %s: not found\n", address)
		return
	}
	fmt.Printf("campaign %s: status=%s total_raised_wei=%s\n", campaign.Address, campaign.Status, campaign.TotalRaisedWei)

	if e.cfg.IPFSGatewayURL == "" || campaign.CID == nil || *campaign.CID == "" {
		return
	}
	resolver := ipfsmeta.New(e.cfg.IPFSGatewayURL, 24*time.Hour)
	md, err := resolver.Resolve(ctx, *campaign.CID)
	if err != nil {
		e.log.Warn("ipfs metadata resolve failed", "cid", *campaign.CID, "err", err)
		return
	}
	fmt.Printf("  title: %s\n", md.Name)
}
