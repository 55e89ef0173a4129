package strom

import (
	"context"
	"fmt"

	"github.com/Shopify/sarama"

	"strom/internal/channel"
	"strom/internal/config"
	"strom/internal/consumer/kafka"
	"strom/internal/fetcher"
	"strom/internal/metrics"
	kafkaout "strom/internal/output/kafka"
	"strom/internal/recovery"
	"strom/internal/table/manager"
	"strom/internal/utils"
)

// App wires the Kafka client, the table manager, and the pump together
// for a single worker process.
type App struct {
	Manager *manager.TableManager
	Fetcher *fetcher.Fetcher
	Metrics *metrics.Metrics

	cfg     config.Summary
	client  sarama.Client
	errChan chan error
}

func GetApp(ctx context.Context, cfg config.Summary, process kafka.ProcessFunc) (*App, error) {
	m := metrics.New()

	saramaCfg := newSaramaConfig(cfg)
	m.RegisterNew(saramaCfg.MetricRegistry)

	client, err := sarama.NewClient(cfg.Drivers.Kafka.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("sarama.NewClient: %w", err)
	}
	group, err := sarama.NewConsumerGroupFromClient(cfg.Drivers.Kafka.GroupID, client)
	if err != nil {
		return nil, fmt.Errorf("sarama.NewConsumerGroupFromClient: %w", err)
	}
	partCons, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return nil, fmt.Errorf("sarama.NewConsumerFromClient: %w", err)
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		return nil, fmt.Errorf("sarama.NewSyncProducerFromClient: %w", err)
	}

	cons := kafka.NewConsumer(group)
	registry := channel.NewRegistry()
	pump := fetcher.New(group, nil, nil)

	var mgr *manager.TableManager
	mgr = manager.NewTableManager(manager.Deps{
		Consumer: cons,
		Fetcher:  pump,
		Registry: registry,
		Metrics:  m,
		NewRecovery: func(h recovery.ICompletionHandler) recovery.IRecovery {
			return recovery.NewCoordinator(recovery.Deps{
				Client:  client,
				Cons:    partCons,
				Tables:  mgr,
				Seeker:  cons,
				Handler: h,
				Metrics: m,
			})
		},
		Cfg: cfg.Manager,
	})

	if err := RegisterTables(ctx, mgr, cfg, kafkaout.NewOutput(producer)); err != nil {
		return nil, err
	}

	pump.SetHandler(kafka.NewGroupHandler(cons, mgr, registry, process))
	pump.SetTopics(subscription(cfg, mgr.ChangelogTopics()))

	return &App{
		Manager: mgr,
		Fetcher: pump,
		Metrics: m,
		cfg:     cfg,
		client:  client,
	}, nil
}

func newSaramaConfig(cfg config.Summary) *sarama.Config {
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = cfg.Drivers.Kafka.ClientID
	if saramaCfg.ClientID == "" {
		saramaCfg.ClientID = "strom-" + utils.NewUuidWoDashes()
	}
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Producer.Return.Successes = true
	// Mirrored mutations carry their target changelog partition on the
	// message; the default hash partitioner would ignore it and scatter a
	// state partition's records across the topic.
	saramaCfg.Producer.Partitioner = sarama.NewManualPartitioner
	return saramaCfg
}

// subscription is the live topics plus every registered changelog topic;
// the changelog partitions stay paused outside recovery windows.
func subscription(cfg config.Summary, changelogTopics []string) []string {
	seen := make(map[string]struct{})
	var topics []string
	for _, topic := range append(cfg.Drivers.Kafka.Topics, changelogTopics...) {
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	return topics
}

func (a *App) Start(ctx context.Context) <-chan error {
	a.errChan = make(chan error)
	if a.cfg.Service.MetricsPort != 0 {
		go func() {
			err := a.Metrics.Serve(a.cfg.Service.MetricsPort)
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					a.errChan <- err
				}
			}
		}()
	}
	go func() {
		if err := a.Fetcher.Start(ctx); err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				a.errChan <- err
			}
			return
		}
		select {
		case <-ctx.Done():
		case err := <-a.Fetcher.Errors():
			select {
			case <-ctx.Done():
			default:
				a.errChan <- err
			}
		}
	}()
	go func() {
		if err := a.Manager.OnStart(ctx); err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				a.errChan <- err
			}
		}
	}()
	return a.errChan
}

func (a *App) Stop(ctx context.Context) error {
	if err := a.Manager.OnStop(ctx); err != nil {
		return err
	}
	return a.client.Close()
}
