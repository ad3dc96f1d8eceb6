// Package kafkatransport implements transport.Connection over a Kafka
// cluster using franz-go. One event stream maps to one topic; batches are
// unpacked so each event is one Kafka record.
package kafkatransport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/datateam2/eventstream/logger"
	"github.com/datateam2/eventstream/transport"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

var _ transport.Connection = (*Client)(nil)

type ClientConfig struct {
	PollTimeout time.Duration
	Logger      logger.Logger
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		PollTimeout: 2 * time.Second,
		Logger:      logger.NewNoopLogger(),
	}
}

type Option func(*ClientConfig)

func WithPollTimeout(d time.Duration) Option {
	return func(cfg *ClientConfig) {
		if d > 0 {
			cfg.PollTimeout = d
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(cfg *ClientConfig) {
		cfg.Logger = l.With("client", "kafka")
	}
}

type Client struct {
	client *kgo.Client
	topic  string
	config ClientConfig

	// pullMu serializes the add/poll/remove dance so concurrent pulls for
	// different partitions cannot observe each other's records. It also
	// bounds outstanding fetch requests on the shared connection.
	pullMu sync.Mutex

	logger logger.Logger
}

// Connect builds a Connection from the configuration surface: either a
// shared-access connection string or an explicit broker list.
func Connect(ctx context.Context, cfg transport.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ccfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&ccfg)
	}

	brokers := cfg.Brokers
	topic := cfg.EntityPath

	kgoOpts := []kgo.Opt{
		kgo.RecordPartitioner(kgo.ManualPartitioner()),
	}

	if cfg.Mode == transport.ModeConnectionString {
		cs, err := transport.ParseConnectionString(cfg.ConnectionString)
		if err != nil {
			return nil, &transport.AuthError{Err: err}
		}
		brokers = []string{cs.Host}
		if topic == "" {
			topic = cs.EntityPath
		}
		kgoOpts = append(kgoOpts, kgo.SASL(plain.Auth{
			User: cs.KeyName,
			Pass: cs.Key,
		}.AsMechanism()))
	}

	if topic == "" {
		return nil, errors.New("kafkatransport: no entity path configured")
	}

	kgoOpts = append(kgoOpts, kgo.SeedBrokers(brokers...))

	client, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	c := &Client{
		client: client,
		topic:  topic,
		config: ccfg,
		logger: ccfg.Logger,
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, classify(err)
	}

	return c, nil
}

func (c *Client) Send(ctx context.Context, partition int32, batch []byte) (transport.Ack, error) {
	records, err := transport.DecodeBatch(batch)
	if err != nil {
		return transport.Ack{}, transport.Permanent(fmt.Errorf("undecodable batch: %w", err))
	}

	kgoRecords := make([]*kgo.Record, len(records))
	for i, data := range records {
		kgoRecords[i] = &kgo.Record{
			Topic:     c.topic,
			Partition: partition,
			Value:     data,
		}
	}

	results := c.client.ProduceSync(ctx, kgoRecords...)
	if err := results.FirstErr(); err != nil {
		return transport.Ack{}, classify(err)
	}

	c.logger.Debug("Batch sent", "partition", partition, "records", len(records))

	return transport.Ack{
		Partition:  partition,
		BaseOffset: kgoRecords[0].Offset,
	}, nil
}

func (c *Client) Pull(
	ctx context.Context, partition int32, fromOffset int64, maxRecords int,
) ([]transport.SequencedRecord, error) {
	c.pullMu.Lock()
	defer c.pullMu.Unlock()

	var offset kgo.Offset
	switch fromOffset {
	case transport.OffsetEarliest:
		offset = kgo.NewOffset().AtStart()
	case transport.OffsetLatest:
		offset = kgo.NewOffset().AtEnd()
	default:
		offset = kgo.NewOffset().At(fromOffset)
	}

	c.client.AddConsumePartitions(map[string]map[int32]kgo.Offset{
		c.topic: {partition: offset},
	})
	defer c.client.RemoveConsumePartitions(map[string][]int32{
		c.topic: {partition},
	})

	pollCtx, cancel := context.WithTimeout(ctx, c.config.PollTimeout)
	defer cancel()

	fetches := c.client.PollRecords(pollCtx, maxRecords)
	for _, fetchErr := range fetches.Errors() {
		if errors.Is(fetchErr.Err, context.DeadlineExceeded) || errors.Is(fetchErr.Err, context.Canceled) {
			continue
		}
		return nil, classify(fetchErr.Err)
	}

	records := fetches.Records()
	out := make([]transport.SequencedRecord, 0, len(records))
	for _, r := range records {
		out = append(out, transport.SequencedRecord{
			Offset:     r.Offset,
			Data:       r.Value,
			EnqueuedAt: r.Timestamp,
		})
	}
	return out, nil
}

// Offsets returns the earliest stored offset and the next offset to be
// written for one partition.
func (c *Client) Offsets(ctx context.Context, partition int32) (int64, int64, error) {
	adm := kadm.NewClient(c.client)

	starts, err := adm.ListStartOffsets(ctx, c.topic)
	if err != nil {
		return 0, 0, classify(err)
	}
	ends, err := adm.ListEndOffsets(ctx, c.topic)
	if err != nil {
		return 0, 0, classify(err)
	}

	start, ok := starts.Lookup(c.topic, partition)
	if !ok {
		return 0, 0, transport.Permanent(fmt.Errorf("unknown partition %d", partition))
	}
	if start.Err != nil {
		return 0, 0, classify(start.Err)
	}
	end, ok := ends.Lookup(c.topic, partition)
	if !ok {
		return 0, 0, transport.Permanent(fmt.Errorf("unknown partition %d", partition))
	}
	if end.Err != nil {
		return 0, 0, classify(end.Err)
	}

	return start.Offset, end.Offset, nil
}

func (c *Client) Partitions(ctx context.Context) ([]int32, error) {
	req := kmsg.NewPtrMetadataRequest()
	reqTopic := kmsg.NewMetadataRequestTopic()
	reqTopic.Topic = kmsg.StringPtr(c.topic)
	req.Topics = append(req.Topics, reqTopic)

	resp, err := req.RequestWith(ctx, c.client)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Topics) != 1 {
		return nil, transport.Transient(fmt.Errorf("metadata: expected 1 topic, got %d", len(resp.Topics)))
	}
	if err := kerr.ErrorForCode(resp.Topics[0].ErrorCode); err != nil {
		return nil, classify(err)
	}

	partitions := make([]int32, 0, len(resp.Topics[0].Partitions))
	for _, p := range resp.Topics[0].Partitions {
		partitions = append(partitions, p.Partition)
	}
	return partitions, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

// classify maps Kafka errors onto the transport taxonomy: auth failures are
// AuthError, non-retriable protocol errors permanent, everything else
// transient.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var ke *kerr.Error
	if errors.As(err, &ke) {
		switch ke {
		case kerr.SaslAuthenticationFailed,
			kerr.TopicAuthorizationFailed,
			kerr.GroupAuthorizationFailed,
			kerr.ClusterAuthorizationFailed:
			return &transport.AuthError{Err: err}
		}
		if !ke.Retriable {
			return transport.Permanent(err)
		}
	}
	return transport.Transient(err)
}
