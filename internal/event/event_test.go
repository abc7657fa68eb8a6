package event

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"campuspay/internal/model"
	"campuspay/internal/repository"
	"campuspay/internal/testutil"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPublisher struct {
	calls int
	err   error
}

func (s *stubPublisher) Publish(context.Context, string, string, any) error {
	s.calls++
	return s.err
}

func TestStoreChannel(t *testing.T) {
	assert.Equal(t, "store_42", StoreChannel(42))
}

func TestNewEnvelope(t *testing.T) {
	t.Run("marshals payload", func(t *testing.T) {
		env, err := NewEnvelope("store_1", TransactionUpdate, map[string]string{"type": "transaction"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"transaction"}`, string(env.Payload))
		assert.False(t, env.OccurredAt.IsZero())
	})

	t.Run("keeps raw payload", func(t *testing.T) {
		raw := json.RawMessage(`{"a":1}`)
		env, err := NewEnvelope("store_1", SettlementUpdate, raw)
		require.NoError(t, err)
		assert.Equal(t, raw, env.Payload)

		b, err := env.Bytes()
		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(b, &decoded))
		assert.Equal(t, SettlementUpdate, decoded["event"])
		assert.Equal(t, "store_1", decoded["channel"])
	})

	t.Run("unencodable payload", func(t *testing.T) {
		_, err := NewEnvelope("store_1", TransactionUpdate, make(chan int))
		assert.Error(t, err)
	})
}

func TestFanout(t *testing.T) {
	ok := &stubPublisher{}
	bad := &stubPublisher{err: errors.New("down")}
	also := &stubPublisher{}

	err := Fanout{ok, bad, also}.Publish(context.Background(), "store_1", TransactionUpdate, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 1, also.calls, "a failing transport must not stop the others")

	assert.NoError(t, Fanout{ok}.Publish(context.Background(), "store_1", TransactionUpdate, nil))
	assert.NoError(t, Fanout{}.Publish(context.Background(), "store_1", TransactionUpdate, nil))
}

func TestKafkaPublisher(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer producer.Close()

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "campuspay.transaction_update", msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "store_9", string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		var env Envelope
		require.NoError(t, json.Unmarshal(value, &env))
		assert.Equal(t, TransactionUpdate, env.Event)
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisher(producer, map[string]string{
		TransactionUpdate: "campuspay.transaction_update",
		SettlementUpdate:  "campuspay.settlement_update",
	})

	ctx := context.Background()
	require.NoError(t, p.Publish(ctx, "store_9", TransactionUpdate, map[string]int{"id": 1}))
	assert.Error(t, p.Publish(ctx, "store_9", SettlementUpdate, map[string]int{"id": 2}))
	assert.Error(t, p.Publish(ctx, "store_9", "unknownEvent", nil))
}

// blockingProducer 模拟迟迟不返回 ack 的 broker
type blockingProducer struct {
	sarama.SyncProducer
	release chan struct{}
	once    sync.Once
}

func (p *blockingProducer) SendMessage(*sarama.ProducerMessage) (int32, int64, error) {
	<-p.release
	return 0, 0, nil
}

func (p *blockingProducer) Close() error {
	p.once.Do(func() { close(p.release) })
	return nil
}

func TestKafkaPublisher_HonoursContextDeadline(t *testing.T) {
	producer := &blockingProducer{release: make(chan struct{})}
	defer producer.Close()
	p := NewKafkaPublisher(producer, map[string]string{TransactionUpdate: "campuspay.transaction_update"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Publish(ctx, "store_9", TransactionUpdate, map[string]int{"id": 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

type fakeRabbit struct {
	keys []string
	err  error
}

func (f *fakeRabbit) Publish(_ context.Context, routingKey string, _ []byte) error {
	f.keys = append(f.keys, routingKey)
	return f.err
}

func TestRabbitPublisher(t *testing.T) {
	sender := &fakeRabbit{}
	p := NewRabbitPublisher(sender)

	require.NoError(t, p.Publish(context.Background(), "store_3", SettlementUpdate, struct{}{}))
	assert.Equal(t, []string{"store_3.settlementUpdate"}, sender.keys)

	sender.err = errors.New("channel closed")
	assert.Error(t, p.Publish(context.Background(), "store_3", SettlementUpdate, struct{}{}))
}

func TestOutboxPublisher(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewOutboxRepository(db)
	ctx := context.Background()

	t.Run("delivered events are not parked", func(t *testing.T) {
		next := &stubPublisher{}
		require.NoError(t, NewOutboxPublisher(next, repo).Publish(ctx, "store_1", TransactionUpdate, map[string]int{"n": 1}))

		pending, err := repo.GetPendingMessages(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("failed delivery is parked", func(t *testing.T) {
		next := &stubPublisher{err: errors.New("kafka unavailable")}
		err := NewOutboxPublisher(next, repo).Publish(ctx, "store_2", SettlementUpdate, map[string]string{"type": SettlementPaid})
		require.NoError(t, err)

		pending, err := repo.GetPendingMessages(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		msg := pending[0]
		assert.Equal(t, "store_2", msg.Channel)
		assert.Equal(t, SettlementUpdate, msg.Event)
		assert.Equal(t, model.OutboxStatusPending, msg.Status)
		assert.Contains(t, msg.LastError, "kafka unavailable")
		assert.JSONEq(t, `{"type":"settlement_paid"}`, string(msg.Payload))
	})

	t.Run("long multi-byte error is cut on a character boundary", func(t *testing.T) {
		db := testutil.NewDB(t)
		repo := repository.NewOutboxRepository(db)
		next := &stubPublisher{err: errors.New("x" + strings.Repeat("连接失败", 100))}
		require.NoError(t, NewOutboxPublisher(next, repo).Publish(ctx, "store_3", TransactionUpdate, map[string]int{"n": 3}))

		pending, err := repo.GetPendingMessages(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.True(t, utf8.ValidString(pending[0].LastError))
		assert.LessOrEqual(t, len(pending[0].LastError), model.OutboxLastErrorMax)

		require.NoError(t, repo.RecordFailure(ctx, pending[0].ID, strings.Repeat("超时", 200), false))
		var got model.OutboxMessage
		require.NoError(t, db.First(&got, pending[0].ID).Error)
		assert.True(t, utf8.ValidString(got.LastError))
		assert.Equal(t, 1, got.RetryCount)
	})
}
