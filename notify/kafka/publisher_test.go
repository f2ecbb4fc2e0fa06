package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/merge"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)

	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testEvent() merge.Event {
	end := time.Date(2020, time.January, 5, 5, 0, 0, 0, time.UTC)

	return merge.Event{
		Dataset:    "t2m",
		Tier:       merge.URMA,
		Start:      end.Add(-5 * time.Hour),
		End:        end,
		Steps:      6,
		Watermarks: merge.Watermarks{URMAEnd: end, LastObs: end, LastValid: end},
		At:         time.Date(2024, time.March, 2, 10, 30, 0, 0, time.UTC),
	}
}

func TestSerializeToMessage(t *testing.T) {
	msg, err := serializeToMessage(testEvent())
	require.NoError(t, err)

	require.Equal(t, []byte("t2m"), msg.Key)
	require.Contains(t, string(msg.Value), `"tier":"urma"`)
	require.Contains(t, string(msg.Value), `"urma_end_time":"2020-01-05T05:00:00Z"`)
	require.Len(t, msg.Headers, 2)
	require.Equal(t, "tier", msg.Headers[0].Key)
	require.Equal(t, []byte("urma"), msg.Headers[0].Value)
	require.Equal(t, []byte("2020-01-05T05:00:00Z"), msg.Headers[1].Value)
	require.Equal(t, testEvent().At, msg.Time)
}

func TestPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, 0, zaptest.NewLogger(t))

	require.NoError(t, p.Notify(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)

	w.err = errors.New("leader not available")
	err := p.Notify(context.Background(), testEvent())
	require.ErrorIs(t, err, w.err)

	require.NoError(t, p.Close())
	require.True(t, w.closed)
}

func TestNewPublisher(t *testing.T) {
	_, err := NewPublisher(Config{Topic: "atmogrid"}, nil)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	p, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}, Topic: "atmogrid.merge"}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
}
