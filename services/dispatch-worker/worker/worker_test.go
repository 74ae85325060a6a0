package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mutter0815/BotDispatch/internal/bot"
	"github.com/Mutter0815/BotDispatch/internal/dispatch"
	"github.com/Mutter0815/BotDispatch/internal/target"
	"github.com/Mutter0815/BotDispatch/pkg/model"
)

type fakeAck struct {
	acks, nacks int
	requeued    bool
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error { a.acks++; return nil }
func (a *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	a.nacks++
	a.requeued = requeue
	return nil
}
func (a *fakeAck) Reject(tag uint64, requeue bool) error { a.nacks++; return nil }

type fakeBots struct {
	calls   []string
	summary bot.Summary
	err     error
}

func (f *fakeBots) Trigger(ctx context.Context, botID, trigger string) (bot.Summary, error) {
	f.calls = append(f.calls, botID+"/"+trigger)
	return f.summary, f.err
}

type publishCall struct {
	body    []byte
	headers amqp.Table
}

type fakePub struct {
	calls []publishCall
	err   error
}

func (p *fakePub) PublishJSONWithHeaders(ctx context.Context, body []byte, headers amqp.Table) error {
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, publishCall{body: body, headers: headers})
	return nil
}

func newTestWorker(b *fakeBots, p *fakePub) *Worker {
	return &Worker{Bots: b, Pub: p, MaxRetries: 3, Backoff: func(int) time.Duration { return 0 }}
}

func delivery(t *testing.T, ack *fakeAck, job model.TriggerJob, headers amqp.Table) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(job)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body, Headers: headers}
}

var job = model.TriggerJob{ID: "j1", BotID: "b1", Trigger: bot.TriggerSchedule}

func TestHandle_Success(t *testing.T) {
	b := &fakeBots{summary: bot.Summary{Attempted: true, Result: dispatch.Result{TotalTargets: 2, SuccessCount: 2}}}
	p := &fakePub{}
	ack := &fakeAck{}

	newTestWorker(b, p).handle(context.Background(), delivery(t, ack, job, nil))

	assert.Equal(t, []string{"b1/schedule"}, b.calls)
	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, p.calls)
}

func TestHandle_BadPayloadIsDropped(t *testing.T) {
	b := &fakeBots{}
	ack := &fakeAck{}
	w := newTestWorker(b, &fakePub{})

	w.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{not json")})
	w.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte(`{"id":"x"}`)})

	assert.Empty(t, b.calls)
	assert.Equal(t, 2, ack.acks)
}

func TestHandle_MissingTriggerDefaultsToSchedule(t *testing.T) {
	b := &fakeBots{summary: bot.Summary{Attempted: true}}
	ack := &fakeAck{}

	newTestWorker(b, &fakePub{}).handle(context.Background(),
		delivery(t, ack, model.TriggerJob{ID: "j", BotID: "b9"}, nil))

	assert.Equal(t, []string{"b9/schedule"}, b.calls)
}

func TestHandle_TransientErrorIsRequeued(t *testing.T) {
	b := &fakeBots{err: errors.New("backend: 503")}
	p := &fakePub{}
	ack := &fakeAck{}

	newTestWorker(b, p).handle(context.Background(), delivery(t, ack, job, amqp.Table{"x-retries": int32(1)}))

	require.Len(t, p.calls, 1)
	assert.Equal(t, 2, headerRetries(p.calls[0].headers))
	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
}

func TestHandle_DropAfterRetries(t *testing.T) {
	b := &fakeBots{err: errors.New("backend: 503")}
	p := &fakePub{}
	ack := &fakeAck{}

	newTestWorker(b, p).handle(context.Background(), delivery(t, ack, job, amqp.Table{"x-retries": int32(3)}))

	assert.Empty(t, p.calls)
	assert.Equal(t, 1, ack.acks)
}

func TestHandle_RequeuePublishFailureNacks(t *testing.T) {
	b := &fakeBots{err: errors.New("backend: 503")}
	p := &fakePub{err: errors.New("channel closed")}
	ack := &fakeAck{}

	newTestWorker(b, p).handle(context.Background(), delivery(t, ack, job, nil))

	assert.Zero(t, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeued)
}

func TestHandle_NeverRetried(t *testing.T) {
	cases := map[string]struct {
		summary bot.Summary
		err     error
	}{
		"bot missing":     {err: bot.ErrNotFound},
		"bot inactive":    {err: bot.ErrInactive},
		"no recipients":   {summary: bot.Summary{Reason: bot.ReasonNoRecipients}, err: target.ErrNoRecipients},
		"partial batch":   {summary: bot.Summary{Attempted: true, Result: dispatch.Result{TotalTargets: 3, SuccessCount: 1, Skipped: 2, Canceled: true}}, err: context.Canceled},
		"group not found": {summary: bot.Summary{Reason: bot.ReasonResolutionFailed}, err: resolutionError(t, target.ErrGroupNotFound)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			b := &fakeBots{summary: tc.summary, err: tc.err}
			p := &fakePub{}
			ack := &fakeAck{}

			newTestWorker(b, p).handle(context.Background(), delivery(t, ack, job, nil))

			assert.Empty(t, p.calls)
			assert.Equal(t, 1, ack.acks)
		})
	}
}

type groupsFunc func(ctx context.Context, id string) ([]string, error)

func (f groupsFunc) GroupMembers(ctx context.Context, id string) ([]string, error) { return f(ctx, id) }

func resolutionError(t *testing.T, cause error) error {
	t.Helper()
	r := &target.Resolver{Groups: groupsFunc(func(context.Context, string) ([]string, error) { return nil, cause })}
	_, err := r.Resolve(context.Background(), target.List{target.GroupRef("G")})
	var rerr *target.ResolutionError
	require.ErrorAs(t, err, &rerr)
	return err
}

func TestRun_StopsWhenChannelCloses(t *testing.T) {
	b := &fakeBots{summary: bot.Summary{Attempted: true}}
	ack := &fakeAck{}
	msgs := make(chan amqp.Delivery, 2)
	msgs <- delivery(t, ack, job, nil)
	msgs <- delivery(t, ack, job, nil)
	close(msgs)

	err := newTestWorker(b, &fakePub{}).Run(context.Background(), msgs)

	assert.NoError(t, err)
	assert.Len(t, b.calls, 2)
	assert.Equal(t, 2, ack.acks)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestWorker(&fakeBots{}, &fakePub{}).Run(ctx, make(chan amqp.Delivery))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, time.Duration(0), backoffDelay(0))
	assert.Equal(t, time.Second, backoffDelay(1))
	assert.Equal(t, 2*time.Second, backoffDelay(2))
	assert.Equal(t, 4*time.Second, backoffDelay(3))
}

func TestHeaderRetries(t *testing.T) {
	assert.Equal(t, 0, headerRetries(nil))
	assert.Equal(t, 2, headerRetries(amqp.Table{"x-retries": int64(2)}))
	assert.Equal(t, 0, headerRetries(amqp.Table{"x-retries": "2"}))

	orig := amqp.Table{"trace": "t"}
	dup := copyHeaders(orig)
	setHeaderRetries(&dup, 1)
	assert.NotContains(t, orig, "x-retries")
	assert.Equal(t, "t", dup["trace"])
}
