package test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homefixr/dispatch/core/directory"
	"github.com/homefixr/dispatch/core/dispatch"
	"github.com/homefixr/dispatch/core/lock"
	"github.com/homefixr/dispatch/core/model"
	corenotify "github.com/homefixr/dispatch/core/notify"
	"github.com/homefixr/dispatch/core/selector"
	"github.com/homefixr/dispatch/core/store"
	inframetrics "github.com/homefixr/dispatch/infra/metrics"
	infranotify "github.com/homefixr/dispatch/infra/notify"
	"github.com/homefixr/dispatch/test/util"
)

// TestDispatchOverMQTT runs a full assignment cycle against a real Mosquitto
// broker and verifies the notification fan-out technicians and customers see.
func TestDispatchOverMQTT(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	broker, cleanup, err := util.StartMosquitto(ctx)
	require.NoError(t, err)
	defer cleanup()

	sink, err := infranotify.NewMQTTSink(infranotify.MQTTConfig{
		Broker:   broker,
		ClientID: "dispatch-it",
	})
	require.NoError(t, err)
	defer sink.Disconnect()

	received := make(chan corenotify.Notification, 32)
	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("subscriber"))
	token := sub.Connect()
	token.Wait()
	require.NoError(t, token.Error())
	defer sub.Disconnect(100)

	token = sub.Subscribe("homefix/notify/#", 1, func(_ paho.Client, msg paho.Message) {
		var n corenotify.Notification
		if err := json.Unmarshal(msg.Payload(), &n); err == nil {
			received <- n
		}
	})
	token.Wait()
	require.NoError(t, token.Error())

	dir := directory.NewMemoryDirectory()
	require.NoError(t, dir.Upsert(ctx, model.Technician{
		ID: "tech-a", ZoneIDs: []string{"z1"}, Services: []string{"s1"}, Online: true, Rating: 4.5,
	}))
	eng, err := dispatch.NewEngine(store.NewMemoryStore(), dir, selector.NewRankedSelector(dir),
		lock.NewKeyedMutex(), sink, dispatch.Config{}, nil)
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	b, err := eng.CreateBooking(ctx, dispatch.CreateRequest{
		CustomerID: "cust-1", ServiceID: "s1", ZoneID: "z1", EstimatedPrice: 50,
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusAssignedPending, b.Status)

	offer := waitForEvent(t, received, corenotify.EventOfferSent)
	assert.Equal(t, "tech-a", offer.RecipientID)
	assert.Equal(t, b.ID, offer.BookingID)

	_, err = eng.Accept(ctx, b.ID, "tech-a")
	require.NoError(t, err)

	otp := waitForEvent(t, received, corenotify.EventJobOTPIssued)
	assert.Equal(t, "cust-1", otp.RecipientID)
	assert.NotEmpty(t, otp.Payload["otp"])
}

func waitForEvent(t *testing.T, ch <-chan corenotify.Notification, ev corenotify.EventType) corenotify.Notification {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case n := <-ch:
			if n.Event == ev {
				return n
			}
		case <-deadline:
			t.Fatalf("event %s not received", ev)
		}
	}
}

// TestAssignmentMetricsExposed drives an assignment and polls the Prometheus
// endpoint for the outcome counters.
func TestAssignmentMetricsExposed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := "127.0.0.1:19309"
	go func() {
		if err := inframetrics.StartPromServer(ctx, addr); err != nil {
			t.Errorf("prom server: %v", err)
		}
	}()

	dir := directory.NewMemoryDirectory()
	require.NoError(t, dir.Upsert(ctx, model.Technician{
		ID: "tech-a", ZoneIDs: []string{"z1"}, Services: []string{"s1"}, Online: true, Rating: 4,
	}))
	eng, err := dispatch.NewEngine(store.NewMemoryStore(), dir, selector.NewRankedSelector(dir),
		lock.NewKeyedMutex(), corenotify.NopSink{}, dispatch.Config{}, nil)
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()
	sink, err := inframetrics.NewPromSink()
	require.NoError(t, err)
	eng.SetMetricsSink(sink)

	b, err := eng.CreateBooking(ctx, dispatch.CreateRequest{
		CustomerID: "cust-1", ServiceID: "s1", ZoneID: "z1", EstimatedPrice: 50,
	})
	require.NoError(t, err)
	_, err = eng.Accept(ctx, b.ID, "tech-a")
	require.NoError(t, err)

	waitCtx, waitCancel := context.WithTimeout(ctx, util.MetricTimeout)
	defer waitCancel()
	require.NoError(t, util.WaitForMetric(waitCtx,
		"http://"+addr+"/metrics", `assignment_outcomes_total{outcome="accepted"`))
}
