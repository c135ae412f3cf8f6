package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	masterdata "hydromet-cloud/internal/masterdata/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubToken struct {
	err error
}

func (t stubToken) Wait() bool                     { return true }
func (t stubToken) WaitTimeout(time.Duration) bool { return true }
func (t stubToken) Done() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}
func (t stubToken) Error() error { return t.err }

type stubTopicClient struct {
	subscribes     []string
	unsubscribes   []string
	subscribeErr   map[string]error
	unsubscribeErr map[string]error
}

func (c *stubTopicClient) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	c.subscribes = append(c.subscribes, topic)
	return stubToken{err: c.subscribeErr[topic]}
}

func (c *stubTopicClient) Unsubscribe(topics ...string) mqtt.Token {
	c.unsubscribes = append(c.unsubscribes, topics...)
	var err error
	for _, topic := range topics {
		if e := c.unsubscribeErr[topic]; e != nil {
			err = e
		}
	}
	return stubToken{err: err}
}

type rosterRepo struct {
	stations []masterdata.Station
	err      error
}

func (r *rosterRepo) GetByDeviceID(_ context.Context, deviceID string) (*masterdata.Station, error) {
	for _, station := range r.stations {
		if station.DeviceID == deviceID {
			st := station
			return &st, nil
		}
	}
	return nil, masterdata.ErrStationNotFound
}

func (r *rosterRepo) ListOperative(context.Context) ([]masterdata.Station, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.stations, nil
}

func newTestManager(client *stubTopicClient, roster *rosterRepo) *SubscriptionManager {
	return &SubscriptionManager{
		client:     client,
		stations:   roster,
		handler:    func(mqtt.Client, mqtt.Message) {},
		template:   DefaultTopicTemplate,
		interval:   DefaultInterval,
		qos:        1,
		logger:     discardLogger(),
		subscribed: make(map[string]bool),
	}
}

func sortedTopics(set map[string]bool) []string {
	topics := make([]string, 0, len(set))
	for topic := range set {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

func TestReconcileSubscribesRoster(t *testing.T) {
	client := &stubTopicClient{}
	roster := &rosterRepo{stations: []masterdata.Station{
		{ID: 1, Name: "North", DeviceID: "dev-a", Status: masterdata.StatusOperative},
		{ID: 2, Name: "South", DeviceID: "dev-b", Status: masterdata.StatusOperative},
	}}
	manager := newTestManager(client, roster)

	if err := manager.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	want := []string{
		TopicForDevice(DefaultTopicTemplate, "dev-a"),
		TopicForDevice(DefaultTopicTemplate, "dev-b"),
	}
	got := sortedTopics(manager.Subscribed())
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("subscribed = %v, want %v", got, want)
	}
	if len(client.subscribes) != 2 {
		t.Fatalf("subscribe calls = %d, want 2", len(client.subscribes))
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	client := &stubTopicClient{}
	roster := &rosterRepo{stations: []masterdata.Station{
		{ID: 1, Name: "North", DeviceID: "dev-a", Status: masterdata.StatusOperative},
	}}
	manager := newTestManager(client, roster)

	for i := 0; i < 3; i++ {
		if err := manager.Reconcile(context.Background()); err != nil {
			t.Fatalf("reconcile %d: %v", i, err)
		}
	}
	if len(client.subscribes) != 1 {
		t.Fatalf("subscribe calls = %d, want 1", len(client.subscribes))
	}
	if len(client.unsubscribes) != 0 {
		t.Fatalf("unsubscribe calls = %d, want 0", len(client.unsubscribes))
	}
}

func TestReconcileUnsubscribesRemovedStation(t *testing.T) {
	client := &stubTopicClient{}
	roster := &rosterRepo{stations: []masterdata.Station{
		{ID: 1, Name: "North", DeviceID: "dev-a", Status: masterdata.StatusOperative},
		{ID: 2, Name: "South", DeviceID: "dev-b", Status: masterdata.StatusOperative},
	}}
	manager := newTestManager(client, roster)

	if err := manager.Reconcile(context.Background()); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	roster.stations = roster.stations[:1]
	if err := manager.Reconcile(context.Background()); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	removed := TopicForDevice(DefaultTopicTemplate, "dev-b")
	if len(client.unsubscribes) != 1 || client.unsubscribes[0] != removed {
		t.Fatalf("unsubscribes = %v, want [%s]", client.unsubscribes, removed)
	}
	got := sortedTopics(manager.Subscribed())
	if len(got) != 1 || got[0] != TopicForDevice(DefaultTopicTemplate, "dev-a") {
		t.Fatalf("subscribed = %v after removal", got)
	}
}

func TestReconcileRetriesFailedSubscribe(t *testing.T) {
	failing := TopicForDevice(DefaultTopicTemplate, "dev-a")
	client := &stubTopicClient{subscribeErr: map[string]error{failing: errors.New("broker unavailable")}}
	roster := &rosterRepo{stations: []masterdata.Station{
		{ID: 1, Name: "North", DeviceID: "dev-a", Status: masterdata.StatusOperative},
	}}
	manager := newTestManager(client, roster)

	if err := manager.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(manager.Subscribed()) != 0 {
		t.Fatal("failed subscribe must not be tracked")
	}

	// A later pass retries once the broker accepts the subscribe.
	client.subscribeErr = nil
	if err := manager.Reconcile(context.Background()); err != nil {
		t.Fatalf("retry reconcile: %v", err)
	}
	if !manager.Subscribed()[failing] {
		t.Fatal("retried subscribe must be tracked")
	}
	if len(client.subscribes) != 2 {
		t.Fatalf("subscribe calls = %d, want 2", len(client.subscribes))
	}
}

func TestReconcileFailedUnsubscribeStaysTracked(t *testing.T) {
	topic := TopicForDevice(DefaultTopicTemplate, "dev-a")
	client := &stubTopicClient{unsubscribeErr: map[string]error{topic: errors.New("timeout")}}
	roster := &rosterRepo{stations: []masterdata.Station{
		{ID: 1, Name: "North", DeviceID: "dev-a", Status: masterdata.StatusOperative},
	}}
	manager := newTestManager(client, roster)

	if err := manager.Reconcile(context.Background()); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	roster.stations = nil
	if err := manager.Reconcile(context.Background()); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if !manager.Subscribed()[topic] {
		t.Fatal("failed unsubscribe must stay tracked for the next pass")
	}
}

func TestReconcileRosterErrorLeavesStateUntouched(t *testing.T) {
	client := &stubTopicClient{}
	roster := &rosterRepo{stations: []masterdata.Station{
		{ID: 1, Name: "North", DeviceID: "dev-a", Status: masterdata.StatusOperative},
	}}
	manager := newTestManager(client, roster)

	if err := manager.Reconcile(context.Background()); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	roster.err = errors.New("database down")
	if err := manager.Reconcile(context.Background()); err == nil {
		t.Fatal("roster error must propagate")
	}
	if len(manager.Subscribed()) != 1 {
		t.Fatal("roster errors must not drop tracked subscriptions")
	}
}

func TestTopicForDevice(t *testing.T) {
	got := TopicForDevice("v3/hydromet/devices/{deviceId}/up", "wx-17")
	if got != "v3/hydromet/devices/wx-17/up" {
		t.Fatalf("topic = %q", got)
	}
}
