package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/warelay/internal/hub"
	"github.com/xiaot623/warelay/internal/metrics"
	"github.com/xiaot623/warelay/internal/protocol"
	"github.com/xiaot623/warelay/internal/qr"
	"github.com/xiaot623/warelay/internal/session"
	fakes "github.com/xiaot623/warelay/internal/testutil"
	"github.com/xiaot623/warelay/internal/whatsapp"
)

type fixture struct {
	svc       *Service
	messenger *fakes.FakeMessenger
	acks      *fakes.FakeAckStore
	marker    *session.Marker
	hub       *hub.Hub
	conn      *hub.Connection
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := hub.NewHub()
	go h.Run()
	t.Cleanup(h.Stop)

	conn := h.NewConnection(nil)
	h.Register(conn)

	f := &fixture{
		messenger: fakes.NewFakeMessenger("5551234567"),
		acks:      &fakes.FakeAckStore{},
		marker:    session.NewMarker(t.TempDir(), "relay-1"),
		hub:       h,
		conn:      conn,
		metrics:   metrics.New(),
	}
	f.svc = New(f.messenger, f.marker, f.acks, h, f.metrics, time.Second)
	require.NoError(t, f.svc.Start(context.Background()))
	t.Cleanup(f.svc.Stop)
	return f
}

func (f *fixture) nextEvent(t *testing.T) protocol.Event {
	t.Helper()
	select {
	case data := <-f.conn.Send:
		var evt protocol.Event
		require.NoError(t, json.Unmarshal(data, &evt))
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
		return protocol.Event{}
	}
}

func TestStartSubscribesAndConnects(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.messenger.Started)

	f.svc.Stop()
	assert.True(t, f.messenger.Stopped)
}

func TestReadyWritesMarkerAndBroadcasts(t *testing.T) {
	f := newFixture(t)

	f.messenger.Emit(whatsapp.Event{
		Type: whatsapp.EventReady,
		Info: &whatsapp.Info{Wid: "5550000000", Pushname: "Relay"},
	})

	assert.True(t, f.marker.Exists())
	var info whatsapp.Info
	require.NoError(t, f.marker.Read(&info))
	assert.Equal(t, "Relay", info.Pushname)

	evt := f.nextEvent(t)
	assert.Equal(t, protocol.TypeReady, evt.Type)
	assert.Equal(t, protocol.ReadyText, evt.Data)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SessionReady))
}

func TestReadyFallsBackToMessengerIdentity(t *testing.T) {
	f := newFixture(t)
	f.messenger.Identity = &whatsapp.Info{Wid: "5550000000", JID: "5550000000@s.whatsapp.net", Pushname: "Relay"}

	f.messenger.Emit(whatsapp.Event{Type: whatsapp.EventReady})

	var info whatsapp.Info
	require.NoError(t, f.marker.Read(&info))
	assert.Equal(t, *f.messenger.Identity, info)
}

func TestQRBroadcastsDataURL(t *testing.T) {
	f := newFixture(t)

	f.messenger.Emit(whatsapp.Event{Type: whatsapp.EventQR, QR: "2@ref,key,identity,adv"})

	evt := f.nextEvent(t)
	assert.Equal(t, protocol.TypeQR, evt.Type)
	assert.True(t, strings.HasPrefix(evt.Data, qr.DataURLPrefix))
}

func TestAckIsPersisted(t *testing.T) {
	f := newFixture(t)

	f.messenger.Emit(whatsapp.Event{
		Type: whatsapp.EventMessageAck,
		Ack:  &whatsapp.Ack{To: "5551234567", Level: whatsapp.AckRead},
	})

	require.Eventually(t, func() bool { return len(f.acks.Snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []fakes.AckUpdate{{Number: "5551234567", Level: 3}}, f.acks.Snapshot())
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.AcksPersisted.WithLabelValues(metrics.ResultOK)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAcksPersistInArrivalOrder(t *testing.T) {
	f := newFixture(t)

	for _, level := range []int{whatsapp.AckServer, whatsapp.AckDevice, whatsapp.AckRead} {
		f.messenger.Emit(whatsapp.Event{
			Type: whatsapp.EventMessageAck,
			Ack:  &whatsapp.Ack{To: "5551234567", Level: level},
		})
	}

	require.Eventually(t, func() bool { return len(f.acks.Snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []fakes.AckUpdate{
		{Number: "5551234567", Level: 1},
		{Number: "5551234567", Level: 2},
		{Number: "5551234567", Level: 3},
	}, f.acks.Snapshot())
}

func TestAckDoesNotBlockEventHandler(t *testing.T) {
	f := newFixture(t)
	f.acks.Hold = make(chan struct{})

	returned := make(chan struct{})
	go func() {
		f.messenger.Emit(whatsapp.Event{
			Type: whatsapp.EventMessageAck,
			Ack:  &whatsapp.Ack{To: "5551234567", Level: whatsapp.AckDevice},
		})
		// Later lifecycle events are not held up by the datastore.
		f.messenger.Emit(whatsapp.Event{Type: whatsapp.EventReady})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("event handler waited on the ack store")
	}
	assert.True(t, f.marker.Exists())

	close(f.acks.Hold)
	require.Eventually(t, func() bool { return len(f.acks.Snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestAckFailureIsCountedNotPropagated(t *testing.T) {
	f := newFixture(t)
	f.acks.Err = errors.New("connection refused")

	f.messenger.Emit(whatsapp.Event{
		Type: whatsapp.EventMessageAck,
		Ack:  &whatsapp.Ack{To: "5551234567", Level: whatsapp.AckDevice},
	})

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.AcksPersisted.WithLabelValues(metrics.ResultError)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCallIsRejected(t *testing.T) {
	f := newFixture(t)

	call := whatsapp.Call{ID: "call-1", From: "5551234567@s.whatsapp.net"}
	f.messenger.Emit(whatsapp.Event{Type: whatsapp.EventCall, Call: &call})

	assert.Equal(t, []whatsapp.Call{call}, f.messenger.Rejected)
}

func TestDisconnectedRemovesMarker(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.marker.Write(whatsapp.Info{}))

	f.messenger.Emit(whatsapp.Event{Type: whatsapp.EventDisconnected, Reason: "LOGOUT"})

	assert.False(t, f.marker.Exists())
	assert.False(t, f.svc.Ready())
}

func TestSendText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	info, err := f.svc.SendText(ctx, "5551234567", "hello")
	require.NoError(t, err)
	assert.Equal(t, "3EB0FAKE", info.ID)
	assert.Equal(t, []fakes.SentMessage{{Number: "5551234567", Text: "hello"}}, f.messenger.Sent)

	_, err = f.svc.SendText(ctx, "5559999999", "hello")
	assert.ErrorIs(t, err, ErrNotRegistered)

	f.messenger.CheckErr = whatsapp.ErrNotConnected
	_, err = f.svc.SendText(ctx, "5551234567", "hello")
	assert.ErrorIs(t, err, ErrRegistrationCheck)
	assert.ErrorIs(t, err, whatsapp.ErrNotConnected)
}

func TestLogoutRemovesMarkerEvenOnFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.marker.Write(whatsapp.Info{}))
	f.messenger.LogoutErr = errors.New("not logged in")

	err := f.svc.Logout(context.Background())
	assert.Error(t, err)
	assert.False(t, f.marker.Exists())
	assert.Equal(t, 1, f.messenger.Logouts)
}

func TestRequestPairingCode(t *testing.T) {
	f := newFixture(t)

	code, err := f.svc.RequestPairingCode(context.Background(), "5551234567")
	require.NoError(t, err)
	assert.Equal(t, "ABCD-EFGH", code)

	f.messenger.PairingErr = errors.New("already paired")
	_, err = f.svc.RequestPairingCode(context.Background(), "5551234567")
	assert.Error(t, err)
}
