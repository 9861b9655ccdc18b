package notify

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/mmynk/splitledger/internal/models"
)

var testNotification = models.Notification{
	Title:         "Payment received",
	Body:          "Bob paid you 20.00",
	GroupID:       "g1",
	TransactionID: "t1",
	Link:          "/group/g1",
}

func TestBroadcaster(t *testing.T) {
	ctx := context.Background()
	alice := models.User{ID: "alice"}
	b := NewBroadcaster(1)

	ch1, cancel1 := b.Watch("alice")
	ch2, cancel2 := b.Watch("alice")
	other, cancelOther := b.Watch("bob")
	defer cancelOther()
	assert.Equal(t, 2, b.Watchers("alice"))

	require.NoError(t, b.Emit(ctx, alice, testNotification))
	assert.Equal(t, testNotification, <-ch1)
	assert.Equal(t, testNotification, <-ch2)
	assert.Empty(t, other)

	// A full watcher drops instead of blocking.
	require.NoError(t, b.Emit(ctx, alice, testNotification))
	require.NoError(t, b.Emit(ctx, alice, testNotification))
	assert.Len(t, ch1, 1)

	cancel1()
	cancel1()
	assert.Equal(t, 1, b.Watchers("alice"))
	cancel2()
	assert.Equal(t, 0, b.Watchers("alice"))

	<-ch1
	_, ok := <-ch1
	assert.False(t, ok)
}

func TestMultiEmitter(t *testing.T) {
	var calls []string
	record := func(name string, err error) Emitter {
		return EmitterFunc(func(context.Context, models.User, models.Notification) error {
			calls = append(calls, name)
			return err
		})
	}
	boom := errors.New("boom")

	m := MultiEmitter{record("first", boom), record("second", nil)}
	err := m.Emit(context.Background(), models.User{ID: "alice"}, testNotification)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestMailEmitter(t *testing.T) {
	var gotFrom string
	var gotTo []string
	var body strings.Builder
	sender := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		gotFrom, gotTo = from, to
		_, err := msg.WriteTo(&body)
		return err
	})
	e := NewMailEmitterWithSender("ledger@example.com", "https://ledger.example.com", sender)

	err := e.Emit(context.Background(), models.User{ID: "alice", Email: "alice@example.com"}, testNotification)
	require.NoError(t, err)
	assert.Equal(t, "ledger@example.com", gotFrom)
	assert.Equal(t, []string{"alice@example.com"}, gotTo)
	assert.Contains(t, body.String(), "Subject: Payment received")
	assert.Contains(t, body.String(), "Bob paid you 20.00")

	t.Run("no address is skipped", func(t *testing.T) {
		gotTo = nil
		require.NoError(t, e.Emit(context.Background(), models.User{ID: "bob"}, testNotification))
		assert.Nil(t, gotTo)
	})

	t.Run("send failure is returned", func(t *testing.T) {
		failing := NewMailEmitterWithSender("ledger@example.com", "", gomail.SendFunc(func(string, []string, io.WriterTo) error {
			return errors.New("connection refused")
		}))
		err := failing.Emit(context.Background(), models.User{ID: "alice", Email: "alice@example.com"}, testNotification)
		assert.Error(t, err)
	})
}

func TestNewMailEmitterDialsServer(t *testing.T) {
	e := NewMailEmitter(MailConfig{Host: "127.0.0.1", Port: 1, From: "ledger@example.com"})
	require.NotNil(t, e.send)

	err := e.Emit(context.Background(), models.User{ID: "alice", Email: "alice@example.com"}, testNotification)
	assert.Error(t, err, "nothing listens on port 1")
}
