package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func readEvent(t *testing.T, reader *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if name != "" {
				return name, data
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStreamServesSSE(t *testing.T) {
	broadcaster := NewBroadcaster(logger.Nop(), nil)
	registry := NewRegistry(StreamAdmin, nil)
	stream, err := NewStream(StreamParams{
		Broadcaster: broadcaster,
		Registry:    registry,
		Heartbeat:   20 * time.Millisecond,
		Logger:      logger.Nop(),
	})
	require.NoError(t, err)

	subject := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = stream.Serve(w, r, Principal{UserID: subject, Role: enums.UserRoleAdmin})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	name, data := readEvent(t, reader)
	require.Equal(t, EventConnected, name)
	require.Contains(t, data, subject.String())

	require.Eventually(t, func() bool {
		return broadcaster.SubscriberCount(EventSlipUploaded) == 1
	}, time.Second, 5*time.Millisecond)

	info := stream.Info()
	require.Equal(t, 1, info.ConnectedSessions)
	require.Equal(t, 1, info.Subscribers[EventSlipUploaded])
	require.Len(t, info.Sessions, 1)
	require.Equal(t, subject, info.Sessions[0].SubjectID)

	broadcaster.PublishSlipUploaded(context.Background(), "booking-1", "slip-1")
	name, data = readEvent(t, reader)
	require.Equal(t, EventSlipUploaded, name)
	require.Contains(t, data, `"bookingId":"booking-1"`)

	cancel()
	require.Eventually(t, func() bool {
		return registry.Count() == 0 && broadcaster.SubscriberCount(EventSlipUploaded) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewStreamDefaultsEvents(t *testing.T) {
	stream, err := NewStream(StreamParams{
		Broadcaster: NewBroadcaster(nil, nil),
		Registry:    NewRegistry(StreamAdmin, nil),
		Logger:      logger.Nop(),
	})
	require.NoError(t, err)
	require.Equal(t, []string{EventSlipUploaded}, stream.events)

	_, err = NewStream(StreamParams{Registry: NewRegistry(StreamAdmin, nil), Logger: logger.Nop()})
	require.Error(t, err)
}

func TestMemberStreamOnlyCarriesOwnEvents(t *testing.T) {
	broadcaster := NewBroadcaster(logger.Nop(), nil)
	registry := NewRegistry(StreamMember, nil)
	stream, err := NewStream(StreamParams{
		Broadcaster: broadcaster,
		Registry:    registry,
		UserEvents:  MemberEvents,
		Heartbeat:   time.Hour,
		Logger:      logger.Nop(),
	})
	require.NoError(t, err)
	require.Empty(t, stream.events)

	member := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = stream.Serve(w, r, Principal{UserID: member, Role: enums.UserRoleUser})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	name, _ := readEvent(t, reader)
	require.Equal(t, EventConnected, name)

	require.Eventually(t, func() bool {
		return broadcaster.SubscriberCount(UserChannel(EventNotification, member)) == 1
	}, time.Second, 5*time.Millisecond)

	info := stream.InfoFor(member)
	require.Equal(t, 1, info.ConnectedSessions)
	require.Equal(t, MemberEvents, info.Events)
	require.Zero(t, stream.InfoFor(uuid.New()).ConnectedSessions)

	broadcaster.PublishSlipUploaded(context.Background(), "b-1", "s-1")
	broadcaster.Publish(context.Background(), UserChannel(EventNotification, uuid.New()), map[string]string{"title": "someone else"})
	broadcaster.Publish(context.Background(), UserChannel(EventCouponAssigned, member), map[string]string{"code": "SPA10"})

	name, data := readEvent(t, reader)
	require.Equal(t, EventCouponAssigned, name)
	require.JSONEq(t, `{"code":"SPA10"}`, data)

	cancel()
	require.Eventually(t, func() bool {
		return registry.Count() == 0 && broadcaster.TotalSubscribers() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
