package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relaybot/internal/eventbus"
	"relaybot/internal/relay"
	"relaybot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		require.Nil(t, st)
	}
	_, err := Open(Config{Driver: "mongo"}, logx.Nop())
	require.ErrorContains(t, err, "unknown storage driver")

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for driver, name := range map[string]string{"file": "audit", "sqlite": "audit.db"} {
		st, err := Open(Config{Driver: driver, Path: filepath.Join(dir, driver, name), BusyTimeout: time.Second}, logx.Nop())
		require.NoError(t, err, driver)
		t.Cleanup(func() { _ = st.Close() })
		out[driver] = st
	}
	return out
}

func TestAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for driver, st := range testStores(t) {
		t.Run(driver, func(t *testing.T) {
			req := require.New(t)
			entries := []AuditEntry{
				{At: at, Store: relay.StoreListeners, TargetID: 1, ActorID: 1, Added: true, Persisted: true},
				{At: at.Add(time.Second), Store: relay.StoreIgnored, TargetID: 9, ActorID: 1, Added: true, Persisted: true},
				{At: at.Add(2 * time.Second), Store: relay.StoreIgnored, TargetID: 9, ActorID: 1, Added: false},
			}
			for _, e := range entries {
				req.NoError(st.AppendAudit(ctx, e))
			}

			got, err := st.Recent(ctx, Query{})
			req.NoError(err)
			req.Len(got, 3)
			req.Equal(entries[2], got[0])
			req.True(got[2].At.Equal(at))

			got, err = st.Recent(ctx, Query{Store: relay.StoreIgnored, Limit: 1})
			req.NoError(err)
			req.Len(got, 1)
			req.False(got[0].Added)

			got, err = st.Recent(ctx, Query{TargetID: 1})
			req.NoError(err)
			req.Len(got, 1)
			req.Equal(relay.StoreListeners, got[0].Store)
		})
	}
}

func TestFileStoreSkipsTornLine(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "audit.jsonl")}, logx.Nop())
	req.NoError(err)
	defer st.Close()

	req.NoError(st.AppendAudit(context.Background(), AuditEntry{Store: relay.StoreListeners, TargetID: 4}))

	f, err := os.OpenFile(filepath.Join(dir, "audit.audit.jsonl"), os.O_APPEND|os.O_WRONLY, 0o600)
	req.NoError(err)
	_, err = f.WriteString(`{"store":"lis`)
	req.NoError(err)
	req.NoError(f.Close())

	got, err := st.Recent(context.Background(), Query{})
	req.NoError(err)
	req.Len(got, 1)
	req.Equal(int64(4), got[0].TargetID)

	req.NoError(st.Close())
	req.Error(st.AppendAudit(context.Background(), AuditEntry{}))
}

func TestAuditSinkRecordsMembershipChanges(t *testing.T) {
	req := require.New(t)
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "audit")}, logx.Nop())
	req.NoError(err)
	defer st.Close()

	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	sink := NewAuditSink(st, logx.Nop())

	ready := make(chan struct{})
	go func() {
		close(ready)
		done <- sink.Run(ctx, bus)
	}()
	<-ready

	// Run subscribes asynchronously; publish until the entry lands.
	require.Eventually(t, func() bool {
		bus.Publish(eventbus.Event{Type: relay.EventForwarded, Data: relay.Forwarded{SenderID: 3, Recipients: 2}})
		bus.Publish(eventbus.Event{Type: relay.EventMembershipChanged, Data: relay.MembershipChange{
			Store: relay.StoreIgnored, TargetID: 77, ActorID: 5, Added: true, Persisted: true,
		}})
		got, err := st.Recent(context.Background(), Query{})
		return err == nil && len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	got, err := st.Recent(context.Background(), Query{TargetID: 77, Limit: 1})
	req.NoError(err)
	req.Len(got, 1)
	req.Equal(relay.StoreIgnored, got[0].Store)
	req.Equal(int64(5), got[0].ActorID)
	req.False(got[0].At.IsZero())

	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		t.Fatal("sink did not stop")
	}
}
