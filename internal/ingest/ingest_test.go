package ingest

import (
	"bytes"
	"context"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
	"github.com/rdt-serviceinfo/serviceinfo/internal/realtime"
)

type fakeResolver struct{}

func (fakeResolver) StationName(_ context.Context, code string) (string, bool) { return code, true }
func (fakeResolver) TransportMode(_ context.Context, _ string) (string, bool)  { return "Train", true }
func (fakeResolver) CompanyName(_ context.Context, _ string) (string, bool)    { return "NS", true }

type fakeSink struct {
	stored  []*model.Service
	deleted []string
	failNext bool
}

func (f *fakeSink) StoreService(_ context.Context, svc *model.Service, _ model.Tier) error {
	if f.failNext {
		f.failNext = false
		return assert.AnError
	}
	f.stored = append(f.stored, svc)
	return nil
}

func (f *fakeSink) Delete(_ context.Context, date, number string, _ model.Tier) error {
	f.deleted = append(f.deleted, date+"/"+number)
	return nil
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecompressRoundTrip(t *testing.T) {
	original := []byte("hello ingest")
	compressed := gzipBytes(t, original)

	out, err := decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, original, out)
}

func TestDecompressInvalidData(t *testing.T) {
	_, err := decompress([]byte("not gzip"))
	assert.Error(t, err)
}

func TestApplyStoreAction(t *testing.T) {
	sink := &fakeSink{}
	p := &Pipeline{resolver: fakeResolver{}, sink: sink}

	svc := model.NewService()
	svc.ServiceID = "1"
	decision := realtime.Decision{Service: svc, Action: realtime.ActionStore}

	err := p.apply(context.Background(), decision)
	require.NoError(t, err)
	require.Len(t, sink.stored, 1)
	assert.Equal(t, "1", sink.stored[0].ServiceID)
}

func TestApplyRemoveAction(t *testing.T) {
	sink := &fakeSink{}
	p := &Pipeline{resolver: fakeResolver{}, sink: sink}

	svc := model.NewService()
	svc.Servicenumber = "1750"
	decision := realtime.Decision{Service: svc, Action: realtime.ActionRemove}

	err := p.apply(context.Background(), decision)
	require.NoError(t, err)
	require.Len(t, sink.deleted, 1)
	assert.Contains(t, sink.deleted[0], "1750")
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	p := &Pipeline{queue: make(chan []byte, 1)}

	p.enqueue([]byte("first"))
	p.enqueue([]byte("second"))

	got := <-p.queue
	assert.Equal(t, []byte("second"), got)
}

func TestProcessMessageIsolatesParseFailure(t *testing.T) {
	sink := &fakeSink{}
	p := &Pipeline{resolver: fakeResolver{}, sink: sink}

	assert.NotPanics(t, func() {
		p.processMessage(context.Background(), []byte("not xml"))
	})
	assert.Empty(t, sink.stored)
}
