package inject

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
)

func runEmbeddedNATS(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := natstest.DefaultTestOptions
	opts.Port = -1
	srv := natstest.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv
}

func buildTestService() *model.Service {
	svc := model.NewService()
	svc.ServiceID = "1750-ut-rtd"
	svc.CompanyName = "NS"
	svc.TransportMode = "IC"
	svc.TransportModeDescription = "Intercity"

	ut := model.NewServiceStop("ut")
	ut.StopName = "Utrecht Centraal"
	ut.Servicenumber = "1750"
	ut.HasDeparture = true
	ut.DepartureTime = time.Date(2015, 4, 1, 12, 0, 0, 0, time.UTC)
	ut.ActualDeparturePlatform = "5b"

	gd := model.NewServiceStop("gd")
	gd.StopName = "Gouda"
	gd.Servicenumber = "1750"
	gd.HasArrival = true
	gd.ArrivalTime = time.Date(2015, 4, 1, 12, 30, 0, 0, time.UTC)
	gd.HasDeparture = true
	gd.DepartureTime = time.Date(2015, 4, 1, 12, 32, 0, 0, time.UTC)
	gd.Attributes = []model.Attribute{{Code: "NB", ProcessingCode: model.ProcessingUnboardingOnly}}

	rtd := model.NewServiceStop("rtd")
	rtd.StopName = "Rotterdam Centraal"
	rtd.Servicenumber = "1750"
	rtd.HasArrival = true
	rtd.ArrivalTime = time.Date(2015, 4, 1, 13, 0, 0, 0, time.UTC)

	svc.Stops = []*model.ServiceStop{ut, gd, rtd}
	return svc
}

func TestBuildRecordFromOrigin(t *testing.T) {
	svc := buildTestService()
	record := BuildRecord(svc, svc.Stops[0])

	assert.Equal(t, "1750-ut-rtd", record.ServiceID)
	assert.Equal(t, "rtd", record.DestinationCode)
	assert.Equal(t, "Rotterdam Centraal", record.DestinationText)
	assert.Equal(t, "5b", record.Platform)
	assert.False(t, record.DoNotBoard)
	require.Len(t, record.Stops, 2)
	assert.Equal(t, "gd", record.Stops[0].Code)
	assert.Equal(t, "rtd", record.Stops[1].Code)
}

func TestBuildRecordDoNotBoardFromAttribute(t *testing.T) {
	svc := buildTestService()
	record := BuildRecord(svc, svc.Stops[1])
	assert.True(t, record.DoNotBoard)
}

func TestViaStopsExcludesDestination(t *testing.T) {
	svc := buildTestService()
	record := BuildRecord(svc, svc.Stops[0])

	for _, v := range record.Via {
		assert.NotEqual(t, "rtd", v.Code)
	}
	assert.Len(t, record.Via, 1)
	assert.Equal(t, "gd", record.Via[0].Code)
}

func TestViaStopsCappedAtMaxVia(t *testing.T) {
	svc := model.NewService()
	stops := []*model.ServiceStop{}
	for i := 0; i < 6; i++ {
		s := model.NewServiceStop(string(rune('a' + i)))
		s.HasArrival = true
		s.ArrivalTime = time.Now()
		stops = append(stops, s)
	}
	svc.Stops = stops

	record := BuildRecord(svc, stops[0])
	assert.LessOrEqual(t, len(record.Via), maxVia)
}

func TestSendTimesOutWithNoResponder(t *testing.T) {
	srv := runEmbeddedNATS(t)

	// A subscriber that never replies: without one, the server answers
	// "no responders" at once and the timeout is never exercised.
	silent, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer silent.Close()
	_, err = silent.Subscribe("inject.test.no-responder", func(*nats.Msg) {})
	require.NoError(t, err)
	require.NoError(t, silent.Flush())

	transport, err := NewTransport(srv.ClientURL(), "inject.test.no-responder")
	require.NoError(t, err)
	defer transport.Close()
	transport.timeout = 200 * time.Millisecond

	start := time.Now()
	err = transport.Send(context.Background(), Record{ServiceID: "svc-1"})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 2*time.Second)
}
