package realtime

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct{}

func (fakeResolver) StationName(_ context.Context, code string) (string, bool) {
	names := map[string]string{"ut": "Utrecht Centraal", "asd": "Amsterdam Centraal", "rtd": "Rotterdam Centraal", "gd": "Gouda", "bd": "Breda"}
	n, ok := names[code]
	return n, ok
}

func (fakeResolver) TransportMode(_ context.Context, code string) (string, bool) {
	return "Train", true
}

func (fakeResolver) CompanyName(_ context.Context, code string) (string, bool) {
	return "NS", true
}

const wingsMessage = `<?xml version="1.0"?>
<ServiceInfoList>
  <ServiceInfo>
    <ServiceCode>123456</ServiceCode>
    <CompanyCode>NS</CompanyCode>
    <TransportModeCode>IC</TransportModeCode>
    <StopList>
      <Stop>
        <StopCode>UT</StopCode>
        <StopServiceCode>1750</StopServiceCode>
        <Departure>2015-04-01T12:34:00+02:00</Departure>
      </Stop>
      <Stop>
        <StopCode>GD</StopCode>
        <StopServiceCode>1750</StopServiceCode>
        <Arrival>2015-04-01T13:00:00+02:00</Arrival>
        <Departure>2015-04-01T13:02:00+02:00</Departure>
      </Stop>
      <Stop>
        <StopCode>RTD</StopCode>
        <StopServiceCode>12850</StopServiceCode>
        <Arrival>2015-04-01T13:30:00+02:00</Arrival>
      </Stop>
    </StopList>
  </ServiceInfo>
</ServiceInfoList>`

func TestParseMessageWings(t *testing.T) {
	decisions := ParseMessage(context.Background(), []byte(wingsMessage), fakeResolver{})
	require.Len(t, decisions, 2)

	numbers := map[string]bool{}
	for _, d := range decisions {
		numbers[d.Service.Servicenumber] = true
		assert.Equal(t, ActionStore, d.Action)
		assert.Len(t, d.Service.Stops, 3)
	}
	assert.True(t, numbers["1750"])
	assert.True(t, numbers["12850"])
}

const cancelledMessage = `<?xml version="1.0"?>
<ServiceInfoList>
  <ServiceInfo>
    <ServiceCode>999</ServiceCode>
    <CompanyCode>NS</CompanyCode>
    <TransportModeCode>IC</TransportModeCode>
    <StopList>
      <Stop>
        <StopCode>UT</StopCode>
        <StopServiceCode>500</StopServiceCode>
        <Departure>2015-04-01T12:00:00+02:00</Departure>
      </Stop>
      <Stop StopType="Cancelled-Stop">
        <StopCode>BD</StopCode>
        <StopServiceCode>500</StopServiceCode>
        <Arrival>2015-04-01T12:30:00+02:00</Arrival>
        <Departure>2015-04-01T12:32:00+02:00</Departure>
      </Stop>
      <Stop>
        <StopCode>GD</StopCode>
        <StopServiceCode>500</StopServiceCode>
        <Arrival>2015-04-01T13:00:00+02:00</Arrival>
        <Departure>2015-04-01T13:02:00+02:00</Departure>
      </Stop>
      <Stop StopType="Normal-Stop">
        <StopCode>RTD</StopCode>
        <StopServiceCode>500</StopServiceCode>
        <Arrival>2015-04-01T13:30:00+02:00</Arrival>
      </Stop>
    </StopList>
  </ServiceInfo>
</ServiceInfoList>`

func TestParseMessageCancelledPropagation(t *testing.T) {
	decisions := ParseMessage(context.Background(), []byte(cancelledMessage), fakeResolver{})
	require.Len(t, decisions, 1)

	stops := decisions[0].Service.Stops
	require.Len(t, stops, 4)

	assert.False(t, stops[0].CancelledArrival)
	assert.True(t, stops[1].CancelledDeparture)
	assert.True(t, stops[2].CancelledArrival, "stop after cancelled departure must carry cancelled arrival")
	assert.False(t, stops[2].CancelledDeparture, "own departure is unaffected unless explicitly cancelled")
	assert.False(t, stops[3].CancelledArrival, "explicit Normal-Stop clears the carried cancellation")
}

func TestParseMessageMalformedEnvelope(t *testing.T) {
	decisions := ParseMessage(context.Background(), []byte("not xml"), fakeResolver{})
	assert.Nil(t, decisions)
}

const fullyCancelledMessage = `<?xml version="1.0"?>
<ServiceInfoList>
  <ServiceInfo>
    <ServiceCode>777</ServiceCode>
    <CompanyCode>NS</CompanyCode>
    <TransportModeCode>IC</TransportModeCode>
    <RemoveService>%s</RemoveService>
    <StopList>
      <Stop StopType="Cancelled-Stop">
        <StopCode>UT</StopCode>
        <StopServiceCode>600</StopServiceCode>
        <Departure>2015-04-01T12:00:00+02:00</Departure>
      </Stop>
      <Stop StopType="Cancelled-Stop">
        <StopCode>ASD</StopCode>
        <StopServiceCode>600</StopServiceCode>
        <Arrival>2015-04-01T12:30:00+02:00</Arrival>
      </Stop>
    </StopList>
  </ServiceInfo>
</ServiceInfoList>`

func TestParseMessageFullyCancelledWithoutRemoveSignalIsStored(t *testing.T) {
	msg := fmt.Sprintf(fullyCancelledMessage, "false")
	decisions := ParseMessage(context.Background(), []byte(msg), fakeResolver{})
	require.Len(t, decisions, 1)
	assert.Equal(t, ActionStore, decisions[0].Action)
	assert.True(t, decisions[0].Service.Cancelled)
}

func TestParseMessageFullyCancelledWithRemoveSignalIsRemoved(t *testing.T) {
	msg := fmt.Sprintf(fullyCancelledMessage, "true")
	decisions := ParseMessage(context.Background(), []byte(msg), fakeResolver{})
	require.Len(t, decisions, 1)
	assert.Equal(t, ActionRemove, decisions[0].Action)
}
