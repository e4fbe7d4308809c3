package bulk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvmigrate/core/internal/client"
	"github.com/dvmigrate/core/internal/coordinator"
	"github.com/dvmigrate/core/internal/pool"
	"github.com/dvmigrate/core/internal/record"
)

func TestBuildRequestDeleteUsesIDs(t *testing.T) {
	batch := []*record.Record{record.NewRecord("account", "A1"), record.NewRecord("account", "A2")}
	req := buildRequest(client.OpDelete, "account", batch, client.BypassOptions{})
	assert.Equal(t, []string{"A1", "A2"}, req.IDs)
	assert.Nil(t, req.Records)
}

func TestBuildRequestCreateCarriesRecords(t *testing.T) {
	batch := []*record.Record{record.NewRecord("account", "A1")}
	req := buildRequest(client.OpCreate, "account", batch, client.BypassOptions{})
	assert.Equal(t, batch, req.Records)
	assert.Nil(t, req.IDs)
}

func TestAllFailedMarksEveryRecord(t *testing.T) {
	batch := []*record.Record{record.NewRecord("account", "A1"), record.NewRecord("account", "A2")}
	result := allFailed("account", batch, "boom")
	assert.Equal(t, 2, result.Failure)
	assert.Equal(t, "boom", result.Errors[0].Message)
	assert.Equal(t, "A2", result.Errors[1].RecordID)
}

func TestAllFailedAttachesDiagnosisForSelfReference(t *testing.T) {
	r := record.NewRecord("account", "3fa85f64-5717-4562-b3fc-2c963f66afa6")
	r.Set("parentaccountid", record.NewReference("account", "3fa85f64-5717-4562-b3fc-2c963f66afa6"))
	batch := []*record.Record{r}

	result := allFailed("account", batch, "With Id = 3fa85f64-5717-4562-b3fc-2c963f66afa6 violates a constraint")
	require.Len(t, result.Errors, 1)
	require.Len(t, result.Errors[0].Diagnosis, 1)
	assert.Contains(t, result.Errors[0].Diagnosis[0], "deferred")
}

func TestDecodeResponseSplitsSuccessAndFailure(t *testing.T) {
	e := &Executor{Elastic: map[string]bool{}}
	batch := []*record.Record{record.NewRecord("account", "A1"), record.NewRecord("account", "A2")}
	resp := client.Response{
		Successes: []client.RecordOutcome{{Index: 0, ID: "A1"}},
		Failures:  []client.RecordOutcome{{Index: 1, Message: "dup"}},
	}
	result := e.decodeResponse("account", batch, resp)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Failure)
	assert.Equal(t, []string{"A1"}, result.CreatedIDs)
	assert.Equal(t, "A2", result.Errors[0].RecordID)
}

func TestDecodeResponseNonElasticFaultFailsWholeBatch(t *testing.T) {
	e := &Executor{Elastic: map[string]bool{}}
	batch := []*record.Record{record.NewRecord("account", "A1"), record.NewRecord("account", "A2")}
	resp := client.Response{Fault: &client.Fault{Message: "server down"}}
	result := e.decodeResponse("account", batch, resp)
	assert.Equal(t, 2, result.Failure)
}

func TestDecodeResponseElasticDetailsSplitsPerRecord(t *testing.T) {
	e := &Executor{Elastic: map[string]bool{"account": true}}
	batch := []*record.Record{record.NewRecord("account", "A1"), record.NewRecord("account", "A2")}
	resp := client.Response{Fault: &client.Fault{
		Message: "partial",
		Details: map[string]any{
			"Plugin.BulkApiErrorDetails": []any{
				map[string]any{"requestIndex": float64(1), "message": "dup key", "statusCode": float64(409), "id": "A2-server"},
			},
		},
	}}
	result := e.decodeResponse("account", batch, resp)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Failure)
	assert.Equal(t, "A1", result.CreatedIDs[0])
	assert.Equal(t, "A2-server", result.Errors[0].RecordID)
	assert.Equal(t, 409, result.Errors[0].StatusCode)
}

func TestFaultOrErrMessagePrefersFault(t *testing.T) {
	assert.Equal(t, "from fault", faultOrErrMessage(errors.New("from err"), &client.Fault{Message: "from fault"}))
	assert.Equal(t, "from err", faultOrErrMessage(errors.New("from err"), nil))
	assert.Equal(t, "unknown error", faultOrErrMessage(nil, nil))
}

func TestIsPoolExhaustedSignal(t *testing.T) {
	assert.True(t, isPoolExhaustedSignal(&pool.ExhaustedError{Active: 1, Max: 1}))
	assert.False(t, isPoolExhaustedSignal(errors.New("other")))
	assert.False(t, isPoolExhaustedSignal(nil))
}

func TestIsBulkNotSupportedFault(t *testing.T) {
	assert.True(t, isBulkNotSupportedFault(&client.Fault{Message: "entity does not support entities of type X"}))
	assert.False(t, isBulkNotSupportedFault(&client.Fault{Message: "other"}))
	assert.False(t, isBulkNotSupportedFault(nil))
}

func TestPoolExhaustedDelayGrowsThenCaps(t *testing.T) {
	assert.Equal(t, time.Second, poolExhaustedDelay(0))
	assert.Equal(t, 2*time.Second, poolExhaustedDelay(1))
	assert.Equal(t, poolExhaustedBackoffCap, poolExhaustedDelay(10))
}

func TestChunkRecordsUsesConfiguredSize(t *testing.T) {
	records := make([]*record.Record, 5)
	for i := range records {
		records[i] = record.NewRecord("account", "A")
	}
	assert.Len(t, chunkRecords(records, 2), 3)
	assert.Len(t, chunkRecords(records, 0), 1) // falls back to DefaultBatchSize
}

type countingClient struct {
	calls int
	resp  client.Response
	err   error
}

func (c *countingClient) Execute(ctx context.Context, req client.Request) (client.Response, error) {
	c.calls++
	return c.resp, c.err
}

type staticSource struct {
	name   string
	client client.Client
}

func (s *staticSource) Name() string                                       { return s.name }
func (s *staticSource) Connect(ctx context.Context) (client.Client, error) { return s.client, nil }
func (s *staticSource) InvalidateAuth()                                    {}

func TestExecutorCreateMultipleSucceeds(t *testing.T) {
	fc := &countingClient{resp: client.Response{Successes: []client.RecordOutcome{{Index: 0, ID: "A1"}}}}
	p := pool.New([]client.ConnectionSource{&staticSource{name: "target", client: fc}}, pool.Config{}, nil)
	coord := coordinator.New(p, 5*time.Second)
	exec := NewExecutor(p, coord, 10)

	records := []*record.Record{record.NewRecord("account", "A1")}
	result, err := exec.CreateMultiple(context.Background(), "account", records, client.BypassOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, fc.calls)
}

func TestExecutorFallsBackToPerRecordWhenBulkUnsupported(t *testing.T) {
	fc := &countingClient{resp: client.Response{Fault: &client.Fault{Message: "does not support entities of type account"}}}
	p := pool.New([]client.ConnectionSource{&staticSource{name: "target", client: fc}}, pool.Config{}, nil)
	coord := coordinator.New(p, 5*time.Second)
	exec := NewExecutor(p, coord, 10)

	records := []*record.Record{record.NewRecord("account", "A1"), record.NewRecord("account", "A2")}
	result, err := exec.CreateMultiple(context.Background(), "account", records, client.BypassOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failure) // same fault returned per record too
	assert.True(t, exec.IsBulkNotSupported("account"))
}
