package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/warp/vacation-engine/audit"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var out kgo.ProduceResults
	for _, r := range rs {
		f.records = append(f.records, r)
		out = append(out, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return out
}

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Notify(context.Context, audit.Alert) error {
	r.calls++
	return r.err
}

func criticalAlert() audit.Alert {
	return audit.Alert{
		ReportID:  "rep-1",
		CompanyID: "co-1",
		Status:    audit.StatusFailed,
		Timestamp: time.Date(2024, time.March, 1, 2, 0, 0, 0, time.UTC),
		Findings: []audit.Finding{{
			Check:      "negative_balance",
			Type:       "NEGATIVE_BALANCE",
			Kind:       audit.KindError,
			Severity:   audit.SeverityCritical,
			EmployeeID: "emp-1",
			Message:    "available_days=-3",
		}},
	}
}

func TestKafka_Notify_PublishesKeyedRecord(t *testing.T) {
	// GIVEN: A Kafka notifier on a custom topic
	// WHEN: A critical alert is sent
	// THEN: One record keyed by company carries the alert as JSON

	p := &fakeProducer{}
	k := NewKafka(p, WithTopic("alerts"))

	require.NoError(t, k.Notify(context.Background(), criticalAlert()))

	require.Len(t, p.records, 1)
	rec := p.records[0]
	assert.Equal(t, "alerts", rec.Topic)
	assert.Equal(t, "co-1", string(rec.Key))
	assert.Equal(t, "report_id", rec.Headers[0].Key)
	assert.Equal(t, "rep-1", string(rec.Headers[0].Value))

	var decoded audit.Alert
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, "rep-1", decoded.ReportID)
	require.Len(t, decoded.Findings, 1)
	assert.Equal(t, audit.SeverityCritical, decoded.Findings[0].Severity)
}

func TestKafka_Notify_DeliveryErrorReturned(t *testing.T) {
	p := &fakeProducer{err: errors.New("broker down")}
	k := NewKafka(p)

	err := k.Notify(context.Background(), criticalAlert())
	assert.ErrorContains(t, err, "broker down")
}

func TestMulti_CallsAllAndJoinsErrors(t *testing.T) {
	// GIVEN: Three notifiers, the first failing
	// WHEN: Multi delivers an alert
	// THEN: All are called and the failure is reported

	failing := &recordingNotifier{err: errors.New("smtp refused")}
	ok1, ok2 := &recordingNotifier{}, &recordingNotifier{}
	m := Multi{failing, ok1, NewLog(nil), ok2}

	err := m.Notify(context.Background(), criticalAlert())

	assert.ErrorContains(t, err, "smtp refused")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok1.calls)
	assert.Equal(t, 1, ok2.calls)
}

func TestLog_NeverFails(t *testing.T) {
	assert.NoError(t, NewLog(nil).Notify(context.Background(), criticalAlert()))
}

func TestNewKafkaClient_NoBrokers(t *testing.T) {
	_, err := NewKafkaClient(nil, DefaultAlertTopic)
	assert.Error(t, err)
}
