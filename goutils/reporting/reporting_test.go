package reporting

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/settings"
)

func TestIssueReporter_Report(t *testing.T) {
	var (
		mu       sync.Mutex
		received = map[string]*datamodel.FlowIssue{}
	)

	handler := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)

			issue := new(datamodel.FlowIssue)
			require.NoError(t, json.Unmarshal(body, issue))

			mu.Lock()
			received[name] = issue
			mu.Unlock()

			w.WriteHeader(http.StatusOK)
		}
	}

	slack := httptest.NewServer(handler("slack"))
	defer slack.Close()

	endpoint := httptest.NewServer(handler("endpoint"))
	defer endpoint.Close()

	reporter := InitIssueReporter(&settings.SettingsObj{
		InstanceId: "instance-1",
		HttpClient: &settings.HTTPClient{ConnectionTimeout: 5},
		Reporting: &settings.Reporting{
			SlackWebhookURL:   slack.URL,
			FlowIssueEndpoint: endpoint.URL,
			RequestsPerSecond: 10,
		},
	})

	reporter.Report(&datamodel.FlowIssue{Flow: "0xabc:0xdef:stake", Action: "stake", Kind: "TransactionReverted", Step: "receipt"})

	require.Len(t, received, 2)
	assert.Equal(t, "instance-1", received["slack"].InstanceID)
	assert.Equal(t, "TransactionReverted", received["endpoint"].Kind)
	assert.Equal(t, "receipt", received["endpoint"].Step)
}

func TestIssueReporter_SkipsUnconfiguredTargets(t *testing.T) {
	reporter := InitIssueReporter(&settings.SettingsObj{
		HttpClient: &settings.HTTPClient{ConnectionTimeout: 5},
		Reporting:  &settings.Reporting{},
	})

	assert.NotPanics(t, func() {
		reporter.Report(&datamodel.FlowIssue{Flow: "flow"})
	})
}
