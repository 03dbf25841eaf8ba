package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/httpclient"
	"sova-txcore/goutils/settings"
)

type Service interface {
	Report(issue *datamodel.FlowIssue)
}

// IssueReporter posts failed flows to the slack webhook and the issue endpoint.
// Either target is skipped when not configured.
type IssueReporter struct {
	httpClient  *retryablehttp.Client
	rateLimiter *rate.Limiter
	settingsObj *settings.SettingsObj
}

var _ Service = (*IssueReporter)(nil)

func InitIssueReporter(settingsObj *settings.SettingsObj) *IssueReporter {
	rps := settingsObj.Reporting.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	return &IssueReporter{
		httpClient:  httpclient.GetDefaultHTTPClient(settingsObj.HttpClient),
		rateLimiter: rate.NewLimiter(rate.Limit(rps), rps),
		settingsObj: settingsObj,
	}
}

func (i *IssueReporter) Report(issue *datamodel.FlowIssue) {
	if issue.InstanceID == "" {
		issue.InstanceID = i.settingsObj.InstanceId
	}

	log.WithField("issue", issue).Debug("reporting issue")

	issueBytes, err := json.Marshal(issue)
	if err != nil {
		log.WithError(err).Error("failed to json marshal issue")

		return
	}

	wg := sync.WaitGroup{}
	wg.Add(2)

	go func() {
		defer wg.Done()
		i.post("slack", i.settingsObj.Reporting.SlackWebhookURL, issueBytes)
	}()

	go func() {
		defer wg.Done()
		i.post("issue endpoint", i.settingsObj.Reporting.FlowIssueEndpoint, issueBytes)
	}()

	wg.Wait()
}

func (i *IssueReporter) post(target, url string, issue []byte) {
	if url == "" {
		return
	}

	logger := log.WithField("target", target)

	req, err := retryablehttp.NewRequest(http.MethodPost, url, bytes.NewBuffer(issue))
	if err != nil {
		logger.WithError(err).Error("failed to create issue request")

		return
	}

	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("accept", "application/json")

	if err = i.rateLimiter.Wait(context.Background()); err != nil {
		logger.WithError(err).Error("failed to wait for rate limiter")

		return
	}

	res, err := i.httpClient.Do(req)
	if err != nil {
		logger.WithError(err).Error("failed to send issue")

		return
	}

	defer res.Body.Close()

	resp, err := io.ReadAll(res.Body)
	if err != nil {
		logger.WithError(err).Error("failed to read issue response body")
	}

	if res.StatusCode == http.StatusOK {
		logger.WithField("resp", string(resp)).Debug("status ok response")

		return
	}

	logger.WithField("resp", string(resp)).WithField("status", res.StatusCode).Info("unexpected issue response")
}
