package mock

import "sova-txcore/goutils/datamodel"

type ReportingServiceMock struct {
	ReportMock func(issue *datamodel.FlowIssue)
}

func (m ReportingServiceMock) Report(issue *datamodel.FlowIssue) {
	m.ReportMock(issue)
}
