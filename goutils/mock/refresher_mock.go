package mock

import (
	"sova-txcore/caching"
)

type RefresherMock struct {
	RefreshMock func(keys ...caching.Key)
}

func (m RefresherMock) Refresh(keys ...caching.Key) {
	m.RefreshMock(keys...)
}
