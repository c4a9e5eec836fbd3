package endpoints

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cryoetdb/cryoetdb/pkg/query"
)

// MockQuerier implements query.Querier for testing using testify/mock
type MockQuerier struct {
	mock.Mock
}

func (m *MockQuerier) CountAnnotations(ctx context.Context, name string) (int64, error) {
	args := m.Called(name)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockQuerier) FindRichTomograms(ctx context.Context, minCount int64) ([]query.RichTomogram, error) {
	args := m.Called(minCount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]query.RichTomogram), args.Error(1)
}

func (m *MockQuerier) LocateAnnotation(ctx context.Context, id int64) (query.AnnotationLocation, error) {
	args := m.Called(id)
	return args.Get(0).(query.AnnotationLocation), args.Error(1)
}

// MockHealth implements server.HealthChecker for testing
type MockHealth struct {
	mock.Mock
}

func (m *MockHealth) CheckConnectivity(ctx context.Context) error {
	return m.Called().Error(0)
}
