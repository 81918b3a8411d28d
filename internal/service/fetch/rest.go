// Package fetch implements the batch-cadence boundary to the external
// per-exchange metric aggregator.
package fetch

import (
	"context"
	"fmt"
	"time"

	"AlertPulse/internal/domain/models"
	drepo "AlertPulse/internal/domain/repository"
	xhttp "AlertPulse/pkg/http"
	"AlertPulse/pkg/logger"
)

// RESTFetcher pulls one batch of metric samples over HTTP. The configured
// timeout bounds the whole request; expiry is reported as an error.
type RESTFetcher struct {
	client *xhttp.Client
	url    string
	log    *logger.Logger
}

func NewRESTFetcher(url string, timeout time.Duration, l *logger.Logger) *RESTFetcher {
	return &RESTFetcher{
		client: xhttp.NewClient(xhttp.WithTimeout(timeout)),
		url:    url,
		log:    l,
	}
}

type sampleDTO struct {
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"` // unix seconds
}

func (f *RESTFetcher) Fetch(ctx context.Context, symbols []string) ([]models.MetricSample, error) {
	var dtos []sampleDTO
	err := f.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         f.url,
		QueryParams: map[string][]string{"symbols": symbols},
	}, &dtos)
	if err != nil {
		return nil, fmt.Errorf("fetch samples: %w", err)
	}

	out := make([]models.MetricSample, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, models.MetricSample{
			Exchange:  d.Exchange,
			Symbol:    d.Symbol,
			Metric:    models.MetricName(d.Metric),
			RawValue:  d.Value,
			Timestamp: time.Unix(d.Timestamp, 0).UTC(),
		})
	}
	return out, nil
}

var _ drepo.SampleFetcher = (*RESTFetcher)(nil)
