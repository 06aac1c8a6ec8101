package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/pkg/metrics"
)

// AddressClient geocodes free-text addresses against a Google Geocoding
// compatible endpoint.
type AddressClient struct {
	client
	endpoint string
	key      string
}

// NewAddressClient builds a client. An empty key disables lookups.
func NewAddressClient(endpoint, key string, opts ...Option) *AddressClient {
	return &AddressClient{
		client:   newClient("address", opts),
		endpoint: endpoint,
		key:      key,
	}
}

type addressPayload struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

// GeocodeAddress resolves address to the provider's first match.
func (c *AddressClient) GeocodeAddress(ctx context.Context, address string) (Result, error) {
	if c.key == "" {
		metrics.RecordGeocodeRequest(c.provider, resultDisabled)
		return Result{}, ErrDisabled
	}
	query := strings.TrimSpace(address)
	if query == "" {
		return Result{}, ErrNoResult
	}

	build := func(ctx context.Context) (*http.Request, error) {
		params := url.Values{}
		params.Set("address", query)
		params.Set("key", c.key)
		return http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	}
	return c.fetch(ctx, strings.ToLower(query), build, decodeAddress)
}

func decodeAddress(body io.Reader) (Result, error) {
	var p addressPayload
	if err := json.NewDecoder(body).Decode(&p); err != nil {
		return Result{}, fmt.Errorf("geocode address: decode: %w", err)
	}
	switch p.Status {
	case "OK":
	case "ZERO_RESULTS":
		return Result{}, ErrNoResult
	default:
		return Result{}, fmt.Errorf("geocode address: status %s: %s", p.Status, p.ErrorMessage)
	}
	if len(p.Results) == 0 {
		return Result{}, ErrNoResult
	}

	first := p.Results[0]
	res := Result{Point: model.Point{Lat: first.Geometry.Location.Lat, Lng: first.Geometry.Location.Lng}}
	for _, comp := range first.AddressComponents {
		for _, t := range comp.Types {
			switch t {
			case "sublocality", "sublocality_level_1", "neighborhood":
				if res.Neighborhood == "" {
					res.Neighborhood = comp.LongName
				}
			case "administrative_area_level_2", "locality":
				if res.City == "" {
					res.City = comp.LongName
				}
			}
		}
	}
	return res, nil
}
