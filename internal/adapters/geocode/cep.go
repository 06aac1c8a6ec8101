package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/pkg/metrics"
)

const postalCodeDigits = 8

// CEPClient looks up Brazilian postal codes (CEP) on a CEP Aberto style API.
type CEPClient struct {
	client
	baseURL string
	token   string
}

// NewCEPClient builds a client against baseURL, e.g.
// "https://www.cepaberto.com/api/v3". An empty token disables lookups.
func NewCEPClient(baseURL, token string, opts ...Option) *CEPClient {
	return &CEPClient{
		client:  newClient("cep", opts),
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type cepPayload struct {
	CEP       string `json:"cep"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Bairro    string `json:"bairro"`
	Cidade    *struct {
		Nome string `json:"nome"`
	} `json:"cidade"`
}

// LookupPostalCode resolves code, which may contain punctuation. Codes
// without exactly eight digits yield ErrNoResult without a network call.
func (c *CEPClient) LookupPostalCode(ctx context.Context, code string) (Result, error) {
	if c.token == "" {
		metrics.RecordGeocodeRequest(c.provider, resultDisabled)
		return Result{}, ErrDisabled
	}
	clean := model.NormalizePostalCode(code)
	if len(clean) != postalCodeDigits {
		return Result{}, ErrNoResult
	}

	build := func(ctx context.Context) (*http.Request, error) {
		endpoint := fmt.Sprintf("%s/cep?cep=%s", c.baseURL, url.QueryEscape(clean))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Token token="+c.token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}
	return c.fetch(ctx, clean, build, decodeCEP)
}

func decodeCEP(body io.Reader) (Result, error) {
	var p cepPayload
	if err := json.NewDecoder(body).Decode(&p); err != nil {
		return Result{}, fmt.Errorf("geocode cep: decode: %w", err)
	}
	// The API answers unknown codes with an empty object.
	if p.Latitude == "" || p.Longitude == "" {
		return Result{}, ErrNoResult
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(p.Latitude), 64)
	if err != nil {
		return Result{}, fmt.Errorf("geocode cep: latitude %q: %w", p.Latitude, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(p.Longitude), 64)
	if err != nil {
		return Result{}, fmt.Errorf("geocode cep: longitude %q: %w", p.Longitude, err)
	}
	res := Result{Point: model.Point{Lat: lat, Lng: lng}, Neighborhood: strings.TrimSpace(p.Bairro)}
	if p.Cidade != nil {
		res.City = strings.TrimSpace(p.Cidade.Nome)
	}
	return res, nil
}
