package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/photodispatch/internal/domain/model"
)

// params reads typed query values and collects the failures.
type params struct {
	values url.Values
	errs   *model.ValidationError
}

func newParams(values url.Values) *params {
	return &params{values: values, errs: model.NewValidationError()}
}

func (p *params) str(name string) string {
	return strings.TrimSpace(p.values.Get(name))
}

func (p *params) services() []model.ServiceID {
	return model.ParseServices(p.values.Get("services"))
}

func (p *params) date(name string, required bool) model.Date {
	raw := p.str(name)
	if raw == "" {
		if required {
			p.errs.Add(name, "required")
		}
		return model.Date{}
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		p.errs.Add(name, "must be YYYY-MM-DD")
	}
	return d
}

func (p *params) clock(name string, required bool) model.Clock {
	raw := p.str(name)
	if raw == "" {
		if required {
			p.errs.Add(name, "required")
		}
		return 0
	}
	c, err := model.ParseClock(raw)
	if err != nil {
		p.errs.Add(name, "must be HH:MM")
	}
	return c
}

func (p *params) integer(name string, required bool) int {
	raw := p.str(name)
	if raw == "" {
		if required {
			p.errs.Add(name, "required")
		}
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.errs.Add(name, "must be an integer")
	}
	return n
}

func (p *params) boolean(name string) bool {
	raw := p.str(name)
	if raw == "" {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs.Add(name, "must be true or false")
	}
	return b
}

// point reads lat and lng. Both or neither must be present.
func (p *params) point(required bool) (model.Point, bool) {
	rawLat, rawLng := p.str("lat"), p.str("lng")
	if rawLat == "" && rawLng == "" {
		if required {
			p.errs.Add("lat", "required")
			p.errs.Add("lng", "required")
		}
		return model.Point{}, false
	}
	lat, latErr := strconv.ParseFloat(rawLat, 64)
	lng, lngErr := strconv.ParseFloat(rawLng, 64)
	switch {
	case latErr != nil:
		p.errs.Add("lat", "must be a number")
	case lngErr != nil:
		p.errs.Add("lng", "must be a number")
	case lat < -90 || lat > 90:
		p.errs.Add("lat", fmt.Sprintf("%v is out of range", lat))
	case lng < -180 || lng > 180:
		p.errs.Add("lng", fmt.Sprintf("%v is out of range", lng))
	default:
		return model.Point{Lat: lat, Lng: lng}, true
	}
	return model.Point{}, false
}

func (p *params) err() error {
	return p.errs.OrNil()
}
