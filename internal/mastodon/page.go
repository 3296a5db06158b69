package mastodon

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// Record is a raw JSON object as returned by the API. Numbers are kept as
// json.Number so identifiers never lose precision.
type Record map[string]any

// Page is one request/response exchange. The body is read eagerly so callers
// never have to close anything.
type Page struct {
	Request  *http.Request
	Response *http.Response
	Body     []byte
}

// StatusCode returns the HTTP status of the response
func (p *Page) StatusCode() int {
	return p.Response.StatusCode
}

// OK reports whether the response has a 2xx status
func (p *Page) OK() bool {
	return p.Response.StatusCode >= 200 && p.Response.StatusCode < 300
}

// Err returns an *HTTPError for non-2xx pages and nil otherwise
func (p *Page) Err() error {
	if p.OK() {
		return nil
	}
	return &HTTPError{
		StatusCode: p.Response.StatusCode,
		URL:        p.Request.URL.String(),
		Body:       string(p.Body),
	}
}

// Records decodes a JSON array of objects
func (p *Page) Records() ([]Record, error) {
	var records []Record
	if err := p.decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

// Record decodes a single JSON object
func (p *Page) Record() (Record, error) {
	var record Record
	if err := p.decode(&record); err != nil {
		return nil, err
	}
	return record, nil
}

func (p *Page) decode(v any) error {
	dec := json.NewDecoder(bytes.NewReader(p.Body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &MalformedResponseError{URL: p.Request.URL.String(), Err: err}
	}
	return nil
}
