package core

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var jsonNull = []byte("null")

// raw returns the JSON text of a result, or null when the field is absent.
func raw(r gjson.Result) []byte {
	if !r.Exists() {
		return jsonNull
	}
	return []byte(r.Raw)
}

// entityID reads "id" with "_id" as a fallback.
func entityID(r gjson.Result) string {
	if v := r.Get("id"); v.Exists() {
		return v.String()
	}
	return r.Get("_id").String()
}

// routingID accepts either a bare scalar payload or an object carrying key.
func routingID(data []byte, key string) string {
	r := gjson.ParseBytes(data)
	switch {
	case r.IsObject():
		return r.Get(key).String()
	case r.Type == gjson.String, r.Type == gjson.Number:
		return r.String()
	}
	return ""
}

// idList reads an array of ids. Elements may be scalars or objects with an id.
func idList(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	var out []string
	for _, v := range r.Array() {
		id := v.String()
		if v.IsObject() {
			id = entityID(v)
		}
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// payload builds an outbound JSON object field by field.
type payload struct {
	buf []byte
	err error
}

func newPayload() *payload {
	return &payload{buf: []byte("{}")}
}

func (p *payload) set(path string, v any) *payload {
	if p.err == nil {
		p.buf, p.err = sjson.SetBytes(p.buf, path, v)
	}
	return p
}

func (p *payload) setRaw(path string, raw []byte) *payload {
	if p.err == nil {
		p.buf, p.err = sjson.SetRawBytes(p.buf, path, raw)
	}
	return p
}

func (p *payload) bytes() ([]byte, error) {
	return p.buf, p.err
}
