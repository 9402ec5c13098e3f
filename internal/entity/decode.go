package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownShape is returned for response bodies that match none of the
// known shapes.
var ErrUnknownShape = errors.New("unknown response shape")

// Shape names the layout of a response body.
type Shape string

const (
	ShapeListEnvelope   Shape = "list-envelope"   // {"dados": [...], "links": [...]}
	ShapeObjectEnvelope Shape = "object-envelope" // {"dados": {...}}
	ShapeBareList       Shape = "bare-list"       // [...]
	ShapeBareObject     Shape = "bare-object"     // {...} carrying the id field
)

// Record is one raw upstream entity.
type Record map[string]any

// Link is a hypermedia link from a list envelope.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// Response is a decoded body.
type Response struct {
	Shape Shape
	Items []Record
	Links []Link
}

// Next returns the href of the rel=next link, if any.
func (r Response) Next() (string, bool) {
	for _, l := range r.Links {
		if l.Rel == "next" && l.Href != "" {
			return l.Href, true
		}
	}
	return "", false
}

// Decode classifies body into one of the known shapes. Numbers are kept as
// json.Number so IDs render without float formatting.
func Decode(body []byte, idField string) (Response, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}

	switch v := raw.(type) {
	case []any:
		items, err := toRecords(v)
		if err != nil {
			return Response{}, err
		}
		return Response{Shape: ShapeBareList, Items: items}, nil

	case map[string]any:
		if dados, ok := v["dados"]; ok {
			links, err := decodeLinks(v["links"])
			if err != nil {
				return Response{}, err
			}
			switch d := dados.(type) {
			case []any:
				items, err := toRecords(d)
				if err != nil {
					return Response{}, err
				}
				return Response{Shape: ShapeListEnvelope, Items: items, Links: links}, nil
			case map[string]any:
				return Response{Shape: ShapeObjectEnvelope, Items: []Record{d}, Links: links}, nil
			default:
				return Response{}, fmt.Errorf("%w: dados is %T", ErrUnknownShape, dados)
			}
		}
		if _, ok := v[idField]; ok {
			return Response{Shape: ShapeBareObject, Items: []Record{v}}, nil
		}
		return Response{}, fmt.Errorf("%w: object without dados or %q", ErrUnknownShape, idField)

	default:
		return Response{}, fmt.Errorf("%w: top-level %T", ErrUnknownShape, raw)
	}
}

func toRecords(items []any) ([]Record, error) {
	out := make([]Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: item %d is %T", ErrUnknownShape, i, item)
		}
		out = append(out, obj)
	}
	return out, nil
}

func decodeLinks(v any) ([]Link, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, nil
	}
	links := make([]Link, 0, len(arr))
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rel, _ := obj["rel"].(string)
		href, _ := obj["href"].(string)
		links = append(links, Link{Rel: rel, Href: href})
	}
	return links, nil
}

// Lookup resolves a dotted path such as "ultimoStatus.nome" in r.
func (r Record) Lookup(path string) (any, bool) {
	var cur any = map[string]any(r)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[path[start:i]]
		if !ok {
			return nil, false
		}
		start = i + 1
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// ID returns r[field] rendered as a string.
func (r Record) ID(field string) (string, bool) {
	v, ok := r.Lookup(field)
	if !ok {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	default:
		return fmt.Sprint(id), true
	}
}
