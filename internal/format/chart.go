// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
)

// ChartType is the kind of chart requested in a ```chart fence.
type ChartType string

const (
	ChartLine ChartType = "line"
	ChartBar  ChartType = "bar"
	ChartPie  ChartType = "pie"
	ChartArea ChartType = "area"
)

// ChartTypes lists every supported chart type.
var ChartTypes = []ChartType{ChartLine, ChartBar, ChartPie, ChartArea}

// ErrChartInvalid wraps every chart validation failure.
var ErrChartInvalid = errors.New("invalid chart")

// ChartRecord is one element of the chart's data array.
type ChartRecord struct {
	Name   string
	Values map[string]float64
}

// ChartSpec is a validated chart description.
type ChartSpec struct {
	Type  ChartType
	Title string
	Data  []ChartRecord
	// Series are the keys of the first record except "name", in the order
	// they appear in the source.
	Series []string
}

// ParseChart validates a chart JSON document. Errors wrap ErrChartInvalid.
func ParseChart(raw string) (*ChartSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty chart definition", ErrChartInvalid)
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrChartInvalid)
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: chart must be a JSON object", ErrChartInvalid)
	}

	typ := root.Get("type")
	if !typ.Exists() || typ.String() == "" {
		return nil, fmt.Errorf(`%w: missing "type"`, ErrChartInvalid)
	}
	spec := &ChartSpec{
		Type:  ChartType(strings.ToLower(typ.String())),
		Title: root.Get("title").String(),
	}
	if !slices.Contains(ChartTypes, spec.Type) {
		return nil, fmt.Errorf("%w: unsupported type %q", ErrChartInvalid, typ.String())
	}

	data := root.Get("data")
	if !data.IsArray() {
		return nil, fmt.Errorf(`%w: missing "data" array`, ErrChartInvalid)
	}
	records := data.Array()
	if len(records) == 0 {
		return nil, fmt.Errorf(`%w: "data" must not be empty`, ErrChartInvalid)
	}
	if !records[0].IsObject() {
		return nil, fmt.Errorf("%w: data records must be objects", ErrChartInvalid)
	}

	records[0].ForEach(func(key, _ gjson.Result) bool {
		if k := key.String(); k != "name" {
			spec.Series = append(spec.Series, k)
		}
		return true
	})

	spec.Data = make([]ChartRecord, 0, len(records))
	for i, rec := range records {
		if !rec.IsObject() {
			return nil, fmt.Errorf("%w: data[%d] is not an object", ErrChartInvalid, i)
		}
		cr := ChartRecord{Values: make(map[string]float64)}
		rec.ForEach(func(key, value gjson.Result) bool {
			k := key.String()
			if k == "name" {
				cr.Name = value.String()
			} else {
				cr.Values[k] = value.Float()
			}
			return true
		})
		if cr.Name == "" {
			cr.Name = fmt.Sprintf("%d", i+1)
		}
		spec.Data = append(spec.Data, cr)
	}
	return spec, nil
}

// Max returns the largest value across all series, or 0.
func (c *ChartSpec) Max() float64 {
	var max float64
	for _, r := range c.Data {
		for _, s := range c.Series {
			if v := r.Values[s]; v > max {
				max = v
			}
		}
	}
	return max
}
