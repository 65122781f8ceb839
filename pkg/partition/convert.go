// Copyright 2023 Greptime Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package partition

import (
	"github.com/greptime/region-control/pkg/errs"
	"github.com/greptime/region-control/pkg/meta"
)

// convertValue converts a metadata-store scalar into a partition.Value,
// the Go counterpart of the original's `Value::try_from(scalar)`
// (error kind ConvertScalarValue on an unsupported Go type).
func convertValue(raw interface{}) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null, nil
	case int64:
		return Int64Value(v), nil
	case int:
		return Int64Value(int64(v)), nil
	case uint64:
		return Uint64Value(v), nil
	case uint:
		return Uint64Value(uint64(v)), nil
	case float64:
		return Float64Value(v), nil
	case string:
		return StringValue(v), nil
	case bool:
		return BoolValue(v), nil
	default:
		return Value{}, errs.New(errs.KindConvertScalarValue, "unsupported partition bound scalar type %T", raw)
	}
}

// convertBound converts a meta.PartitionBound into a PartitionBound.
func convertBound(b meta.PartitionBound) (PartitionBound, error) {
	if b.IsMaxValue {
		return MaxValueBound, nil
	}
	v, err := convertValue(b.Value)
	if err != nil {
		return PartitionBound{}, err
	}
	return ValueBound(v), nil
}

// convertPartitionDef converts the metadata-store wire shape into the
// evaluator's PartitionDef.
func convertPartitionDef(d *meta.PartitionDef) (PartitionDef, error) {
	if d == nil {
		return PartitionDef{}, errs.New(errs.KindFindRegionRoutes, "region route has no partition definition")
	}
	bounds := make([]PartitionBound, len(d.Bounds))
	for i, b := range d.Bounds {
		cb, err := convertBound(b)
		if err != nil {
			return PartitionDef{}, err
		}
		bounds[i] = cb
	}
	return PartitionDef{
		PartitionColumns: append([]string(nil), d.PartitionColumns...),
		Bounds:           bounds,
	}, nil
}
