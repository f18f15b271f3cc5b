package netcdf

import (
	"fmt"
	"math"
	"reflect"
	"slices"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// gridValues reorders a variable into [time][step][lat][lon] storage order
// and unpacks it. order lists the grid's dimension names in that order; an
// empty name stands for an axis the file does not carry. Dimensions outside
// order must have length 1.
func gridValues(v *api.Variable, axes map[string]int, order []string) ([]float64, error) {
	raw, shape, err := flatten(v.Values)
	if err != nil {
		return nil, err
	}
	if len(shape) != len(v.Dimensions) {
		return nil, fmt.Errorf("%d dimensions declared, %d found", len(v.Dimensions), len(shape))
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}

	for i, dim := range v.Dimensions {
		want, known := axes[dim]
		switch {
		case known && shape[i] != want:
			return nil, fmt.Errorf("dimension %s has %d entries, axis has %d", dim, shape[i], want)
		case !known && shape[i] != 1:
			return nil, fmt.Errorf("unsupported dimension %s of length %d", dim, shape[i])
		}
	}

	counts := make([]int, len(order))
	srcStride := make([]int, len(order))
	for k, dim := range order {
		counts[k] = 1
		if dim == "" {
			continue
		}
		counts[k] = axes[dim]
		i := slices.Index(v.Dimensions, dim)
		if i < 0 {
			if counts[k] != 1 {
				return nil, fmt.Errorf("missing dimension %s", dim)
			}
			continue
		}
		srcStride[k] = strides[i]
	}

	pk := packingOf(v.Attributes)
	out := make([]float64, 0, counts[0]*counts[1]*counts[2]*counts[3])
	for t := 0; t < counts[0]; t++ {
		for s := 0; s < counts[1]; s++ {
			for y := 0; y < counts[2]; y++ {
				for x := 0; x < counts[3]; x++ {
					off := t*srcStride[0] + s*srcStride[1] + y*srcStride[2] + x*srcStride[3]
					out = append(out, pk.unpack(raw[off]))
				}
			}
		}
	}
	return out, nil
}

// packing holds the CF attributes that turn stored values into physical ones.
type packing struct {
	scale, offset float64
	missing       []float64
}

func packingOf(attrs api.AttributeMap) packing {
	p := packing{scale: 1}
	if x, ok := numberAttr(attrs, "scale_factor"); ok {
		p.scale = x
	}
	if x, ok := numberAttr(attrs, "add_offset"); ok {
		p.offset = x
	}
	for _, key := range []string{"_FillValue", "missing_value"} {
		if x, ok := numberAttr(attrs, key); ok {
			p.missing = append(p.missing, x)
		}
	}
	return p
}

func (p packing) unpack(x float64) float64 {
	if math.IsNaN(x) || slices.Contains(p.missing, x) {
		return math.NaN()
	}
	return x*p.scale + p.offset
}

func stringAttr(attrs api.AttributeMap, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func numberAttr(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	values, _, err := flatten(v)
	if err != nil || len(values) == 0 {
		return 0, false
	}
	return values[0], true
}

// flatten walks a numeric scalar or a rectangular nest of numeric slices and
// returns its values in row-major order together with its shape.
func flatten(v any) ([]float64, []int, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, nil, fmt.Errorf("no values")
	}

	var shape []int
	for t := rv; t.Kind() == reflect.Slice || t.Kind() == reflect.Array; {
		shape = append(shape, t.Len())
		if t.Len() == 0 {
			break
		}
		t = t.Index(0)
	}

	n := 1
	for _, d := range shape {
		n *= d
	}
	out := make([]float64, 0, n)
	var walk func(reflect.Value, int) error
	walk = func(x reflect.Value, depth int) error {
		if depth < len(shape) {
			if (x.Kind() != reflect.Slice && x.Kind() != reflect.Array) || x.Len() != shape[depth] {
				return fmt.Errorf("ragged array at depth %d", depth)
			}
			for i := 0; i < x.Len(); i++ {
				if err := walk(x.Index(i), depth+1); err != nil {
					return err
				}
			}
			return nil
		}
		f, err := scalar(x)
		if err != nil {
			return err
		}
		out = append(out, f)
		return nil
	}
	if err := walk(rv, 0); err != nil {
		return nil, nil, err
	}
	return out, shape, nil
}

func scalar(x reflect.Value) (float64, error) {
	switch x.Kind() {
	case reflect.Float32, reflect.Float64:
		return x.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(x.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(x.Uint()), nil
	case reflect.Interface:
		return scalar(x.Elem())
	default:
		return 0, fmt.Errorf("unsupported value kind %s", x.Kind())
	}
}
