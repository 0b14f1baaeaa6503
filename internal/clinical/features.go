// Package clinical turns extracted report text into a fixed-shape numeric
// feature record.
package clinical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Field names a clinical measurement.
type Field string

const (
	FieldAge           Field = "age"
	FieldGlucose       Field = "glucose"
	FieldCholesterol   Field = "cholesterol"
	FieldBloodPressure Field = "blood_pressure"
	FieldBMI           Field = "bmi"
)

// Fields lists every field in model feature order.
var Fields = []Field{FieldAge, FieldGlucose, FieldCholesterol, FieldBloodPressure, FieldBMI}

// Value is a measurement that may be absent. The zero Value is absent, which
// is distinct from a measured zero.
type Value struct {
	v  float64
	ok bool
}

// Of returns a present Value.
func Of(v float64) Value { return Value{v: v, ok: true} }

// Get returns the value and whether it is present.
func (v Value) Get() (float64, bool) { return v.v, v.ok }

// Present reports whether the value was found.
func (v Value) Present() bool { return v.ok }

func (v Value) String() string {
	if !v.ok {
		return "absent"
	}
	return strconv.FormatFloat(v.v, 'f', -1, 64)
}

// MarshalJSON encodes an absent value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("clinical value: %w", err)
	}
	*v = Of(f)
	return nil
}

// FeatureRecord holds the five clinical measurements. Every field is always
// part of the record; unpopulated ones are absent.
type FeatureRecord struct {
	Age           Value `json:"age"`
	Glucose       Value `json:"glucose"`
	Cholesterol   Value `json:"cholesterol"`
	BloodPressure Value `json:"blood_pressure"`
	BMI           Value `json:"bmi"`
}

func (r *FeatureRecord) ptr(f Field) *Value {
	switch f {
	case FieldAge:
		return &r.Age
	case FieldGlucose:
		return &r.Glucose
	case FieldCholesterol:
		return &r.Cholesterol
	case FieldBloodPressure:
		return &r.BloodPressure
	case FieldBMI:
		return &r.BMI
	}
	return nil
}

// Get returns the value of f; unknown fields are absent.
func (r FeatureRecord) Get(f Field) Value {
	if p := r.ptr(f); p != nil {
		return *p
	}
	return Value{}
}

// Set stores v under f. Unknown fields are ignored.
func (r *FeatureRecord) Set(f Field, v Value) {
	if p := r.ptr(f); p != nil {
		*p = v
	}
}

// Complete reports whether every field is present.
func (r FeatureRecord) Complete() bool {
	return len(r.Missing()) == 0
}

// Missing lists absent fields in feature order.
func (r FeatureRecord) Missing() []Field {
	var out []Field
	for _, f := range Fields {
		if !r.Get(f).Present() {
			out = append(out, f)
		}
	}
	return out
}

// Vector returns the values in feature order. ok is false if any is absent.
func (r FeatureRecord) Vector() (vec []float64, ok bool) {
	vec = make([]float64, len(Fields))
	for i, f := range Fields {
		v, present := r.Get(f).Get()
		if !present {
			return nil, false
		}
		vec[i] = v
	}
	return vec, true
}

// Merge returns r with its absent fields filled from other.
func (r FeatureRecord) Merge(other FeatureRecord) FeatureRecord {
	out := r
	for _, f := range Fields {
		if !out.Get(f).Present() {
			out.Set(f, other.Get(f))
		}
	}
	return out
}

// recordAliases maps normalised CSV column names to fields, in lookup order.
var recordAliases = []struct {
	column string
	field  Field
}{
	{"age", FieldAge},
	{"glucose", FieldGlucose},
	{"blood_sugar", FieldGlucose},
	{"cholesterol", FieldCholesterol},
	{"total_cholesterol", FieldCholesterol},
	{"blood_pressure", FieldBloodPressure},
	{"bp", FieldBloodPressure},
	{"systolic_bp", FieldBloodPressure},
	{"bmi", FieldBMI},
}

// FromRecord maps numeric CSV columns onto a FeatureRecord. The first
// matching column per field wins.
func FromRecord(rec map[string]float64) FeatureRecord {
	var out FeatureRecord
	for _, a := range recordAliases {
		if out.Get(a.field).Present() {
			continue
		}
		if v, ok := rec[a.column]; ok {
			out.Set(a.field, Of(v))
		}
	}
	return out
}
