package ml

import (
	"errors"
	"reflect"
	"testing"
)

func TestOneHotEncoder(t *testing.T) {
	encoder := NewOneHotEncoder([]string{"a", "b"})
	encoded, err := encoder.FitTransform([][]string{{"y", "1"}, {"x", "2"}, {"y", "2"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantNames := []string{"a_x", "a_y", "b_1", "b_2"}
	if !reflect.DeepEqual(encoder.FeatureNames(), wantNames) {
		t.Fatalf("expected %v, got %v", wantNames, encoder.FeatureNames())
	}
	if !reflect.DeepEqual(encoded[0], []float64{0, 1, 1, 0}) {
		t.Fatalf("unexpected first row %v", encoded[0])
	}

	unseen, err := encoder.Transform([][]string{{"z", "1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(unseen[0], []float64{0, 0, 1, 0}) {
		t.Fatalf("unseen category should encode as zeros, got %v", unseen[0])
	}
	if !reflect.DeepEqual(encoder.FeatureNames(), wantNames) {
		t.Fatal("transform must not refit the encoder")
	}

	if _, err := NewOneHotEncoder([]string{"a"}).Transform([][]string{{"x"}}); err == nil {
		t.Fatal("expected error for unfitted encoder")
	}
}

func TestPlaceholderEncodesAsUnknown(t *testing.T) {
	pre := NewPreprocessor(nil)
	frame, err := pre.FitTransform([]Sample{
		{ArrivalTime: "08:00", DepartureTime: "08:10", ServiceType: "Wash", DayOfWeek: "Lundi", Hour: "8"},
		{ArrivalTime: "08:00", DepartureTime: "08:10", ServiceType: "", DayOfWeek: "", Hour: ""},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, column := range []string{
		ColServiceType + "_" + Placeholder,
		ColDayOfWeek + "_" + Placeholder,
		ColHour + "_" + Placeholder,
	} {
		idx := frame.ColumnIndex(column)
		if idx < 0 {
			t.Fatalf("expected column %s in %v", column, frame.Columns)
		}
		if frame.Rows[1][idx] != 1 || frame.Rows[0][idx] != 0 {
			t.Fatalf("column %s: unexpected values %f/%f", column, frame.Rows[0][idx], frame.Rows[1][idx])
		}
	}
}

func TestReconcile(t *testing.T) {
	manifest := Manifest{ColArrival, ColDeparture, "Type_Service_A", "Type_Service_B", "Heure_8"}

	tests := []struct {
		name        string
		frame       *Frame
		wantRows    [][]float64
		wantStatus  SchemaStatus
		wantMissing []string
		wantExtra   []string
	}{
		{
			name: "exact",
			frame: &Frame{
				Columns: []string{ColArrival, ColDeparture, "Type_Service_A", "Type_Service_B", "Heure_8"},
				Rows:    [][]float64{{1, 2, 1, 0, 1}},
			},
			wantRows:   [][]float64{{1, 2, 1, 0, 1}},
			wantStatus: SchemaExact,
		},
		{
			name: "reordered",
			frame: &Frame{
				Columns: []string{"Heure_8", ColDeparture, "Type_Service_B", ColArrival, "Type_Service_A"},
				Rows:    [][]float64{{1, 2, 0, 1, 1}},
			},
			wantRows:   [][]float64{{1, 2, 1, 0, 1}},
			wantStatus: SchemaFilled,
		},
		{
			name: "missing and extra",
			frame: &Frame{
				Columns: []string{ColArrival, ColDeparture, "Type_Service_C", "Type_Service_A"},
				Rows:    [][]float64{{1, 2, 1, 0}, {3, 4, 0, 1}},
			},
			wantRows:    [][]float64{{1, 2, 0, 0, 0}, {3, 4, 1, 0, 0}},
			wantStatus:  SchemaFilled,
			wantMissing: []string{"Type_Service_B", "Heure_8"},
			wantExtra:   []string{"Type_Service_C"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Reconcile(tt.frame, manifest)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result.Frame.Columns, []string(manifest)) {
				t.Fatalf("columns %v do not match manifest", result.Frame.Columns)
			}
			if !reflect.DeepEqual(result.Frame.Rows, tt.wantRows) {
				t.Fatalf("expected rows %v, got %v", tt.wantRows, result.Frame.Rows)
			}
			if result.Status != tt.wantStatus {
				t.Fatalf("expected status %s, got %s", tt.wantStatus, result.Status)
			}
			if !reflect.DeepEqual(result.Missing, tt.wantMissing) {
				t.Fatalf("expected missing %v, got %v", tt.wantMissing, result.Missing)
			}
			if !reflect.DeepEqual(result.Extra, tt.wantExtra) {
				t.Fatalf("expected extra %v, got %v", tt.wantExtra, result.Extra)
			}
		})
	}
}

func TestReconcileIncompatible(t *testing.T) {
	manifest := Manifest{ColArrival, ColDeparture, "Type_Service_A"}
	tests := []struct {
		name     string
		frame    *Frame
		manifest Manifest
	}{
		{
			name:     "time column absent",
			frame:    &Frame{Columns: []string{ColArrival, "Type_Service_A"}, Rows: [][]float64{{1, 1}}},
			manifest: manifest,
		},
		{
			name:     "no encoded column shared",
			frame:    &Frame{Columns: []string{ColArrival, ColDeparture, "Prestation_A"}, Rows: [][]float64{{1, 2, 1}}},
			manifest: manifest,
		},
		{
			name:     "no overlap",
			frame:    &Frame{Columns: []string{"x", "y"}, Rows: [][]float64{{1, 1}}},
			manifest: Manifest{"a", "b"},
		},
		{
			name:     "empty manifest",
			frame:    &Frame{Columns: []string{ColArrival}, Rows: [][]float64{{1}}},
			manifest: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reconcile(tt.frame, tt.manifest)
			if !errors.Is(err, ErrIncompatibleSchema) {
				t.Fatalf("expected ErrIncompatibleSchema, got %v", err)
			}
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected *SchemaError, got %T", err)
			}
		})
	}
}

func TestNewManifest(t *testing.T) {
	encoder := NewOneHotEncoder(CategoricalColumns)
	if err := encoder.Fit([][]string{{"A", "Lundi", "8"}, {"B", "Mardi", "8"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Manifest{
		ColArrival, ColDeparture,
		"Type_Service_A", "Type_Service_B",
		"Jour_Semaine_Lundi", "Jour_Semaine_Mardi",
		"Heure_8",
	}
	if got := NewManifest(encoder); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
