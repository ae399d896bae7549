package core

import (
	"reflect"
	"testing"
)

func TestValidateCell(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		col      ColumnDescriptor
		wantCode string
	}{
		{"nullable empty", "", ColumnDescriptor{Name: "X", Type: TypeFloat, Nullable: true}, ""},
		{"required empty", "", ColumnDescriptor{Name: "FieldName", Type: TypeText}, "not_nullable:FieldName"},
		{"bad float", "east", ColumnDescriptor{Name: "X", Type: TypeFloat, Nullable: true}, "invalid_type:X"},
		{"good float", "12.5", ColumnDescriptor{Name: "X", Type: TypeFloat}, ""},
		{"bad date nullable", "soon", ColumnDescriptor{Name: "DiscoveryDate", Type: TypeTimestamp, Nullable: true}, ""},
		{"bad date required", "soon", ColumnDescriptor{Name: "DiscoveryDate", Type: TypeTimestamp}, "not_nullable:DiscoveryDate"},
		{"bad int", "1.5", ColumnDescriptor{Name: "Wells", Type: TypeInt, Nullable: true}, "invalid_type:Wells"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCell(tt.value, tt.col)
			got := ""
			if err != nil {
				got = err.Code
			}
			if got != tt.wantCode {
				t.Errorf("ValidateCell(%q) code = %q, want %q", tt.value, got, tt.wantCode)
			}
		})
	}
}

func TestMissingColumns(t *testing.T) {
	required := []string{"FieldName", "FieldType", "DiscoveryDate", "X", "Y", "CRS"}

	tests := []struct {
		name   string
		header []string
		want   []string
	}{
		{
			name:   "exact",
			header: []string{"FieldName", "FieldType", "DiscoveryDate", "X", "Y", "CRS"},
			want:   nil,
		},
		{
			name:   "superset in other order",
			header: []string{"CRS", "Y", "X", "Source", "DiscoveryDate", " FieldType ", "FieldName"},
			want:   nil,
		},
		{
			name:   "missing FieldType",
			header: []string{"FieldName", "DiscoveryDate", "X", "Y", "CRS"},
			want:   []string{"FieldType"},
		},
		{
			name:   "case differs",
			header: []string{"fieldname", "FieldType", "DiscoveryDate", "X", "Y", "CRS"},
			want:   []string{"FieldName"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MissingColumns(tt.header, required)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MissingColumns() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBaseCode(t *testing.T) {
	if got := BaseCode("invalid_type:X"); got != "invalid_type" {
		t.Errorf("BaseCode = %q", got)
	}
	if got := BaseCode("polygon_not_closed"); got != "polygon_not_closed" {
		t.Errorf("BaseCode = %q", got)
	}
	if got := ColumnCode(CodeNotNullable, "Y"); got != "not_nullable:Y" {
		t.Errorf("ColumnCode = %q", got)
	}
}
