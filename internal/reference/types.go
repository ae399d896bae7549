package reference

import "encoding/json"

// SearchRequest is the body of a reference-data search.
type SearchRequest struct {
	Kind           string   `json:"kind"`
	ReturnedFields []string `json:"returnedFields"`
	Limit          int      `json:"limit"`
	Offset         int      `json:"offset"`
	Query          string   `json:"query"`
}

// SearchResult is one matched record.
type SearchResult struct {
	ID   string          `json:"id"`
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SearchResponse is the body returned by a search.
type SearchResponse struct {
	Results    []SearchResult `json:"results"`
	TotalCount int            `json:"totalCount,omitempty"`
}

// Point is a coordinate in some reference system.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ConvertRequest is the body of a coordinate conversion.
type ConvertRequest struct {
	FromCRS string  `json:"fromCRS"`
	ToCRS   string  `json:"toCRS"`
	Points  []Point `json:"points"`
}

// ConvertResponse is the body returned by a conversion.
type ConvertResponse struct {
	Points []Point `json:"points"`
}

// CRSReference identifies a resolved coordinate reference system.
type CRSReference struct {
	Kind                        string `json:"kind"`
	Name                        string `json:"name"`
	PersistableReference        string `json:"persistableReference"`
	CoordinateReferenceSystemID string `json:"coordinateReferenceSystemID"`
}

// crsData is the data block of a CRS search result.
type crsData struct {
	Name                 string `json:"Name"`
	PersistableReference string `json:"PersistableReference"`
}

// WGS84 is the persistable reference of the default target system.
const WGS84 = `{"authCode":{"auth":"EPSG","code":"4326"},"name":"GCS_WGS_1984","type":"LBC","ver":"PE_10_3_1","wkt":"GEOGCS[\"GCS_WGS_1984\",DATUM[\"D_WGS_1984\",SPHEROID[\"WGS_1984\",6378137.0,298.257223563]],PRIMEM[\"Greenwich\",0.0],UNIT[\"Degree\",0.0174532925199433],AUTHORITY[\"EPSG\",4326]]"}`
