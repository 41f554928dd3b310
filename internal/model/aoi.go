package model

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// AOISRID is the fixed spatial reference (WGS84) every AOI geometry is
// stored and interpreted under.
const AOISRID = 4326

// MultiPolygon is a GeoJSON-decodable area of interest geometry. orb's
// orb.MultiPolygon has no notion of SRID; AOISRID is applied as a
// convention at the boundary (parsing/persistence), not carried on the
// value itself.
type MultiPolygon = orb.MultiPolygon

// AoiProperties are the name/id pair attached to every AOI feature,
// grounded in the original platform's AoiProperties model.
type AoiProperties struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// AOIFeature is the GeoJSON Feature<MultiPolygon, AoiProperties> the
// sender and worker exchange.
type AOIFeature struct {
	Geometry   MultiPolygon  `json:"geometry"`
	Properties AoiProperties `json:"properties"`
}

// ParseAOIFeature decodes a GeoJSON feature body into an AOIFeature,
// requiring the geometry to be a MultiPolygon.
func ParseAOIFeature(body []byte) (AOIFeature, error) {
	feature, err := geojson.UnmarshalFeature(body)
	if err != nil {
		return AOIFeature{}, err
	}
	mp, ok := feature.Geometry.(orb.MultiPolygon)
	if !ok {
		if poly, ok2 := feature.Geometry.(orb.Polygon); ok2 {
			mp = orb.MultiPolygon{poly}
		} else {
			return AOIFeature{}, errNotMultiPolygon
		}
	}
	name, _ := feature.Properties["name"].(string)
	id, _ := feature.Properties["id"].(string)
	return AOIFeature{
		Geometry:   mp,
		Properties: AoiProperties{Name: name, ID: id},
	}, nil
}

var errNotMultiPolygon = &aoiError{"aoi geometry must be a MultiPolygon or Polygon"}

type aoiError struct{ msg string }

func (e *aoiError) Error() string { return e.msg }

// WKT renders the AOI geometry as Well-Known Text, used as part of
// the deduplication key.
func WKT(mp MultiPolygon) string {
	return wkt.MarshalString(mp)
}
