package geo

import (
	"math"

	"route-tracker/internal/geometry"
)

// Projector converts between geographic and locally planar coordinates.
type Projector interface {
	Project(p Point) geometry.Point
	Unproject(p geometry.Point) Point
}

// GRS80 ellipsoid, as used by UTM-K.
const (
	grs80A = 6378137.0
	grs80F = 1 / 298.257222101
)

// TransverseMercator is an ellipsoidal transverse Mercator projection
// (Snyder, "Map Projections: A Working Manual", eq. 8-9 to 8-25).
// Distortion stays well under 0.1% within a few hundred kilometers of the
// central meridian.
type TransverseMercator struct {
	CentralMeridian float64 // degrees
	OriginLatitude  float64 // degrees
	ScaleFactor     float64
	FalseEasting    float64 // meters
	FalseNorthing   float64 // meters

	e2, ep2, m0 float64
}

// NewTransverseMercator builds a projection on the GRS80 ellipsoid.
func NewTransverseMercator(centralMeridian, originLatitude, scale, falseEasting, falseNorthing float64) *TransverseMercator {
	tm := &TransverseMercator{
		CentralMeridian: centralMeridian,
		OriginLatitude:  originLatitude,
		ScaleFactor:     scale,
		FalseEasting:    falseEasting,
		FalseNorthing:   falseNorthing,
	}
	tm.e2 = 2*grs80F - grs80F*grs80F
	tm.ep2 = tm.e2 / (1 - tm.e2)
	tm.m0 = tm.meridianArc(toRad(originLatitude))
	return tm
}

// UTMK is the Korean unified coordinate system (EPSG:5179).
func UTMK() *TransverseMercator {
	return NewTransverseMercator(127.5, 38, 0.9996, 1000000, 2000000)
}

// LocalTM is a true-scale transverse Mercator centred on origin, so origin
// projects to (0, 0).
func LocalTM(origin Point) *TransverseMercator {
	return NewTransverseMercator(origin.Longitude, origin.Latitude, 1, 0, 0)
}

func (tm *TransverseMercator) meridianArc(phi float64) float64 {
	e2 := tm.e2
	e4 := e2 * e2
	e6 := e4 * e2
	return grs80A * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

// Project maps a geographic point to easting (X) and northing (Y).
func (tm *TransverseMercator) Project(p Point) geometry.Point {
	phi := toRad(p.Latitude)
	if math.Abs(p.Latitude) == 90 {
		return geometry.Point{X: tm.FalseEasting, Y: tm.FalseNorthing + tm.ScaleFactor*(tm.meridianArc(phi)-tm.m0)}
	}
	dLambda := toRad(normalizeLon(p.Longitude - tm.CentralMeridian))

	sin, cos := math.Sincos(phi)
	n := grs80A / math.Sqrt(1-tm.e2*sin*sin)
	t := math.Tan(phi) * math.Tan(phi)
	c := tm.ep2 * cos * cos
	a := dLambda * cos
	m := tm.meridianArc(phi)

	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	x := tm.ScaleFactor * n * (a + (1-t+c)*a3/6 + (5-18*t+t*t+72*c-58*tm.ep2)*a5/120)
	y := tm.ScaleFactor * (m - tm.m0 + n*math.Tan(phi)*(a2/2+(5-t+9*c+4*c*c)*a4/24+(61-58*t+t*t+600*c-330*tm.ep2)*a6/720))

	return geometry.Point{X: tm.FalseEasting + x, Y: tm.FalseNorthing + y}
}

// Unproject is the inverse of Project.
func (tm *TransverseMercator) Unproject(q geometry.Point) Point {
	x := q.X - tm.FalseEasting
	y := q.Y - tm.FalseNorthing

	e2 := tm.e2
	e4 := e2 * e2
	e6 := e4 * e2
	m := tm.m0 + y/tm.ScaleFactor
	mu := m / (grs80A * (1 - e2/4 - 3*e4/64 - 5*e6/256))
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sin1, cos1 := math.Sincos(phi1)
	tan1 := math.Tan(phi1)
	c1 := tm.ep2 * cos1 * cos1
	t1 := tan1 * tan1
	n1 := grs80A / math.Sqrt(1-e2*sin1*sin1)
	r1 := grs80A * (1 - e2) / math.Pow(1-e2*sin1*sin1, 1.5)
	d := x / (n1 * tm.ScaleFactor)

	d2 := d * d
	d3 := d2 * d
	d4 := d3 * d
	d5 := d4 * d
	d6 := d5 * d

	phi := phi1 - (n1*tan1/r1)*(d2/2-
		(5+3*t1+10*c1-4*c1*c1-9*tm.ep2)*d4/24+
		(61+90*t1+298*c1+45*t1*t1-252*tm.ep2-3*c1*c1)*d6/720)
	lambda := (d - (1+2*t1+c1)*d3/6 + (5-2*c1+28*t1-3*c1*c1+8*tm.ep2+24*t1*t1)*d5/120) / cos1

	return Point{
		Latitude:  toDeg(phi),
		Longitude: normalizeLon(tm.CentralMeridian + toDeg(lambda)),
	}
}

func toRad(d float64) float64 { return d * math.Pi / 180 }
func toDeg(r float64) float64 { return r * 180 / math.Pi }

// normalizeLon wraps a longitude difference into [-180, 180).
func normalizeLon(d float64) float64 {
	for d >= 180 {
		d -= 360
	}
	for d < -180 {
		d += 360
	}
	return d
}
