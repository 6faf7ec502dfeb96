package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// WGS84 ellipsoid + UTM constants
const (
	wgs84A              = 6378137.0
	wgs84F              = 1 / 298.257223563
	utmScale            = 0.9996
	utmFalseEasting     = 500000.0
	utmFalseNorthingSth = 10000000.0
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// kruger menyimpan koefisien seri Krüger (orde n^4) untuk transverse Mercator.
// Akurasi di bawah milimeter dalam zona UTM.
type kruger struct {
	rectA float64 // rectifying radius
	e     float64 // first eccentricity
	alpha [4]float64
	beta  [4]float64
	delta [4]float64
}

var tm = newKruger()

func newKruger() kruger {
	n := wgs84F / (2 - wgs84F)
	n2 := n * n
	n3 := n2 * n
	n4 := n3 * n
	return kruger{
		rectA: wgs84A / (1 + n) * (1 + n2/4 + n4/64),
		e:     math.Sqrt(wgs84F * (2 - wgs84F)),
		alpha: [4]float64{
			n/2 - 2.0/3*n2 + 5.0/16*n3 + 41.0/180*n4,
			13.0/48*n2 - 3.0/5*n3 + 557.0/1440*n4,
			61.0/240*n3 - 103.0/140*n4,
			49561.0 / 161280 * n4,
		},
		beta: [4]float64{
			n/2 - 2.0/3*n2 + 37.0/96*n3 - 1.0/360*n4,
			1.0/48*n2 + 1.0/15*n3 - 437.0/1440*n4,
			17.0/480*n3 - 37.0/840*n4,
			4397.0 / 161280 * n4,
		},
		delta: [4]float64{
			2*n - 2.0/3*n2 - 2*n3 + 116.0/45*n4,
			7.0/3*n2 - 8.0/5*n3 - 227.0/45*n4,
			56.0/15*n3 - 136.0/35*n4,
			4279.0 / 630 * n4,
		},
	}
}

func centralMeridian(zone int) float64 {
	return float64((zone-1)*6-180+3) * deg2rad
}

// toUTM returns an orb.Projection lon/lat -> easting/northing for the zone.
func toUTM(zone int, south bool) orb.Projection {
	lon0 := centralMeridian(zone)
	n0 := 0.0
	if south {
		n0 = utmFalseNorthingSth
	}
	scale := utmScale * tm.rectA

	return func(p orb.Point) orb.Point {
		phi := p[1] * deg2rad
		lam := p[0]*deg2rad - lon0

		sinPhi := math.Sin(phi)
		t := math.Sinh(math.Atanh(sinPhi) - tm.e*math.Atanh(tm.e*sinPhi))
		xiP := math.Atan2(t, math.Cos(lam))
		etaP := math.Atanh(math.Sin(lam) / math.Sqrt(1+t*t))

		xi, eta := xiP, etaP
		for j := 0; j < 4; j++ {
			k := 2 * float64(j+1)
			xi += tm.alpha[j] * math.Sin(k*xiP) * math.Cosh(k*etaP)
			eta += tm.alpha[j] * math.Cos(k*xiP) * math.Sinh(k*etaP)
		}

		return orb.Point{
			utmFalseEasting + scale*eta,
			n0 + scale*xi,
		}
	}
}

// fromUTM is the inverse of toUTM.
func fromUTM(zone int, south bool) orb.Projection {
	lon0 := centralMeridian(zone)
	n0 := 0.0
	if south {
		n0 = utmFalseNorthingSth
	}
	scale := utmScale * tm.rectA

	return func(p orb.Point) orb.Point {
		xi := (p[1] - n0) / scale
		eta := (p[0] - utmFalseEasting) / scale

		xiP, etaP := xi, eta
		for j := 0; j < 4; j++ {
			k := 2 * float64(j+1)
			xiP -= tm.beta[j] * math.Sin(k*xi) * math.Cosh(k*eta)
			etaP -= tm.beta[j] * math.Cos(k*xi) * math.Sinh(k*eta)
		}

		chi := math.Asin(math.Sin(xiP) / math.Cosh(etaP))
		phi := chi
		for j := 0; j < 4; j++ {
			phi += tm.delta[j] * math.Sin(2*float64(j+1)*chi)
		}
		lam := math.Atan2(math.Sinh(etaP), math.Cos(xiP))

		return orb.Point{(lon0 + lam) * rad2deg, phi * rad2deg}
	}
}
