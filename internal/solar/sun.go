package solar

import (
	"math"
	"time"
)

const deg = math.Pi / 180

// SunPosition returns the apparent solar zenith and azimuth in degrees
// (azimuth clockwise from north) at t for a site at lat/lon degrees.
func SunPosition(t time.Time, lat, lon float64) (zenith, azimuth float64) {
	utc := t.UTC()
	hour := float64(utc.Hour()) + float64(utc.Minute())/60 + float64(utc.Second())/3600
	g := 2 * math.Pi / 365 * (float64(utc.YearDay()-1) + (hour-12)/24)

	eqTime := 229.18 * (0.000075 + 0.001868*math.Cos(g) - 0.032077*math.Sin(g) -
		0.014615*math.Cos(2*g) - 0.040849*math.Sin(2*g))
	decl := 0.006918 - 0.399912*math.Cos(g) + 0.070257*math.Sin(g) -
		0.006758*math.Cos(2*g) + 0.000907*math.Sin(2*g) -
		0.002697*math.Cos(3*g) + 0.00148*math.Sin(3*g)

	trueSolarMinutes := hour*60 + eqTime + 4*lon
	ha := (trueSolarMinutes/4 - 180) * deg
	phi := lat * deg

	cosZ := math.Sin(phi)*math.Sin(decl) + math.Cos(phi)*math.Cos(decl)*math.Cos(ha)
	zenith = math.Acos(max(-1, min(1, cosZ))) / deg

	az := math.Atan2(math.Sin(ha), math.Cos(ha)*math.Sin(phi)-math.Tan(decl)*math.Cos(phi))/deg + 180
	return zenith, math.Mod(az, 360)
}

// AngleOfIncidence returns the cosine of the angle between the sun and the
// normal of a plane with the given tilt and azimuth (degrees), floored at 0.
func AngleOfIncidence(zenith, azimuth, tilt, surfaceAzimuth float64) float64 {
	z, t := zenith*deg, tilt*deg
	c := math.Cos(z)*math.Cos(t) + math.Sin(z)*math.Sin(t)*math.Cos((azimuth-surfaceAzimuth)*deg)
	return max(0, c)
}
