package solar

import (
	"math"
	"time"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/models"
)

const (
	degToRad = math.Pi / 180
	// open-rack glass/polymer module temperature model
	moduleA       = -3.56
	moduleB       = -0.075
	moduleDeltaT  = 3.0
	referenceTemp = 25.0
	stcIrradiance = 1000.0
)

// Array describes how a plant's modules are mounted. Angles are in degrees;
// a zero tilt on a fixed array means "tilt at latitude".
type Array struct {
	Tracking   models.Tracking
	TiltDeg    float64
	AzimuthDeg float64
	ILR        float64
}

type sunPosition struct {
	zenith  float64 // radians
	azimuth float64 // radians clockwise from north
}

func declinationAngle(t time.Time) float64 {
	x1 := math.Sin(((float64(t.YearDay()) - 81) * 2 * math.Pi) / 365.25)
	x2 := math.Sin(0.40928)
	return math.Asin(x1 * x2)
}

// equationOfTime returns the solar time correction in minutes.
func equationOfTime(t time.Time) float64 {
	b := 2 * math.Pi * (float64(t.YearDay()) - 81) / 364
	return 9.87*math.Sin(2*b) - 7.53*math.Cos(b) - 1.5*math.Sin(b)
}

func clamp1(x float64) float64 { return math.Max(-1, math.Min(1, x)) }

func solarPosition(lat, lon float64, t time.Time) sunPosition {
	t = t.UTC()
	phi := lat * degToRad
	d := declinationAngle(t)
	hours := float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
	solarTime := hours + lon/15 + equationOfTime(t)/60
	omega := (solarTime - 12) * 15 * degToRad

	cosZ := clamp1(math.Sin(phi)*math.Sin(d) + math.Cos(phi)*math.Cos(d)*math.Cos(omega))
	z := math.Acos(cosZ)
	sinZ := math.Sin(z)
	if sinZ < 1e-9 || math.Abs(math.Cos(phi)) < 1e-9 {
		return sunPosition{zenith: z, azimuth: math.Pi}
	}
	az := math.Acos(clamp1((math.Sin(d) - cosZ*math.Sin(phi)) / (sinZ * math.Cos(phi))))
	// afternoon sun is west of the meridian
	if math.Sin(omega) > 0 {
		az = 2*math.Pi - az
	}
	return sunPosition{zenith: z, azimuth: az}
}

// surface returns the module tilt and azimuth (radians) for the sun position.
func surface(a Array, lat float64, sun sunPosition, cfg config.Solar) (tilt, azimuth float64) {
	switch a.Tracking {
	case models.TrackingDualAxis:
		return sun.zenith, sun.azimuth
	case models.TrackingSingleAxis:
		axis := math.Pi
		r := math.Atan2(math.Sin(sun.zenith)*math.Sin(sun.azimuth-axis), math.Cos(sun.zenith))
		limit := cfg.SingleAxisMaxAngle * degToRad
		r = math.Max(-limit, math.Min(limit, r))
		if r >= 0 {
			return r, axis + math.Pi/2
		}
		return -r, axis - math.Pi/2
	default:
		tilt := a.TiltDeg
		if tilt == 0 {
			tilt = math.Abs(lat)
		}
		az := a.AzimuthDeg
		if az == 0 {
			az = 180
		}
		return tilt * degToRad, az * degToRad
	}
}

// planeOfArray returns irradiance on the module surface in W/m².
func planeOfArray(ghi, dni, dhi float64, sun sunPosition, tilt, azimuth, albedo float64) float64 {
	cosZ := math.Cos(sun.zenith)
	if cosZ <= 0 {
		dni = 0
	}
	cosTheta := cosZ*math.Cos(tilt) + math.Sin(sun.zenith)*math.Sin(tilt)*math.Cos(sun.azimuth-azimuth)
	beam := dni * math.Max(0, cosTheta)
	sky := dhi * (1 + math.Cos(tilt)) / 2
	ground := ghi * albedo * (1 - math.Cos(tilt)) / 2
	return beam + sky + ground
}

// Simulate returns hourly AC output as a fraction of AC nameplate for an
// array at (lat, lon).
func Simulate(w *Weather, lat, lon float64, a Array, cfg config.Solar) []float64 {
	ilr := a.ILR
	if ilr <= 0 {
		ilr = cfg.DefaultILR
	}
	out := make([]float64, w.Hours())
	for h := range out {
		// hourly values describe the hour starting at the timestamp
		sun := solarPosition(lat, lon, w.Time(h).Add(30*time.Minute))
		ghi := w.DNI[h]*math.Max(0, math.Cos(sun.zenith)) + w.DHI[h]
		if w.GHI != nil {
			ghi = w.GHI[h]
		}
		tilt, az := surface(a, lat, sun, cfg)
		poa := planeOfArray(ghi, w.DNI[h], w.DHI[h], sun, tilt, az, cfg.Albedo)
		if poa <= 0 {
			continue
		}
		tModule := poa*math.Exp(moduleA+moduleB*w.WindSpeed[h]) + w.Temperature[h]
		tCell := tModule + poa/stcIrradiance*moduleDeltaT
		dc := poa / stcIrradiance * (1 + cfg.TempCoefficient*(tCell-referenceTemp)) * (1 - cfg.SystemLosses)
		out[h] = math.Max(0, math.Min(1, ilr*dc*cfg.InverterEfficiency))
	}
	return out
}

// Blend runs the simulation under each tracking mode and returns the
// weighted average. Weights are indexed like models.TrackingModes.
func Blend(w *Weather, lat, lon float64, ilr float64, weights [3]float64, cfg config.Solar) []float64 {
	out := make([]float64, w.Hours())
	for i, mode := range models.TrackingModes {
		if weights[i] == 0 {
			continue
		}
		series := Simulate(w, lat, lon, Array{Tracking: mode, ILR: ilr}, cfg)
		for h, v := range series {
			out[h] += weights[i] * v
		}
	}
	return out
}
