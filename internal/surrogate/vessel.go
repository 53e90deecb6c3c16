package surrogate

import (
	"context"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
)

// Parameter names understood by the reference vessel models
const (
	ParamInnerRadius         = "inner_radius_mm"
	ParamCylinderLength      = "cylinder_length_mm"
	ParamHoopThickness       = "hoop_thickness_mm"
	ParamHelicalThickness    = "helical_thickness_mm"
	ParamHelicalAngle        = "helical_angle_deg"
	ParamLinerThickness      = "liner_thickness_mm"
	ParamFiberType           = "fiber_type"
	ParamWorkingPressure     = "working_pressure_mpa"
	ParamFiberStrength       = "fiber_strength_mpa"
	ParamFiberVolumeFraction = "fiber_volume_fraction"
)

// Output names of the reference vessel models
const (
	ModelBurstPressure = "burst_pressure_mpa"
	ModelMass          = "mass_kg"
	ModelCost          = "cost_usd"
	ModelPeakStress    = "peak_stress_mpa"
	ModelFatigueCycles = "fatigue_cycles"
	ModelFailureMode   = "failure_mode"
	ModelPermeation    = "permeation_ml_hr_l"
)

// Failure mode classes reported by ModelFailureMode
const (
	FailureModeCylinderHoop = 0
	FailureModeDomeAxial    = 1
)

// DefaultVesselParameters are used for fixed parameters a job does not set
var DefaultVesselParameters = design.Params{
	ParamWorkingPressure:     70,
	ParamFiberStrength:       4900,
	ParamFiberVolumeFraction: 0.6,
}

const (
	compositeDensity = 1.55e-6 // kg/mm^3
	linerDensity     = 0.94e-6 // kg/mm^3 (HDPE)
	burstKnockdown   = 0.9
	domeBuildUp      = 1.5
	linerCostPerKg   = 8.0
	windingCostPerMm = 9.0
	permeationCoeff  = 0.01
)

// fiber grades indexed by the fiber_type gene: strength factor and price per kg
var fiberGrades = []struct {
	strength float64
	price    float64
}{
	{1.00, 26}, // T700
	{1.18, 40}, // T800
	{0.86, 90}, // M40J
}

// NewVesselRegistry returns analytic reference models for a Type IV composite
// pressure vessel. The formulas are netting-theory approximations good enough
// to drive the optimizer; they stand in for trained models.
func NewVesselRegistry() (*Registry, error) {
	return NewRegistry(
		vesselModel(ModelBurstPressure, 0.06, burstPressure),
		vesselModel(ModelMass, 0.02, mass),
		vesselModel(ModelCost, 0.05, cost),
		vesselModel(ModelPeakStress, 0.05, peakStress),
		vesselModel(ModelFatigueCycles, 0.25, fatigueCycles),
		vesselModel(ModelFailureMode, 0, failureMode),
		vesselModel(ModelPermeation, 0.10, permeation),
	)
}

type vessel struct {
	r, length         float64
	tHoop, tHelical   float64
	angle             float64
	tLiner            float64
	fiber             int
	pWork, sigmaFiber float64
	vf                float64
}

func vesselModel(name string, band float64, fn func(v vessel) float64) Model {
	return NewFunc(name, func(_ context.Context, p design.Params) (Estimate, error) {
		v, err := readVessel(p)
		if err != nil {
			return Estimate{}, fmt.Errorf("%s: %w", name, err)
		}
		return Band(fn(v), band), nil
	})
}

func readVessel(p design.Params) (vessel, error) {
	get := func(name string) (float64, error) {
		if x, ok := p[name]; ok {
			return x, nil
		}
		if x, ok := DefaultVesselParameters[name]; ok {
			return x, nil
		}
		return 0, fmt.Errorf("missing parameter %s", name)
	}

	var v vessel
	var err error
	fields := []struct {
		name string
		dst  *float64
	}{
		{ParamInnerRadius, &v.r},
		{ParamCylinderLength, &v.length},
		{ParamHoopThickness, &v.tHoop},
		{ParamHelicalThickness, &v.tHelical},
		{ParamHelicalAngle, &v.angle},
		{ParamLinerThickness, &v.tLiner},
		{ParamWorkingPressure, &v.pWork},
		{ParamFiberStrength, &v.sigmaFiber},
		{ParamFiberVolumeFraction, &v.vf},
	}
	for _, f := range fields {
		if *f.dst, err = get(f.name); err != nil {
			return vessel{}, err
		}
	}
	v.angle *= math.Pi / 180

	fiber := 0.0
	if x, ok := p[ParamFiberType]; ok {
		fiber = x
	}
	v.fiber = int(math.Round(fiber))
	if v.fiber < 0 || v.fiber >= len(fiberGrades) {
		return vessel{}, fmt.Errorf("unknown fiber type %g", fiber)
	}
	if v.r <= 0 || v.tHoop < 0 || v.tHelical <= 0 || v.tLiner <= 0 {
		return vessel{}, fmt.Errorf("non-physical geometry")
	}
	return v, nil
}

// laminaStrength is the along-fiber strength of the composite
func (v vessel) laminaStrength() float64 {
	return v.sigmaFiber * fiberGrades[v.fiber].strength * v.vf
}

func (v vessel) hoopCapacity() float64 {
	s := math.Sin(v.angle)
	return v.laminaStrength() * (v.tHoop + v.tHelical*s*s) / v.r
}

func (v vessel) axialCapacity() float64 {
	c := math.Cos(v.angle)
	return 2 * v.laminaStrength() * v.tHelical * c * c / v.r
}

func burstPressure(v vessel) float64 {
	return burstKnockdown * math.Min(v.hoopCapacity(), v.axialCapacity())
}

func failureMode(v vessel) float64 {
	if v.axialCapacity() < v.hoopCapacity() {
		return FailureModeDomeAxial
	}
	return FailureModeCylinderHoop
}

func (v vessel) innerArea() float64 {
	return 2*math.Pi*v.r*v.length + 4*math.Pi*v.r*v.r
}

func (v vessel) volumeLitres() float64 {
	return (math.Pi*v.r*v.r*v.length + 4.0/3.0*math.Pi*v.r*v.r*v.r) / 1e6
}

func (v vessel) compositeMass() float64 {
	cylinder := 2 * math.Pi * v.r * v.length * (v.tHoop + v.tHelical)
	domes := 4 * math.Pi * v.r * v.r * v.tHelical * domeBuildUp
	return (cylinder + domes) * compositeDensity
}

func (v vessel) linerMass() float64 {
	return v.innerArea() * v.tLiner * linerDensity
}

func mass(v vessel) float64 {
	return v.compositeMass() + v.linerMass()
}

func cost(v vessel) float64 {
	fiberMass := v.compositeMass() * v.vf
	return fiberMass*fiberGrades[v.fiber].price +
		v.linerMass()*linerCostPerKg +
		(v.tHoop+v.tHelical)*windingCostPerMm
}

func peakStress(v vessel) float64 {
	s := math.Sin(v.angle)
	return v.pWork * v.r / (v.tHoop + v.tHelical*s*s)
}

// fatigueCycles follows a Basquin-type law on the working-pressure stress ratio
func fatigueCycles(v vessel) float64 {
	ratio := v.laminaStrength() / (2.5 * peakStress(v))
	return math.Min(1e4*math.Pow(ratio, 9), 1e9)
}

func permeation(v vessel) float64 {
	return permeationCoeff * v.innerArea() / v.tLiner / v.volumeLitres()
}
