package domain

import (
	"fmt"
	"math"
)

// ActivationFloor: por debajo de esta confianza ajustada no se opera.
const ActivationFloor = 0.2

// AdjustForAge descuenta la confianza según la antigüedad de los datos.
//
//	ageFactor = max(0, 1 - (age - maxFresh) / (3 × maxFresh))
//
// Se aplica a la confianza y al monto sugerido. Si la confianza resultante cae
// bajo ActivationFloor, una decisión accionable se fuerza a HOLD con monto 0.
// maxFreshAgeMinutes <= 0 desactiva el descuento.
func AdjustForAge(d Decision, ageMinutes, maxFreshAgeMinutes float64) Decision {
	if maxFreshAgeMinutes <= 0 || ageMinutes <= maxFreshAgeMinutes {
		return d
	}

	factor := math.Max(0, 1-(ageMinutes-maxFreshAgeMinutes)/(3*maxFreshAgeMinutes))
	out := d
	out.Confidence = d.Confidence * factor
	out.SuggestedAmount = d.SuggestedAmount * factor

	if d.Action != ActionHold && out.Confidence < ActivationFloor {
		out.Action = ActionHold
		out.SuggestedAmount = 0
		out.Rationale = fmt.Sprintf("%s; downgraded %s to HOLD: data %.0f min old (fresh <= %.0f min), confidence %.2f < floor %.2f",
			d.Rationale, d.Action, ageMinutes, maxFreshAgeMinutes, out.Confidence, ActivationFloor)
	}
	return out
}
