package domain

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Forecast es el resultado estructurado de la etapa de razonamiento:
// probabilidad de YES, intervalo de incertidumbre y confianza del modelo.
type Forecast struct {
	Reasoning       string      `json:"reasoning"`
	Probability     float64     `json:"probability" validate:"gte=0,lte=1"`
	Uncertainty     Uncertainty `json:"uncertainty"`
	ModelConfidence float64     `json:"model_confidence" validate:"gte=0,lte=1"`
}

// Uncertainty es el intervalo de confianza declarado por el modelo.
type Uncertainty struct {
	LowerBound      float64 `json:"lower_bound" validate:"gte=0,lte=1"`
	UpperBound      float64 `json:"upper_bound" validate:"gte=0,lte=1"`
	ConfidenceLevel float64 `json:"confidence_level" validate:"gte=0,lte=1"`
}

// Warnings devuelve las violaciones de rango y de orden del intervalo.
// Ninguna es fatal: el forecast se usa tal cual y el caller decide si loguearlas.
func (f Forecast) Warnings() []string {
	var out []string

	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				out = append(out, fmt.Sprintf("%s=%v outside [0,1]", fe.Namespace(), fe.Value()))
			}
		} else {
			out = append(out, err.Error())
		}
	}

	u := f.Uncertainty
	if u.LowerBound > f.Probability || f.Probability > u.UpperBound {
		out = append(out, fmt.Sprintf("probability %.4f outside interval [%.4f, %.4f]",
			f.Probability, u.LowerBound, u.UpperBound))
	}
	return out
}

// DirectionalProbability devuelve la probabilidad del outcome dado.
// Solo mercados binarios Yes/No: cualquier outcome distinto de "Yes" se trata como el complemento.
func (f Forecast) DirectionalProbability(outcome string) float64 {
	if outcome == OutcomeYes {
		return f.Probability
	}
	return 1 - f.Probability
}

const (
	OutcomeYes = "Yes"
	OutcomeNo  = "No"
)
