package domain

import (
	"fmt"
	"math"
)

// Action es la acción clasificada que produce el motor de decisión.
type Action string

const (
	ActionBuy      Action = "BUY"
	ActionSell     Action = "SELL"
	ActionDeposit  Action = "DEPOSIT"
	ActionWithdraw Action = "WITHDRAW"
	ActionHold     Action = "HOLD"
)

// IsEntry indica si la acción abre posición (BUY o DEPOSIT).
func (a Action) IsEntry() bool { return a == ActionBuy || a == ActionDeposit }

// IsExit indica si la acción cierra posición (SELL o WITHDRAW).
func (a Action) IsExit() bool { return a == ActionSell || a == ActionWithdraw }

// IsYield indica las variantes "ya invertido" que pasan por el protocolo de rendimiento.
func (a Action) IsYield() bool { return a == ActionDeposit || a == ActionWithdraw }

// ParseAction valida un string leído de storage.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionBuy, ActionSell, ActionDeposit, ActionWithdraw, ActionHold:
		return a, nil
	}
	return "", fmt.Errorf("domain.ParseAction: unknown action %q", s)
}

// NeutralConfidence es la confianza fija de la zona neutral: confianza moderada en no actuar.
const NeutralConfidence = 0.5

// DecisionConfig son los parámetros del motor de decisión.
// Invariante: BearishThreshold < BullishThreshold.
type DecisionConfig struct {
	BullishThreshold  float64
	BearishThreshold  float64
	MinSampleVolume   int
	MaxPositionSize   float64
	CurrentlyInvested bool
}

// Decision es el resultado de Decide, opcionalmente ajustado por AdjustForAge.
type Decision struct {
	Action          Action
	Confidence      float64 // [0,1]
	SuggestedAmount float64 // unidades del activo base
	Rationale       string
}

// Decide clasifica un sentimiento agregado en una acción con confianza.
//
// Ramas:
//
//	sampleCount < MinSampleVolume      → HOLD, confianza 0
//	s > bull                           → BUY (DEPOSIT si invertido), conf = (s - bull) / (1 - bull)
//	s < bear                           → SELL (WITHDRAW si invertido), conf = (bear - s) / (bear + 1)
//	bear <= s <= bull                  → HOLD, confianza 0.5
//
// La confianza se recorta a [0,1]. SuggestedAmount = round(MaxPositionSize × conf).
func Decide(sentiment float64, sampleCount int, cfg DecisionConfig) Decision {
	if sampleCount < cfg.MinSampleVolume {
		return Decision{
			Action:    ActionHold,
			Rationale: fmt.Sprintf("insufficient volume: %d samples < %d required", sampleCount, cfg.MinSampleVolume),
		}
	}

	switch {
	case sentiment > cfg.BullishThreshold:
		conf := ratio(sentiment-cfg.BullishThreshold, 1-cfg.BullishThreshold)
		action := ActionBuy
		if cfg.CurrentlyInvested {
			action = ActionDeposit
		}
		return Decision{
			Action:          action,
			Confidence:      conf,
			SuggestedAmount: math.Round(cfg.MaxPositionSize * conf),
			Rationale: fmt.Sprintf("bullish: sentiment %.3f > %.3f over %d samples (invested=%t)",
				sentiment, cfg.BullishThreshold, sampleCount, cfg.CurrentlyInvested),
		}

	case sentiment < cfg.BearishThreshold:
		conf := ratio(cfg.BearishThreshold-sentiment, cfg.BearishThreshold+1)
		action := ActionSell
		if cfg.CurrentlyInvested {
			action = ActionWithdraw
		}
		return Decision{
			Action:          action,
			Confidence:      conf,
			SuggestedAmount: math.Round(cfg.MaxPositionSize * conf),
			Rationale: fmt.Sprintf("bearish: sentiment %.3f < %.3f over %d samples (invested=%t)",
				sentiment, cfg.BearishThreshold, sampleCount, cfg.CurrentlyInvested),
		}
	}

	return Decision{
		Action:     ActionHold,
		Confidence: NeutralConfidence,
		Rationale: fmt.Sprintf("neutral: sentiment %.3f within [%.3f, %.3f]",
			sentiment, cfg.BearishThreshold, cfg.BullishThreshold),
	}
}

// ratio devuelve num/denom recortado a [0,1].
// Un denominador degenerado (umbral en el extremo) cuenta como confianza total.
func ratio(num, denom float64) float64 {
	if denom <= 0 {
		return 1
	}
	return clamp01(num / denom)
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
